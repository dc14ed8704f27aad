package discount

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLineDiscountNeverExceedsLineValue(t *testing.T) {
	res := NewResult(Cart{Items: []LineItem{{LineID: "l1", ProductID: "p1", UnitPrice: dec("10"), Quantity: dec("3")}}})
	line, ok := res.Line("l1")
	require.True(t, ok)

	amounts := []string{"12", "0", "-4", "25", "7"}
	for _, a := range amounts {
		line.AddDiscount(Application{RuleID: "r", Amount: dec(a)})
		require.False(t, line.TotalDiscount().IsNegative())
		require.True(t, line.TotalDiscount().LessThanOrEqual(line.OriginalTotal()))
	}
	requireDec(t, "30", line.TotalDiscount())
	requireDec(t, "0", line.NetPrice())

	apps := line.Applications()
	require.Len(t, apps, 2)
	requireDec(t, "12", apps[0].Amount)
	requireDec(t, "18", apps[1].Amount)
	requireDec(t, "18", apps[1].Info.Amount)
}

func TestCartDiscountClampedToNetSubtotal(t *testing.T) {
	res := NewResult(Cart{Items: []LineItem{
		{LineID: "a", ProductID: "p1", UnitPrice: dec("100"), Quantity: dec("1")},
		{LineID: "b", ProductID: "p2", UnitPrice: dec("50"), Quantity: dec("1")},
	}})
	a, _ := res.Line("a")
	a.AddDiscount(Application{RuleID: "line", Amount: dec("40")})

	res.AddCartDiscount(Application{RuleID: "c1", Amount: dec("100")})
	res.AddCartDiscount(Application{RuleID: "c2", Amount: dec("100")})
	res.AddCartDiscount(Application{RuleID: "c3", Amount: dec("5")})
	requireDec(t, "110", res.TotalCartDiscount())
	apps := res.CartApplications()
	require.Len(t, apps, 2)
	requireDec(t, "10", apps[1].Amount)
}

func TestFinalizeOnceAndFreezes(t *testing.T) {
	res := NewResult(Cart{Items: []LineItem{{LineID: "a", ProductID: "p", UnitPrice: dec("10"), Quantity: dec("1")}}})
	a, _ := res.Line("a")
	a.AddDiscount(Application{Amount: dec("2")})
	require.False(t, res.Finalized())
	require.NoError(t, res.Finalize())
	require.True(t, res.Finalized())
	require.ErrorIs(t, res.Finalize(), ErrFinalized)
	requireDec(t, "2", res.TotalItemDiscount())

	requireDec(t, "0", a.AddDiscount(Application{Amount: dec("1")}))
	requireDec(t, "0", res.AddCartDiscount(Application{Amount: dec("1")}))
	requireDec(t, "2", a.TotalDiscount())
}

func TestAppliedRulesSummaryKeepsInsertionOrder(t *testing.T) {
	res := NewResult(Cart{Items: []LineItem{
		{LineID: "a", ProductID: "p1", UnitPrice: dec("10"), Quantity: dec("1")},
		{LineID: "b", ProductID: "p2", UnitPrice: dec("10"), Quantity: dec("1")},
	}})
	b, _ := res.Line("b")
	a, _ := res.Line("a")
	b.AddDiscount(Application{Amount: dec("1"), Info: AppliedRuleInfo{RuleName: "first"}})
	res.AddCartDiscount(Application{Amount: dec("1"), Info: AppliedRuleInfo{RuleName: "second"}})
	a.AddDiscount(Application{Amount: dec("1"), Info: AppliedRuleInfo{RuleName: "third"}})

	summary := res.AppliedRulesSummary()
	require.Len(t, summary, 3)
	require.Equal(t, "first", summary[0].RuleName)
	require.Equal(t, "b", summary[0].LineID)
	require.Equal(t, "second", summary[1].RuleName)
	require.Equal(t, "third", summary[2].RuleName)
}

func TestCartValidate(t *testing.T) {
	valid := Cart{Items: []LineItem{{LineID: "a", ProductID: "p", UnitPrice: dec("0"), Quantity: dec("0.25")}}}
	require.NoError(t, valid.Validate())

	dup := Cart{Items: []LineItem{
		{LineID: "a", ProductID: "p", UnitPrice: dec("1"), Quantity: dec("1")},
		{LineID: "a", ProductID: "q", UnitPrice: dec("1"), Quantity: dec("1")},
	}}
	require.ErrorIs(t, dup.Validate(), ErrInvalidLine)

	zeroQty := Cart{Items: []LineItem{{LineID: "a", ProductID: "p", UnitPrice: dec("1"), Quantity: dec("0")}}}
	require.ErrorIs(t, zeroQty.Validate(), ErrInvalidLine)

	negPrice := Cart{Items: []LineItem{{LineID: "a", ProductID: "p", UnitPrice: dec("-1"), Quantity: dec("1")}}}
	require.ErrorIs(t, negPrice.Validate(), ErrInvalidLine)
}
