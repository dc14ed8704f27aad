package returns

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/discount"
	"github.com/noah-isme/backend-kasir/internal/inventory"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/sale"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func requireDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, d(want).Equal(got), "expected %s, got %s", want, got)
}

var soldAt = time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

func tenPercent() discount.Campaign {
	return discount.Campaign{
		ID:       "c1",
		Name:     "ten",
		IsActive: true,
		DefaultItem: discount.ItemRules{Value: &discount.RuleConfig{
			Enabled: true, Name: "10%", Type: discount.KindPercentage, Value: d("10"),
		}},
	}
}

func original(t *testing.T) sale.Record {
	t.Helper()
	c := tenPercent()
	cart := discount.Cart{Items: []discount.LineItem{
		{LineID: "1", ProductID: "shirt", UnitPrice: d("100"), Quantity: d("3")},
		{LineID: "2", ProductID: "sock", UnitPrice: d("10"), Quantity: d("2")},
	}}
	res, sum := sale.Compute(c, cart, pricing.Rates{GlobalPercent: d("10")})
	rec := sale.Build(sale.Draft{
		Status:     sale.StatusCompletedOriginal,
		BillNumber: "B-1",
		Cart:       cart,
		Result:     res,
		Summary:    sum,
		Campaign:   c,
		TaxRate:    d("10"),
		Now:        soldAt,
	})
	rec.ID = "orig"
	rec.Items[0].CostPriceAtSale = d("55")
	rec.Items[0].Allocations = []inventory.Allocation{
		{BatchID: "shirt-a", Quantity: d("2"), CostPrice: d("50")},
		{BatchID: "shirt-b", Quantity: d("1"), CostPrice: d("65")},
	}
	return rec
}

func entry(id, product, qty string) sale.ReturnLogEntry {
	return sale.ReturnLogEntry{ID: id, ReturnID: "r-" + id, ProductID: product, Quantity: d(qty)}
}

func TestRefundUsesSaleTimeEffectivePrice(t *testing.T) {
	rec := original(t)
	requireDec(t, "90", rec.Items[0].EffectivePricePaidPerUnit)

	l := newLedger(rec.Items)
	portions, err := l.drain("shirt", "", d("1"))
	require.NoError(t, err)
	require.Len(t, portions, 1)
	requireDec(t, "90", Refund(rec.Items, portions))
}

func TestRecomputeKeepsRemainingQuantity(t *testing.T) {
	rec := original(t)
	adj, err := Recompute(rec, []sale.ReturnLogEntry{entry("1", "shirt", "1")}, tenPercent(), soldAt)
	require.NoError(t, err)

	require.Equal(t, sale.StatusAdjustedActive, adj.Status)
	require.Equal(t, "orig", adj.OriginalID)
	require.Equal(t, "B-1", adj.BillNumber)
	require.Len(t, adj.Items, 2)
	requireDec(t, "2", adj.Items[0].Quantity)
	requireDec(t, "55", adj.Items[0].CostPriceAtSale)
	require.Empty(t, adj.Items[0].Allocations)
	requireDec(t, "220", adj.SubtotalOriginal)
	requireDec(t, "22", adj.TotalItemDiscountAmount)
	requireDec(t, "198", adj.NetSubtotal)
	requireDec(t, "19.8", adj.TaxAmount)
	requireDec(t, "217.8", adj.TotalAmount)
	require.Len(t, adj.ReturnedItemsLog, 1)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	rec := original(t)
	log := []sale.ReturnLogEntry{entry("1", "shirt", "1"), entry("2", "sock", "2")}

	first, err := Recompute(rec, log, tenPercent(), soldAt)
	require.NoError(t, err)
	second, err := Recompute(rec, log, tenPercent(), soldAt)
	require.NoError(t, err)

	require.Len(t, first.Items, 1, "fully returned line is dropped")
	require.Equal(t, len(first.Items), len(second.Items))
	require.True(t, first.TotalAmount.Equal(second.TotalAmount))
	require.True(t, first.TaxAmount.Equal(second.TaxAmount))
	require.True(t, first.TotalItemDiscountAmount.Equal(second.TotalItemDiscountAmount))
	require.True(t, first.Rederive().Total.Equal(first.TotalAmount))
}

func TestKeptItemsIgnoresUndoneEntries(t *testing.T) {
	rec := original(t)
	undone := entry("1", "shirt", "3")
	undone.Undone = true

	kept, err := KeptItems(rec.Items, []sale.ReturnLogEntry{undone, entry("2", "shirt", "1")})
	require.NoError(t, err)
	require.Len(t, kept, 2)
	requireDec(t, "2", kept[0].Quantity)
	require.True(t, rec.Items[0].Quantity.Equal(d("3")), "original untouched")
}

func TestDrainRejectsUnknownAndExcess(t *testing.T) {
	rec := original(t)

	_, err := KeptItems(rec.Items, []sale.ReturnLogEntry{entry("1", "hat", "1")})
	require.ErrorIs(t, err, ErrItemNotInBill)

	_, err = KeptItems(rec.Items, []sale.ReturnLogEntry{entry("1", "shirt", "2"), entry("2", "shirt", "2")})
	require.ErrorIs(t, err, ErrQuantityExceeded)

	l := newLedger(rec.Items)
	_, err = l.drain("shirt", "shirt-a", d("1"))
	require.ErrorIs(t, err, ErrItemNotInBill, "batch must match the sold line")
}

func TestDrainSpansDuplicateLines(t *testing.T) {
	items := []sale.Item{
		{LineID: "1", ProductID: "p", Quantity: d("1"), EffectivePricePaidPerUnit: d("5")},
		{LineID: "2", ProductID: "p", Quantity: d("2"), EffectivePricePaidPerUnit: d("4")},
	}
	l := newLedger(items)
	portions, err := l.drain("p", "", d("2"))
	require.NoError(t, err)
	require.Len(t, portions, 2)
	require.Equal(t, 0, portions[0].Line)
	requireDec(t, "9", Refund(items, portions))
	require.Len(t, l.keptItems(), 1)
}

func TestRestockSkipsUnitsReturnedBefore(t *testing.T) {
	rec := original(t)
	l, err := replay(rec.Items, []sale.ReturnLogEntry{entry("1", "shirt", "1")})
	require.NoError(t, err)

	portions, err := l.drain("shirt", "", d("1"))
	require.NoError(t, err)
	plan := l.restock(portions)
	require.Len(t, plan, 1)
	require.Equal(t, "shirt-a", plan[0].BatchID)
	requireDec(t, "1", plan[0].Quantity)
}
