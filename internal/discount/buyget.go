package discount

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type buyGet struct {
	set   setRef
	rules []BuyGetRule
}

func (buyGet) Kind() ProcessorKind { return KindBuyGet }
func (buyGet) sealed()             {}

func (p buyGet) Apply(cart Cart, res *Result) {
	for i, rule := range p.rules {
		p.applyRule(i, rule, cart, res)
	}
}

func (p buyGet) applyRule(idx int, rule BuyGetRule, cart Cart, res *Result) {
	if !rule.BuyQuantity.IsPositive() || !rule.GetQuantity.IsPositive() || rule.DiscountValue.IsNegative() {
		return
	}
	bought := decimal.Zero
	for _, it := range cart.Items {
		if it.ProductID == rule.BuyProductID {
			bought = bought.Add(it.Quantity)
		}
	}
	if bought.LessThan(rule.BuyQuantity) {
		return
	}
	times := decimal.NewFromInt(1)
	if rule.Repeatable {
		times = bought.Div(rule.BuyQuantity).Floor()
	}
	budget := times.Mul(rule.GetQuantity)

	ruleID := rule.ID
	if ruleID == "" {
		ruleID = fmt.Sprintf("%d", idx)
	}
	for _, it := range cart.Items {
		if !budget.IsPositive() {
			return
		}
		if it.ProductID != rule.GetProductID {
			continue
		}
		l, ok := res.Line(it.LineID)
		if !ok || l.totalDiscount.IsPositive() {
			continue
		}
		units := decimal.Min(l.quantity, budget)
		portion := l.unitPrice.Mul(units)
		var amount decimal.Decimal
		switch rule.DiscountType {
		case KindPercentage:
			amount = percentOf(portion, rule.DiscountValue)
		case KindFixed:
			amount = rule.DiscountValue.Mul(units)
		default:
			return
		}
		amount = clamp(amount, portion)
		budget = budget.Sub(units)
		if !amount.IsPositive() {
			continue
		}
		info := p.set.info(KindBuyGet, nil)
		info.RuleName = rule.Name
		info.RuleType = rule.DiscountType
		info.RuleValue = rule.DiscountValue
		l.AddDiscount(Application{
			RuleID:      fmt.Sprintf("%s:%s", KindBuyGet, ruleID),
			Amount:      amount,
			Description: fmt.Sprintf("Buy %s of %s get %s of %s", rule.BuyQuantity, rule.BuyProductID, rule.GetQuantity, rule.GetProductID),
			Info:        info,
		})
	}
}
