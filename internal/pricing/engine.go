package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/discount"
)

var hundred = decimal.NewFromInt(100)

// TaxPlaces is the precision per-line tax is rounded to.
const TaxPlaces = 2

// Rates holds the global tax percentage and optional per-product overrides.
type Rates struct {
	GlobalPercent decimal.Decimal
	PerProduct    map[string]decimal.Decimal
}

// For returns the rate that applies to productID.
func (r Rates) For(productID string) decimal.Decimal {
	if rate, ok := r.PerProduct[productID]; ok {
		return rate
	}
	return r.GlobalPercent
}

// Line is the minimal per-line input needed to derive tax and totals. It can
// be built from a live discount result or from a stored bill.
type Line struct {
	LineID       string
	ProductID    string
	BatchID      string
	Quantity     decimal.Decimal
	LineTotal    decimal.Decimal
	ItemDiscount decimal.Decimal
}

// LineTotals extends Line with the derived per-line amounts.
type LineTotals struct {
	Line
	NetAfterItemDiscount decimal.Decimal
	CartDiscountShare    decimal.Decimal
	NetBeforeTax         decimal.Decimal
	TaxRate              decimal.Decimal
	Tax                  decimal.Decimal
	EffectiveUnitPrice   decimal.Decimal
}

// Summary aggregates computed pricing components.
type Summary struct {
	Lines             []LineTotals
	SubtotalOriginal  decimal.Decimal
	TotalItemDiscount decimal.Decimal
	TotalCartDiscount decimal.Decimal
	NetSubtotal       decimal.Decimal
	TotalTax          decimal.Decimal
	Total             decimal.Decimal
}

// Compute allocates the cart discount across lines in proportion to each
// line's value after item discounts, taxes each line on what remains, and
// derives the payable total. It depends on its arguments only, so stored
// bills re-derive to the same numbers.
func Compute(lines []Line, cartDiscount decimal.Decimal, rates Rates) Summary {
	sum := Summary{
		Lines:             make([]LineTotals, 0, len(lines)),
		SubtotalOriginal:  decimal.Zero,
		TotalItemDiscount: decimal.Zero,
		TotalCartDiscount: cartDiscount,
		TotalTax:          decimal.Zero,
	}
	for _, l := range lines {
		sum.SubtotalOriginal = sum.SubtotalOriginal.Add(l.LineTotal)
		sum.TotalItemDiscount = sum.TotalItemDiscount.Add(l.ItemDiscount)
	}
	netOfItemDiscounts := sum.SubtotalOriginal.Sub(sum.TotalItemDiscount)

	for _, l := range lines {
		lt := LineTotals{Line: l}
		lt.NetAfterItemDiscount = l.LineTotal.Sub(l.ItemDiscount)
		lt.CartDiscountShare = decimal.Zero
		if netOfItemDiscounts.IsPositive() {
			lt.CartDiscountShare = lt.NetAfterItemDiscount.Mul(cartDiscount).Div(netOfItemDiscounts)
		}
		lt.NetBeforeTax = lt.NetAfterItemDiscount.Sub(lt.CartDiscountShare)
		lt.TaxRate = rates.For(l.ProductID)
		taxable := lt.NetBeforeTax
		if taxable.IsNegative() {
			taxable = decimal.Zero
		}
		lt.Tax = taxable.Mul(lt.TaxRate).Div(hundred).Round(TaxPlaces)
		lt.EffectiveUnitPrice = decimal.Zero
		if l.Quantity.IsPositive() {
			lt.EffectiveUnitPrice = lt.NetBeforeTax.Div(l.Quantity)
		}
		sum.TotalTax = sum.TotalTax.Add(lt.Tax)
		sum.Lines = append(sum.Lines, lt)
	}

	net := sum.SubtotalOriginal.Sub(sum.TotalItemDiscount).Sub(cartDiscount)
	if net.IsNegative() {
		net = decimal.Zero
	}
	sum.NetSubtotal = net
	sum.Total = net.Add(sum.TotalTax)
	return sum
}

// FromResult derives totals for a finalized discount result.
func FromResult(res *discount.Result, rates Rates) Summary {
	lines := make([]Line, 0, len(res.Lines()))
	for _, l := range res.Lines() {
		lines = append(lines, Line{
			LineID:       l.LineID(),
			ProductID:    l.ProductID(),
			BatchID:      l.BatchID(),
			Quantity:     l.Quantity(),
			LineTotal:    l.OriginalTotal(),
			ItemDiscount: l.TotalDiscount(),
		})
	}
	return Compute(lines, res.TotalCartDiscount(), rates)
}
