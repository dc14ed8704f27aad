package sale

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/discount"
	"github.com/noah-isme/backend-kasir/internal/pricing"
)

// Compute runs the discount engine for cart under campaign and derives tax
// and totals. It performs no I/O.
func Compute(campaign discount.Campaign, cart discount.Cart, rates pricing.Rates) (*discount.Result, pricing.Summary) {
	res := discount.NewEngine(campaign).Process(cart)
	return res, pricing.FromResult(res, rates)
}

// Draft carries everything needed to turn one engine run into a Record.
type Draft struct {
	Status     Status
	BillNumber string
	Cart       discount.Cart
	Result     *discount.Result
	Summary    pricing.Summary
	Campaign   discount.Campaign
	TaxRate    decimal.Decimal
	Now        time.Time
}

// Build maps an engine result and its derived totals 1:1 onto a Record.
// Cost prices and allocations are left for the caller.
func Build(d Draft) Record {
	byLine := make(map[string]discount.LineItem, len(d.Cart.Items))
	for _, it := range d.Cart.Items {
		byLine[it.LineID] = it
	}
	items := make([]Item, 0, len(d.Summary.Lines))
	for _, lt := range d.Summary.Lines {
		src := byLine[lt.LineID]
		items = append(items, Item{
			LineID:                    lt.LineID,
			ProductID:                 lt.ProductID,
			BatchID:                   lt.BatchID,
			Name:                      src.Name,
			Quantity:                  lt.Quantity,
			PriceAtSale:               src.UnitPrice,
			CostPriceAtSale:           decimal.Zero,
			TotalDiscountOnLine:       lt.ItemDiscount,
			CartDiscountShare:         lt.CartDiscountShare,
			EffectivePricePaidPerUnit: lt.EffectiveUnitPrice,
			TaxRate:                   lt.TaxRate,
			TaxAmount:                 lt.Tax,
			CustomDiscount:            src.Override,
		})
	}
	applied := d.Result.AppliedRulesSummary()
	if applied == nil {
		applied = []discount.AppliedRuleInfo{}
	}
	rec := Record{
		BillNumber:              d.BillNumber,
		Status:                  d.Status,
		Items:                   items,
		SubtotalOriginal:        d.Summary.SubtotalOriginal,
		TotalItemDiscountAmount: d.Summary.TotalItemDiscount,
		TotalCartDiscountAmount: d.Summary.TotalCartDiscount,
		NetSubtotal:             d.Summary.NetSubtotal,
		AppliedDiscountSummary:  applied,
		TaxRate:                 d.TaxRate,
		TaxAmount:               d.Summary.TotalTax,
		TotalAmount:             d.Summary.Total,
		RefundAmount:            decimal.Zero,
		DiscountSetID:           d.Campaign.ID,
		ReturnedItemsLog:        []ReturnLogEntry{},
		CreatedAt:               d.Now,
		UpdatedAt:               d.Now,
	}
	if !d.Campaign.IsZero() {
		snap := d.Campaign
		rec.CampaignSnapshot = &snap
	}
	return rec
}
