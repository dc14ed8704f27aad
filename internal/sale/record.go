package sale

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/discount"
	"github.com/noah-isme/backend-kasir/internal/inventory"
	"github.com/noah-isme/backend-kasir/internal/pricing"
)

// Status is the lifecycle marker of a stored sale record.
type Status string

const (
	// StatusCompletedOriginal marks the pristine record written at sale time.
	StatusCompletedOriginal Status = "COMPLETED_ORIGINAL"
	// StatusAdjustedActive marks the current state of a bill after returns.
	StatusAdjustedActive Status = "ADJUSTED_ACTIVE"
	// StatusReturnTransaction marks the immutable record of one return event.
	StatusReturnTransaction Status = "RETURN_TRANSACTION_COMPLETED"
)

// Item is one resolved bill line.
type Item struct {
	LineID                    string                 `json:"lineId"`
	ProductID                 string                 `json:"productId"`
	BatchID                   string                 `json:"batchId,omitempty"`
	Name                      string                 `json:"name,omitempty"`
	Quantity                  decimal.Decimal        `json:"quantity"`
	PriceAtSale               decimal.Decimal        `json:"priceAtSale"`
	CostPriceAtSale           decimal.Decimal        `json:"costPriceAtSale"`
	TotalDiscountOnLine       decimal.Decimal        `json:"totalDiscountOnLine"`
	CartDiscountShare         decimal.Decimal        `json:"cartDiscountShare"`
	EffectivePricePaidPerUnit decimal.Decimal        `json:"effectivePricePaidPerUnit"`
	TaxRate                   decimal.Decimal        `json:"taxRate"`
	TaxAmount                 decimal.Decimal        `json:"taxAmount"`
	CustomDiscount            *discount.Override     `json:"customDiscount,omitempty"`
	Allocations               []inventory.Allocation `json:"allocations,omitempty"`
}

// LineTotal is price at sale times quantity.
func (it Item) LineTotal() decimal.Decimal {
	return it.PriceAtSale.Mul(it.Quantity)
}

// ReturnLogEntry records one returned product/batch quantity.
type ReturnLogEntry struct {
	ID           string                 `json:"id"`
	ReturnID     string                 `json:"returnId"`
	ProductID    string                 `json:"productId"`
	BatchID      string                 `json:"batchId,omitempty"`
	Quantity     decimal.Decimal        `json:"quantity"`
	RefundAmount decimal.Decimal        `json:"refundAmount"`
	Reason       string                 `json:"reason,omitempty"`
	ReturnedAt   time.Time              `json:"returnedAt"`
	Undone       bool                   `json:"undone"`
	UndoneAt     *time.Time             `json:"undoneAt,omitempty"`
	Restocked    []inventory.Allocation `json:"restocked,omitempty"`
}

// Record is the persisted shape of a bill. One logical bill has one
// COMPLETED_ORIGINAL record, at most one ADJUSTED_ACTIVE record and one
// RETURN_TRANSACTION_COMPLETED record per return event, all sharing BillNumber.
type Record struct {
	ID                      string                     `json:"id"`
	BillNumber              string                     `json:"billNumber"`
	OriginalID              string                     `json:"originalId,omitempty"`
	Status                  Status                     `json:"status"`
	Items                   []Item                     `json:"items"`
	SubtotalOriginal        decimal.Decimal            `json:"subtotalOriginal"`
	TotalItemDiscountAmount decimal.Decimal            `json:"totalItemDiscountAmount"`
	TotalCartDiscountAmount decimal.Decimal            `json:"totalCartDiscountAmount"`
	NetSubtotal             decimal.Decimal            `json:"netSubtotal"`
	AppliedDiscountSummary  []discount.AppliedRuleInfo `json:"appliedDiscountSummary"`
	TaxRate                 decimal.Decimal            `json:"taxRate"`
	TaxAmount               decimal.Decimal            `json:"taxAmount"`
	TotalAmount             decimal.Decimal            `json:"totalAmount"`
	RefundAmount            decimal.Decimal            `json:"refundAmount"`
	DiscountSetID           string                     `json:"discountSetId,omitempty"`
	CampaignSnapshot        *discount.Campaign         `json:"campaignSnapshot,omitempty"`
	ReturnedItemsLog        []ReturnLogEntry           `json:"returnedItemsLog"`
	ReturnID                string                     `json:"returnId,omitempty"`
	Superseded              bool                       `json:"superseded"`
	CreatedAt               time.Time                  `json:"createdAt"`
	UpdatedAt               time.Time                  `json:"updatedAt"`
}

// Lines converts stored items into tax derivation input.
func (r Record) Lines() []pricing.Line {
	out := make([]pricing.Line, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, pricing.Line{
			LineID:       it.LineID,
			ProductID:    it.ProductID,
			BatchID:      it.BatchID,
			Quantity:     it.Quantity,
			LineTotal:    it.LineTotal(),
			ItemDiscount: it.TotalDiscountOnLine,
		})
	}
	return out
}

// Rates rebuilds the tax rates in force when the record was written.
func (r Record) Rates() pricing.Rates {
	rates := pricing.Rates{GlobalPercent: r.TaxRate}
	for _, it := range r.Items {
		if it.TaxRate.Equal(r.TaxRate) {
			continue
		}
		if rates.PerProduct == nil {
			rates.PerProduct = make(map[string]decimal.Decimal)
		}
		rates.PerProduct[it.ProductID] = it.TaxRate
	}
	return rates
}

// Rederive recomputes tax and totals from the stored amounts alone. For a
// record built by this package it reproduces TaxAmount and TotalAmount.
func (r Record) Rederive() pricing.Summary {
	return pricing.Compute(r.Lines(), r.TotalCartDiscountAmount, r.Rates())
}

// Campaign returns the campaign snapshot stored with the record, if any.
func (r Record) Campaign() (discount.Campaign, bool) {
	if r.CampaignSnapshot == nil {
		return discount.Campaign{}, false
	}
	return *r.CampaignSnapshot, true
}

// Cart rebuilds the engine input for the stored items.
func (r Record) Cart() discount.Cart {
	items := make([]discount.LineItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, discount.LineItem{
			LineID:    it.LineID,
			ProductID: it.ProductID,
			BatchID:   it.BatchID,
			Name:      it.Name,
			UnitPrice: it.PriceAtSale,
			Quantity:  it.Quantity,
			Override:  it.CustomDiscount,
		})
	}
	return discount.Cart{Items: items}
}
