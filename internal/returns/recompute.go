// Package returns processes partial returns against completed sales. The
// pristine original record is never changed; every return re-derives the
// bill's adjusted state from the original items minus all active returns.
package returns

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/discount"
	"github.com/noah-isme/backend-kasir/internal/inventory"
	"github.com/noah-isme/backend-kasir/internal/sale"
)

// RefundPlaces is the number of decimal places refunds are rounded to.
const RefundPlaces = 2

var (
	// ErrBillNotFound is returned when the bill has no original record.
	ErrBillNotFound = errors.New("bill not found")
	// ErrItemNotInBill is returned when a returned product/batch was not sold on the bill.
	ErrItemNotInBill = errors.New("item not in bill")
	// ErrQuantityExceeded is returned when more units are returned than remain on the bill.
	ErrQuantityExceeded = errors.New("return quantity exceeds quantity kept")
	// ErrReturnNotFound is returned when undoing an unknown return.
	ErrReturnNotFound = errors.New("return not found")
	// ErrAlreadyUndone is returned when undoing a return twice.
	ErrAlreadyUndone = errors.New("return already undone")
)

// ItemRequest names one product/batch quantity being returned.
type ItemRequest struct {
	ProductID string          `json:"productId" validate:"required"`
	BatchID   string          `json:"batchId,omitempty"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
}

// Portion is the part of one original line taken by a return.
type Portion struct {
	Line     int
	Quantity decimal.Decimal
}

// ledger tracks how much of every original line is still kept and how much
// has been taken back, in original line order.
type ledger struct {
	items    []sale.Item
	kept     []decimal.Decimal
	returned []decimal.Decimal
}

func newLedger(items []sale.Item) *ledger {
	l := &ledger{
		items:    items,
		kept:     make([]decimal.Decimal, len(items)),
		returned: make([]decimal.Decimal, len(items)),
	}
	for i, it := range items {
		l.kept[i] = it.Quantity
		l.returned[i] = decimal.Zero
	}
	return l
}

// replay drains every entry of log, failing when the log no longer fits the
// original items.
func replay(items []sale.Item, log []sale.ReturnLogEntry) (*ledger, error) {
	l := newLedger(items)
	for _, e := range log {
		if e.Undone {
			continue
		}
		if _, err := l.drain(e.ProductID, e.BatchID, e.Quantity); err != nil {
			return nil, fmt.Errorf("return log entry %s: %w", e.ID, err)
		}
	}
	return l, nil
}

// drain removes qty units of productID/batchID from the kept lines, first
// matching line first. Lines without a batch only match requests without one.
func (l *ledger) drain(productID, batchID string, qty decimal.Decimal) ([]Portion, error) {
	found := false
	avail := decimal.Zero
	for i, it := range l.items {
		if it.ProductID == productID && it.BatchID == batchID {
			found = true
			avail = avail.Add(l.kept[i])
		}
	}
	if !found {
		return nil, fmt.Errorf("product %s batch %q: %w", productID, batchID, ErrItemNotInBill)
	}
	if qty.GreaterThan(avail) {
		return nil, fmt.Errorf("product %s batch %q: requested %s, kept %s: %w",
			productID, batchID, qty, avail, ErrQuantityExceeded)
	}
	remaining := qty
	var out []Portion
	for i, it := range l.items {
		if !remaining.IsPositive() {
			break
		}
		if it.ProductID != productID || it.BatchID != batchID || !l.kept[i].IsPositive() {
			continue
		}
		take := decimal.Min(l.kept[i], remaining)
		l.kept[i] = l.kept[i].Sub(take)
		l.returned[i] = l.returned[i].Add(take)
		remaining = remaining.Sub(take)
		out = append(out, Portion{Line: i, Quantity: take})
	}
	return out, nil
}

// keptItems returns the original items with kept quantities, dropping lines
// that were returned in full.
func (l *ledger) keptItems() []sale.Item {
	out := make([]sale.Item, 0, len(l.items))
	for i, it := range l.items {
		if !l.kept[i].IsPositive() {
			continue
		}
		it.Quantity = l.kept[i]
		it.Allocations = nil
		out = append(out, it)
	}
	return out
}

// KeptItems is the original items minus every active entry of log.
func KeptItems(original []sale.Item, log []sale.ReturnLogEntry) ([]sale.Item, error) {
	l, err := replay(original, log)
	if err != nil {
		return nil, err
	}
	return l.keptItems(), nil
}

// Refund is what was paid for portions of the original lines, at the
// effective unit price recorded at sale time.
func Refund(items []sale.Item, portions []Portion) decimal.Decimal {
	total := decimal.Zero
	for _, p := range portions {
		total = total.Add(items[p.Line].EffectivePricePaidPerUnit.Mul(p.Quantity))
	}
	return total.Round(RefundPlaces)
}

// Recompute derives the ADJUSTED_ACTIVE state of original after log by
// re-running the engine on the kept items under campaign. The original's tax
// rates and cost prices are carried over. Identical inputs give identical
// totals.
func Recompute(original sale.Record, log []sale.ReturnLogEntry, campaign discount.Campaign, now time.Time) (sale.Record, error) {
	kept, err := KeptItems(original.Items, log)
	if err != nil {
		return sale.Record{}, err
	}
	cart := sale.Record{Items: kept}.Cart()
	res, sum := sale.Compute(campaign, cart, original.Rates())
	adj := sale.Build(sale.Draft{
		Status:     sale.StatusAdjustedActive,
		BillNumber: original.BillNumber,
		Cart:       cart,
		Result:     res,
		Summary:    sum,
		Campaign:   campaign,
		TaxRate:    original.TaxRate,
		Now:        now,
	})
	cost := make(map[string]decimal.Decimal, len(original.Items))
	for _, it := range original.Items {
		cost[it.LineID] = it.CostPriceAtSale
	}
	for i := range adj.Items {
		adj.Items[i].CostPriceAtSale = cost[adj.Items[i].LineID]
	}
	adj.OriginalID = original.ID
	adj.DiscountSetID = original.DiscountSetID
	adj.CampaignSnapshot = original.CampaignSnapshot
	adj.ReturnedItemsLog = append([]sale.ReturnLogEntry{}, log...)
	return adj, nil
}

// restock plans where the portions of one return go back to, skipping the
// units earlier returns already put back on each line.
func (l *ledger) restock(portions []Portion) []inventory.Allocation {
	var out []inventory.Allocation
	for _, p := range portions {
		before := l.returned[p.Line].Sub(p.Quantity)
		out = append(out, inventory.RestockPlan(l.items[p.Line].Allocations, before, p.Quantity)...)
	}
	return out
}

// returnedItems maps portions to the lines of a return transaction record.
func returnedItems(items []sale.Item, portions []Portion) []sale.Item {
	out := make([]sale.Item, 0, len(portions))
	for _, p := range portions {
		src := items[p.Line]
		out = append(out, sale.Item{
			LineID:                    src.LineID,
			ProductID:                 src.ProductID,
			BatchID:                   src.BatchID,
			Name:                      src.Name,
			Quantity:                  p.Quantity,
			PriceAtSale:               src.PriceAtSale,
			CostPriceAtSale:           src.CostPriceAtSale,
			TotalDiscountOnLine:       decimal.Zero,
			CartDiscountShare:         decimal.Zero,
			EffectivePricePaidPerUnit: src.EffectivePricePaidPerUnit,
			TaxRate:                   src.TaxRate,
			TaxAmount:                 decimal.Zero,
		})
	}
	return out
}
