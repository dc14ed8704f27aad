package inventory

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientStock is returned when the batches of a product cannot cover a quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrBatchNotFound is returned when a referenced batch does not exist.
	ErrBatchNotFound = errors.New("batch not found")
)

// Batch is one inventory lot of a product.
type Batch struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"productId"`
	Quantity     decimal.Decimal `json:"quantity"`
	CostPrice    decimal.Decimal `json:"costPrice"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
	ExpiresAt    *time.Time      `json:"expiresAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Allocation is the quantity taken from (or returned to) one batch.
type Allocation struct {
	BatchID   string          `json:"batchId"`
	Quantity  decimal.Decimal `json:"quantity"`
	CostPrice decimal.Decimal `json:"costPrice"`
}

// oldestFirst orders batches by creation time with the id as tie breaker.
func oldestFirst(batches []Batch) []Batch {
	out := make([]Batch, len(batches))
	copy(out, batches)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// AllocateFIFO takes qty of productID from the given batches, oldest batch
// first. Batches of other products and empty batches are ignored. The input
// slice is not modified.
func AllocateFIFO(batches []Batch, productID string, qty decimal.Decimal) ([]Allocation, error) {
	if !qty.IsPositive() {
		return nil, nil
	}
	remaining := qty
	var out []Allocation
	for _, b := range oldestFirst(batches) {
		if b.ProductID != productID || !b.Quantity.IsPositive() {
			continue
		}
		take := decimal.Min(b.Quantity, remaining)
		out = append(out, Allocation{BatchID: b.ID, Quantity: take, CostPrice: b.CostPrice})
		remaining = remaining.Sub(take)
		if remaining.IsZero() {
			return out, nil
		}
	}
	return nil, fmt.Errorf("product %s: need %s more: %w", productID, remaining, ErrInsufficientStock)
}

// AllocateBatch takes qty from one named batch.
func AllocateBatch(b Batch, qty decimal.Decimal) (Allocation, error) {
	if b.Quantity.LessThan(qty) {
		return Allocation{}, fmt.Errorf("batch %s has %s, need %s: %w", b.ID, b.Quantity, qty, ErrInsufficientStock)
	}
	return Allocation{BatchID: b.ID, Quantity: qty, CostPrice: b.CostPrice}, nil
}

// RestockPlan spreads a returned quantity back over the allocations a line
// was sold from, newest allocation first, so the oldest stock is consumed
// again first on the next sale. The last alreadyReturned units of the line
// are treated as restocked by earlier returns and skipped.
func RestockPlan(sold []Allocation, alreadyReturned, qty decimal.Decimal) []Allocation {
	skip := alreadyReturned
	remaining := qty
	var out []Allocation
	for i := len(sold) - 1; i >= 0 && remaining.IsPositive(); i-- {
		avail := sold[i].Quantity
		if skip.IsPositive() {
			used := decimal.Min(avail, skip)
			avail = avail.Sub(used)
			skip = skip.Sub(used)
		}
		give := decimal.Min(avail, remaining)
		if !give.IsPositive() {
			continue
		}
		out = append(out, Allocation{BatchID: sold[i].BatchID, Quantity: give, CostPrice: sold[i].CostPrice})
		remaining = remaining.Sub(give)
	}
	return out
}

// WeightedCost returns the average unit cost over allocations.
func WeightedCost(allocs []Allocation) decimal.Decimal {
	qty := decimal.Zero
	cost := decimal.Zero
	for _, a := range allocs {
		qty = qty.Add(a.Quantity)
		cost = cost.Add(a.Quantity.Mul(a.CostPrice))
	}
	if qty.IsZero() {
		return decimal.Zero
	}
	return cost.Div(qty)
}
