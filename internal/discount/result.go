package discount

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrFinalized is returned when Finalize is called on an already finalized result.
var ErrFinalized = errors.New("discount result already finalized")

// AppliedRuleInfo is the audit metadata carried from a rule firing into the
// stored bill's applied discount summary.
type AppliedRuleInfo struct {
	DiscountSetID   string          `json:"discountSetId,omitempty"`
	DiscountSetName string          `json:"discountSetName,omitempty"`
	Source          ProcessorKind   `json:"sourceType"`
	RuleName        string          `json:"ruleName,omitempty"`
	RuleType        Kind            `json:"ruleType,omitempty"`
	RuleValue       decimal.Decimal `json:"ruleValue"`
	ApplyFixedOnce  bool            `json:"applyFixedOnce,omitempty"`
	LineID          string          `json:"lineId,omitempty"`
	ProductID       string          `json:"productId,omitempty"`
	BatchID         string          `json:"batchId,omitempty"`
	Amount          decimal.Decimal `json:"totalCalculatedDiscount"`
}

// Application records one rule firing. Once added to a line or the cart it is
// never modified.
type Application struct {
	RuleID      string          `json:"ruleId"`
	Amount      decimal.Decimal `json:"discountAmount"`
	Description string          `json:"description"`
	Info        AppliedRuleInfo `json:"appliedRuleInfo"`
}

// LineResult accumulates the discounts granted to one cart line.
type LineResult struct {
	lineID    string
	productID string
	batchID   string
	unitPrice decimal.Decimal
	quantity  decimal.Decimal

	totalDiscount decimal.Decimal
	applications  []Application
	owner         *Result
}

func (l *LineResult) LineID() string             { return l.lineID }
func (l *LineResult) ProductID() string          { return l.productID }
func (l *LineResult) BatchID() string            { return l.batchID }
func (l *LineResult) UnitPrice() decimal.Decimal { return l.unitPrice }
func (l *LineResult) Quantity() decimal.Decimal  { return l.quantity }

// OriginalTotal is unit price times quantity before any discount.
func (l *LineResult) OriginalTotal() decimal.Decimal {
	return l.unitPrice.Mul(l.quantity)
}

// TotalDiscount is the running sum of applied line discounts.
func (l *LineResult) TotalDiscount() decimal.Decimal { return l.totalDiscount }

// NetPrice is the line total after line discounts.
func (l *LineResult) NetPrice() decimal.Decimal {
	return l.OriginalTotal().Sub(l.totalDiscount)
}

// Applications returns a copy of the applications in the order they were added.
func (l *LineResult) Applications() []Application {
	return append([]Application(nil), l.applications...)
}

// AddDiscount applies min(app.Amount, remaining line value) and returns the
// amount actually applied. This is the only place a line discount grows, so a
// line can never be discounted below zero.
func (l *LineResult) AddDiscount(app Application) decimal.Decimal {
	if l.owner != nil && l.owner.finalized {
		return decimal.Zero
	}
	remaining := l.OriginalTotal().Sub(l.totalDiscount)
	applicable := decimal.Min(app.Amount, remaining)
	if !applicable.IsPositive() {
		return decimal.Zero
	}
	l.totalDiscount = l.totalDiscount.Add(applicable)
	app.Amount = applicable
	app.Info.Amount = applicable
	app.Info.LineID = l.lineID
	if app.Info.ProductID == "" {
		app.Info.ProductID = l.productID
	}
	if app.Info.BatchID == "" {
		app.Info.BatchID = l.batchID
	}
	l.applications = append(l.applications, app)
	if l.owner != nil {
		l.owner.audit = append(l.owner.audit, app.Info)
	}
	return applicable
}

// Result is the discount state of one cart. It is mutable while processors
// run and must be finalized exactly once before aggregates are read.
type Result struct {
	lines []*LineResult
	byID  map[string]*LineResult

	totalItemDiscount decimal.Decimal
	totalCartDiscount decimal.Decimal
	cartApplications  []Application
	audit             []AppliedRuleInfo
	finalized         bool
}

// NewResult creates an empty result with one LineResult per cart line.
func NewResult(cart Cart) *Result {
	r := &Result{
		lines: make([]*LineResult, 0, len(cart.Items)),
		byID:  make(map[string]*LineResult, len(cart.Items)),
	}
	for _, it := range cart.Items {
		lr := &LineResult{
			lineID:    it.LineID,
			productID: it.ProductID,
			batchID:   it.BatchID,
			unitPrice: it.UnitPrice,
			quantity:  it.Quantity,
			owner:     r,
		}
		r.lines = append(r.lines, lr)
		if _, exists := r.byID[it.LineID]; !exists {
			r.byID[it.LineID] = lr
		}
	}
	return r
}

// Line looks up the result for a cart line.
func (r *Result) Line(lineID string) (*LineResult, bool) {
	lr, ok := r.byID[lineID]
	return lr, ok
}

// Lines returns the line results in cart order.
func (r *Result) Lines() []*LineResult {
	return append([]*LineResult(nil), r.lines...)
}

// SubtotalOriginal is the sum of line totals before any discount.
func (r *Result) SubtotalOriginal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range r.lines {
		sum = sum.Add(l.OriginalTotal())
	}
	return sum
}

// NetSubtotal is the sum of line net prices (after line discounts only).
func (r *Result) NetSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range r.lines {
		sum = sum.Add(l.NetPrice())
	}
	return sum
}

// TotalQuantity sums all line quantities.
func (r *Result) TotalQuantity() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range r.lines {
		sum = sum.Add(l.quantity)
	}
	return sum
}

// AddCartDiscount applies min(app.Amount, net subtotal - cart discount so far)
// to the cart bucket and returns the amount applied.
func (r *Result) AddCartDiscount(app Application) decimal.Decimal {
	if r.finalized {
		return decimal.Zero
	}
	remaining := r.NetSubtotal().Sub(r.totalCartDiscount)
	applicable := decimal.Min(app.Amount, remaining)
	if !applicable.IsPositive() {
		return decimal.Zero
	}
	r.totalCartDiscount = r.totalCartDiscount.Add(applicable)
	app.Amount = applicable
	app.Info.Amount = applicable
	r.cartApplications = append(r.cartApplications, app)
	r.audit = append(r.audit, app.Info)
	return applicable
}

// Finalize freezes the result and computes the total item discount.
func (r *Result) Finalize() error {
	if r.finalized {
		return ErrFinalized
	}
	r.finalize()
	return nil
}

func (r *Result) finalize() {
	sum := decimal.Zero
	for _, l := range r.lines {
		sum = sum.Add(l.totalDiscount)
	}
	r.totalItemDiscount = sum
	r.finalized = true
}

// Finalized reports whether Finalize has run.
func (r *Result) Finalized() bool { return r.finalized }

// TotalItemDiscount is only meaningful after Finalize.
func (r *Result) TotalItemDiscount() decimal.Decimal { return r.totalItemDiscount }

// TotalCartDiscount is the accumulated cart-level discount.
func (r *Result) TotalCartDiscount() decimal.Decimal { return r.totalCartDiscount }

// CartApplications returns a copy of the cart-level applications.
func (r *Result) CartApplications() []Application {
	return append([]Application(nil), r.cartApplications...)
}

// AppliedRulesSummary flattens every line and cart application's audit info
// in the exact order the discounts were added.
func (r *Result) AppliedRulesSummary() []AppliedRuleInfo {
	return append([]AppliedRuleInfo(nil), r.audit...)
}

// LineSnapshot is the plain-data view of a LineResult.
type LineSnapshot struct {
	LineID        string          `json:"lineId"`
	ProductID     string          `json:"productId"`
	BatchID       string          `json:"batchId,omitempty"`
	UnitPrice     decimal.Decimal `json:"originalUnitPrice"`
	Quantity      decimal.Decimal `json:"quantity"`
	OriginalTotal decimal.Decimal `json:"originalTotal"`
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
	NetPrice      decimal.Decimal `json:"netPrice"`
	Applications  []Application   `json:"appliedDiscounts"`
}

// Snapshot is the plain-data view of a Result, suitable for JSON and comparison.
type Snapshot struct {
	Lines             []LineSnapshot    `json:"lineItems"`
	TotalItemDiscount decimal.Decimal   `json:"totalItemDiscount"`
	TotalCartDiscount decimal.Decimal   `json:"totalCartDiscount"`
	CartApplications  []Application     `json:"cartDiscounts"`
	AppliedRules      []AppliedRuleInfo `json:"appliedRulesSummary"`
}

// Snapshot copies the current state into plain data.
func (r *Result) Snapshot() Snapshot {
	lines := make([]LineSnapshot, 0, len(r.lines))
	for _, l := range r.lines {
		lines = append(lines, LineSnapshot{
			LineID:        l.lineID,
			ProductID:     l.productID,
			BatchID:       l.batchID,
			UnitPrice:     l.unitPrice,
			Quantity:      l.quantity,
			OriginalTotal: l.OriginalTotal(),
			TotalDiscount: l.totalDiscount,
			NetPrice:      l.NetPrice(),
			Applications:  l.Applications(),
		})
	}
	return Snapshot{
		Lines:             lines,
		TotalItemDiscount: r.totalItemDiscount,
		TotalCartDiscount: r.totalCartDiscount,
		CartApplications:  r.CartApplications(),
		AppliedRules:      r.AppliedRulesSummary(),
	}
}
