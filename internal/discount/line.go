package discount

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidLine is returned by Cart.Validate for lines violating the cart invariants.
	ErrInvalidLine = errors.New("invalid cart line")
)

// Override is a manual discount typed in by the cashier for one line.
type Override struct {
	Type  Kind            `json:"type" validate:"required,oneof=percentage fixed"`
	Value decimal.Decimal `json:"value" validate:"gte=0"`
}

// LineItem is one product (optionally one batch) and quantity in a cart.
type LineItem struct {
	LineID    string          `json:"lineId" validate:"required"`
	ProductID string          `json:"productId" validate:"required"`
	BatchID   string          `json:"batchId,omitempty"`
	Name      string          `json:"name,omitempty"`
	UnitPrice decimal.Decimal `json:"price" validate:"gte=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
	Override  *Override       `json:"customDiscount,omitempty"`
}

// Total returns unit price times quantity.
func (l LineItem) Total() decimal.Decimal {
	return l.UnitPrice.Mul(l.Quantity)
}

// Cart is the read-only input handed to every processor.
type Cart struct {
	Items []LineItem `json:"items" validate:"dive"`
}

// Validate checks quantity > 0, price >= 0 and unique line ids.
func (c Cart) Validate() error {
	seen := make(map[string]struct{}, len(c.Items))
	for _, it := range c.Items {
		if it.LineID == "" {
			return fmt.Errorf("%w: line id is required", ErrInvalidLine)
		}
		if _, dup := seen[it.LineID]; dup {
			return fmt.Errorf("%w: duplicate line id %q", ErrInvalidLine, it.LineID)
		}
		seen[it.LineID] = struct{}{}
		if !it.Quantity.IsPositive() {
			return fmt.Errorf("%w: line %q quantity must be positive", ErrInvalidLine, it.LineID)
		}
		if it.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line %q price must not be negative", ErrInvalidLine, it.LineID)
		}
	}
	return nil
}
