package discount

import "github.com/shopspring/decimal"

// Kind selects how a rule value is turned into a discount amount.
type Kind string

const (
	// KindPercentage discounts value percent of the tested line total.
	KindPercentage Kind = "percentage"
	// KindFixed discounts value as a flat currency amount.
	KindFixed Kind = "fixed"
)

// RuleConfig is the atomic enable/type/value/condition-range unit reused by
// every rule category. ConditionMin and ConditionMax form an inclusive range.
// ApplyFixedOnce is carried into audit metadata only; it never changes the math.
type RuleConfig struct {
	Enabled        bool             `json:"isEnabled"`
	Name           string           `json:"name" validate:"max=120"`
	Type           Kind             `json:"type" validate:"omitempty,oneof=percentage fixed"`
	Value          decimal.Decimal  `json:"value" validate:"gte=0"`
	ConditionMin   *decimal.Decimal `json:"conditionMin,omitempty" validate:"omitempty,gte=0"`
	ConditionMax   *decimal.Decimal `json:"conditionMax,omitempty" validate:"omitempty,gte=0"`
	ApplyFixedOnce bool             `json:"applyFixedOnce,omitempty"`
}

// ItemRules bundles the four per-line rule shapes.
type ItemRules struct {
	Value             *RuleConfig `json:"valueRule,omitempty"`
	Quantity          *RuleConfig `json:"quantityRule,omitempty"`
	SpecificQuantity  *RuleConfig `json:"specificQtyThresholdRule,omitempty"`
	SpecificUnitPrice *RuleConfig `json:"specificUnitPriceThresholdRule,omitempty"`
}

// ProductConfig scopes ItemRules to one product.
type ProductConfig struct {
	ProductID string    `json:"productId" validate:"required"`
	Active    bool      `json:"isActiveForProductInCampaign"`
	Rules     ItemRules `json:"rules"`
}

// BatchConfig scopes a value rule and a quantity rule to one inventory batch.
type BatchConfig struct {
	BatchID   string      `json:"batchId" validate:"required"`
	ProductID string      `json:"productId,omitempty"`
	Active    bool        `json:"isActiveForBatchInCampaign"`
	Value     *RuleConfig `json:"valueRule,omitempty"`
	Quantity  *RuleConfig `json:"quantityRule,omitempty"`
}

// BuyGetRule grants GetQuantity units of GetProductID for every BuyQuantity
// units of BuyProductID in the cart.
type BuyGetRule struct {
	ID            string          `json:"id,omitempty"`
	Name          string          `json:"name,omitempty"`
	BuyProductID  string          `json:"buyProductId" validate:"required"`
	BuyQuantity   decimal.Decimal `json:"buyQuantity" validate:"gt=0"`
	GetProductID  string          `json:"getProductId" validate:"required"`
	GetQuantity   decimal.Decimal `json:"getQuantity" validate:"gt=0"`
	DiscountType  Kind            `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue decimal.Decimal `json:"discountValue" validate:"gte=0"`
	Repeatable    bool            `json:"isRepeatable"`
}

// CartRules are evaluated once against the whole cart after item discounts.
type CartRules struct {
	Price    *RuleConfig `json:"priceRule,omitempty"`
	Quantity *RuleConfig `json:"quantityRule,omitempty"`
}

// Campaign is a named, versioned bundle of discount rules (a discount set).
type Campaign struct {
	ID          string          `json:"id"`
	Name        string          `json:"name" validate:"required,max=120"`
	Version     int             `json:"version"`
	IsActive    bool            `json:"isActive"`
	IsDefault   bool            `json:"isDefault"`
	Products    []ProductConfig `json:"productConfigurations,omitempty" validate:"unique=ProductID,dive"`
	Batches     []BatchConfig   `json:"batchConfigurations,omitempty" validate:"unique=BatchID,dive"`
	BuyGet      []BuyGetRule    `json:"buyGetRules,omitempty" validate:"dive"`
	DefaultItem ItemRules       `json:"defaultItemRules"`
	Cart        CartRules       `json:"cartRules"`
}

// IsZero reports whether c carries no identity, meaning "no campaign".
func (c Campaign) IsZero() bool {
	return c.ID == "" && c.Name == "" && len(c.Products) == 0 && len(c.Batches) == 0 &&
		len(c.BuyGet) == 0 && c.DefaultItem == (ItemRules{}) && c.Cart == (CartRules{})
}
