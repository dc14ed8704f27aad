package campaign

import (
	"fmt"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/discount"
)

var hundred = decimal.NewFromInt(100)

// NewValidator returns the shared validator with the campaign rules registered.
func NewValidator() *validator.Validate {
	v := common.NewValidator()
	Register(v)
	return v
}

// Register adds campaign struct-level rules to v: conditionMax >= conditionMin,
// percentages <= 100 and enabled rules carrying a type.
func Register(v *validator.Validate) {
	v.RegisterStructValidation(validateRule, discount.RuleConfig{})
	v.RegisterStructValidation(validateBuyGet, discount.BuyGetRule{})
}

func validateRule(sl validator.StructLevel) {
	r := sl.Current().Interface().(discount.RuleConfig)
	if r.ConditionMin != nil && r.ConditionMax != nil && r.ConditionMax.LessThan(*r.ConditionMin) {
		sl.ReportError(r.ConditionMax, "conditionMax", "ConditionMax", "gtefield", "conditionMin")
	}
	if r.Type == discount.KindPercentage && r.Value.GreaterThan(hundred) {
		sl.ReportError(r.Value, "value", "Value", "lte", "100")
	}
	if r.Enabled && r.Type == "" {
		sl.ReportError(r.Type, "type", "Type", "required", "")
	}
}

func validateBuyGet(sl validator.StructLevel) {
	r := sl.Current().Interface().(discount.BuyGetRule)
	if r.DiscountType == discount.KindPercentage && r.DiscountValue.GreaterThan(hundred) {
		sl.ReportError(r.DiscountValue, "discountValue", "DiscountValue", "lte", "100")
	}
}

// Validate runs the save-time checks. Failures wrap ErrInvalid and carry the
// validator field errors.
func Validate(v *validator.Validate, c discount.Campaign) error {
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
