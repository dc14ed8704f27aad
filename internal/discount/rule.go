package discount

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Subject is the line (or cart) a rule is evaluated against.
type Subject struct {
	UnitPrice decimal.Decimal
	Quantity  decimal.Decimal
	LineTotal decimal.Decimal
}

// Evaluate returns the discount cfg grants on s. The tested value defaults to
// the line total when valueToTest is nil. A nil, disabled, malformed or
// out-of-range rule yields zero. The result is clamped to [0, s.LineTotal].
func Evaluate(cfg *RuleConfig, s Subject, valueToTest *decimal.Decimal) decimal.Decimal {
	if cfg == nil || !cfg.Enabled || !cfg.wellFormed() {
		return decimal.Zero
	}
	tested := s.LineTotal
	if valueToTest != nil {
		tested = *valueToTest
	}
	if !cfg.InRange(tested) {
		return decimal.Zero
	}
	var raw decimal.Decimal
	switch cfg.Type {
	case KindFixed:
		raw = cfg.Value
	case KindPercentage:
		raw = percentOf(s.LineTotal, cfg.Value)
	default:
		return decimal.Zero
	}
	return clamp(raw, s.LineTotal)
}

// InRange reports whether v lies in [ConditionMin ?? 0, ConditionMax ?? +inf].
func (r *RuleConfig) InRange(v decimal.Decimal) bool {
	lo := decimal.Zero
	if r.ConditionMin != nil {
		lo = *r.ConditionMin
	}
	if v.LessThan(lo) {
		return false
	}
	if r.ConditionMax != nil && v.GreaterThan(*r.ConditionMax) {
		return false
	}
	return true
}

// wellFormed is the evaluation-time sanity check. Historical data that fails
// it contributes nothing instead of failing checkout.
func (r *RuleConfig) wellFormed() bool {
	if r.Value.IsNegative() {
		return false
	}
	if r.ConditionMin != nil && r.ConditionMax != nil && r.ConditionMax.LessThan(*r.ConditionMin) {
		return false
	}
	return true
}

func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}

func clamp(v, upper decimal.Decimal) decimal.Decimal {
	if !upper.IsPositive() || !v.IsPositive() {
		return decimal.Zero
	}
	if v.GreaterThan(upper) {
		return upper
	}
	return v
}
