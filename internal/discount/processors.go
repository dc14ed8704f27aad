package discount

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ProcessorKind names one of the fixed rule processor variants.
type ProcessorKind string

const (
	KindCustomOverride  ProcessorKind = "custom_item_override"
	KindBatchSpecific   ProcessorKind = "batch_specific"
	KindProductSpecific ProcessorKind = "product_specific"
	KindBuyGet          ProcessorKind = "buy_x_get_y"
	KindCampaignDefault ProcessorKind = "campaign_default_item"
	KindCartTotal       ProcessorKind = "cart_total"
)

// Processor writes discounts into a Result. Implementations are limited to
// the variants in this package; Apply only ever adds applications and
// leaves lines that already carry a discount to the processor that got there
// first.
type Processor interface {
	Kind() ProcessorKind
	Apply(cart Cart, res *Result)
	sealed()
}

type setRef struct {
	id   string
	name string
}

func (s setRef) info(kind ProcessorKind, cfg *RuleConfig) AppliedRuleInfo {
	info := AppliedRuleInfo{
		DiscountSetID:   s.id,
		DiscountSetName: s.name,
		Source:          kind,
	}
	if cfg != nil {
		info.RuleName = cfg.Name
		info.RuleType = cfg.Type
		info.RuleValue = cfg.Value
		info.ApplyFixedOnce = cfg.ApplyFixedOnce
	}
	return info
}

// ruleSlot pairs a rule with the value it is tested against.
type ruleSlot struct {
	key  string
	cfg  *RuleConfig
	test func(Subject) decimal.Decimal
}

func byLineTotal(s Subject) decimal.Decimal { return s.LineTotal }
func byQuantity(s Subject) decimal.Decimal  { return s.Quantity }
func byUnitPrice(s Subject) decimal.Decimal { return s.UnitPrice }

func itemSlots(r ItemRules) []ruleSlot {
	return []ruleSlot{
		{key: "value", cfg: r.Value, test: byLineTotal},
		{key: "quantity", cfg: r.Quantity, test: byQuantity},
		{key: "specific_qty", cfg: r.SpecificQuantity, test: byQuantity},
		{key: "specific_unit_price", cfg: r.SpecificUnitPrice, test: byUnitPrice},
	}
}

func lineSubject(l *LineResult) Subject {
	return Subject{UnitPrice: l.unitPrice, Quantity: l.quantity, LineTotal: l.OriginalTotal()}
}

// applySlots evaluates every slot against the line and adds what fires.
// Slots stack; AddDiscount keeps the total within the line value.
func applySlots(set setRef, kind ProcessorKind, scope string, l *LineResult, slots []ruleSlot) {
	subject := lineSubject(l)
	for _, slot := range slots {
		if slot.cfg == nil {
			continue
		}
		tested := slot.test(subject)
		amount := Evaluate(slot.cfg, subject, &tested)
		if !amount.IsPositive() {
			continue
		}
		l.AddDiscount(Application{
			RuleID:      fmt.Sprintf("%s:%s:%s", kind, scope, slot.key),
			Amount:      amount,
			Description: describe(kind, slot.cfg),
			Info:        set.info(kind, slot.cfg),
		})
	}
}

func describe(kind ProcessorKind, cfg *RuleConfig) string {
	label := ""
	switch kind {
	case KindCustomOverride:
		label = "Manual discount"
	case KindBatchSpecific:
		label = "Batch discount"
	case KindProductSpecific:
		label = "Product discount"
	case KindBuyGet:
		label = "Buy X get Y"
	case KindCampaignDefault:
		label = "Campaign discount"
	case KindCartTotal:
		label = "Cart discount"
	}
	if cfg != nil && cfg.Name != "" {
		return label + ": " + cfg.Name
	}
	return label
}

type customOverride struct {
	set setRef
}

func (customOverride) Kind() ProcessorKind { return KindCustomOverride }
func (customOverride) sealed()             {}

func (p customOverride) Apply(cart Cart, res *Result) {
	for _, it := range cart.Items {
		if it.Override == nil || !it.Override.Value.IsPositive() {
			continue
		}
		l, ok := res.Line(it.LineID)
		if !ok {
			continue
		}
		lineTotal := l.OriginalTotal()
		var amount decimal.Decimal
		switch it.Override.Type {
		case KindFixed:
			amount = it.Override.Value.Mul(l.quantity)
		case KindPercentage:
			amount = percentOf(lineTotal, it.Override.Value)
		default:
			continue
		}
		amount = clamp(amount, lineTotal)
		info := p.set.info(KindCustomOverride, nil)
		info.RuleType = it.Override.Type
		info.RuleValue = it.Override.Value
		l.AddDiscount(Application{
			RuleID:      fmt.Sprintf("%s:%s", KindCustomOverride, it.LineID),
			Amount:      amount,
			Description: describe(KindCustomOverride, nil),
			Info:        info,
		})
	}
}

type batchRule struct {
	set setRef
	cfg BatchConfig
}

func (batchRule) Kind() ProcessorKind { return KindBatchSpecific }
func (batchRule) sealed()             {}

func (p batchRule) Apply(cart Cart, res *Result) {
	if !p.cfg.Active || p.cfg.BatchID == "" {
		return
	}
	for _, it := range cart.Items {
		if it.BatchID != p.cfg.BatchID {
			continue
		}
		l, ok := res.Line(it.LineID)
		if !ok || l.totalDiscount.IsPositive() {
			return
		}
		applySlots(p.set, KindBatchSpecific, p.cfg.BatchID, l, []ruleSlot{
			{key: "value", cfg: p.cfg.Value, test: byLineTotal},
			{key: "quantity", cfg: p.cfg.Quantity, test: byQuantity},
		})
		return
	}
}

type productRule struct {
	set setRef
	cfg ProductConfig
}

func (productRule) Kind() ProcessorKind { return KindProductSpecific }
func (productRule) sealed()             {}

func (p productRule) Apply(cart Cart, res *Result) {
	if !p.cfg.Active || p.cfg.ProductID == "" {
		return
	}
	slots := itemSlots(p.cfg.Rules)
	for _, it := range cart.Items {
		if it.ProductID != p.cfg.ProductID {
			continue
		}
		l, ok := res.Line(it.LineID)
		if !ok || l.totalDiscount.IsPositive() {
			continue
		}
		applySlots(p.set, KindProductSpecific, p.cfg.ProductID, l, slots)
	}
}

type campaignDefault struct {
	set   setRef
	rules ItemRules
}

func (campaignDefault) Kind() ProcessorKind { return KindCampaignDefault }
func (campaignDefault) sealed()             {}

func (p campaignDefault) Apply(cart Cart, res *Result) {
	slots := itemSlots(p.rules)
	for _, it := range cart.Items {
		l, ok := res.Line(it.LineID)
		if !ok || l.totalDiscount.IsPositive() {
			continue
		}
		applySlots(p.set, KindCampaignDefault, "default", l, slots)
	}
}

type cartTotal struct {
	set   setRef
	rules CartRules
}

func (cartTotal) Kind() ProcessorKind { return KindCartTotal }
func (cartTotal) sealed()             {}

func (p cartTotal) Apply(_ Cart, res *Result) {
	subtotal := res.NetSubtotal()
	qty := res.TotalQuantity()
	subject := Subject{UnitPrice: subtotal, Quantity: qty, LineTotal: subtotal}
	slots := []ruleSlot{
		{key: "price", cfg: p.rules.Price, test: byLineTotal},
		{key: "quantity", cfg: p.rules.Quantity, test: byQuantity},
	}
	for _, slot := range slots {
		if slot.cfg == nil {
			continue
		}
		tested := slot.test(subject)
		amount := Evaluate(slot.cfg, subject, &tested)
		if !amount.IsPositive() {
			continue
		}
		res.AddCartDiscount(Application{
			RuleID:      fmt.Sprintf("%s:%s", KindCartTotal, slot.key),
			Amount:      amount,
			Description: describe(KindCartTotal, slot.cfg),
			Info:        p.set.info(KindCartTotal, slot.cfg),
		})
	}
}
