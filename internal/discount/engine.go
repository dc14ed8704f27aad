// Package discount turns a cart and a campaign into per-line and per-cart
// discounts. Everything here is a pure, synchronous computation: an Engine
// holds no mutable state and every Process call owns a fresh Result, so one
// engine may be shared by concurrent callers.
package discount

// Engine runs the fixed-order processor pipeline built from one campaign.
type Engine struct {
	pipeline []Processor
}

// NewEngine builds the pipeline. Order is the precedence policy: manual
// overrides, batch rules, product rules, buy-x-get-y, campaign defaults, then
// cart-wide rules. There is one batch/product processor per configuration.
func NewEngine(c Campaign) *Engine {
	set := setRef{id: c.ID, name: c.Name}
	pipeline := make([]Processor, 0, len(c.Batches)+len(c.Products)+4)
	pipeline = append(pipeline, customOverride{set: set})
	for _, b := range c.Batches {
		pipeline = append(pipeline, batchRule{set: set, cfg: b})
	}
	for _, p := range c.Products {
		pipeline = append(pipeline, productRule{set: set, cfg: p})
	}
	if len(c.BuyGet) > 0 {
		rules := append([]BuyGetRule(nil), c.BuyGet...)
		pipeline = append(pipeline, buyGet{set: set, rules: rules})
	}
	pipeline = append(pipeline,
		campaignDefault{set: set, rules: c.DefaultItem},
		cartTotal{set: set, rules: c.Cart},
	)
	return &Engine{pipeline: pipeline}
}

// Pipeline lists the processor kinds in execution order.
func (e *Engine) Pipeline() []ProcessorKind {
	kinds := make([]ProcessorKind, 0, len(e.pipeline))
	for _, p := range e.pipeline {
		kinds = append(kinds, p.Kind())
	}
	return kinds
}

// Process runs every processor once over cart and returns the finalized result.
func (e *Engine) Process(cart Cart) *Result {
	res := NewResult(cart)
	for _, p := range e.pipeline {
		p.Apply(cart, res)
	}
	res.finalize()
	return res
}
