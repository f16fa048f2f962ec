package core

import "nurserycore/pkg/domain"

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set
// guarding the batch ledger invariants.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewQuantityBoundsRule())
	engine.Register(NewBatchNumberUniqueRule())
	engine.Register(NewLogAppendOnlyRule())
	engine.Register(NewLifecycleTransitionRule())
	return engine
}
