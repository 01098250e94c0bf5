// Package cost prices research operations and tracks spend against a
// session budget.
package cost

import "sync/atomic"

// Pricing holds the flat billing rates applied by the ledger.
type Pricing struct {
	TavilyPerSearch float64 `json:"tavily_per_search" yaml:"tavily_per_search" mapstructure:"tavily_per_search"`
	LLMPer1KTokens  float64 `json:"llm_per_1k_tokens" yaml:"llm_per_1k_tokens" mapstructure:"llm_per_1k_tokens"`
}

// DefaultPricing returns the built-in rates.
func DefaultPricing() Pricing {
	return Pricing{TavilyPerSearch: 0.01, LLMPer1KTokens: 0.003}
}

// PricingSource is the process-wide, runtime-swappable pricing reference.
// One source is created at startup and shared by every ledger. Writers are
// expected to be rare administrative actions.
type PricingSource struct {
	current atomic.Pointer[Pricing]
}

// NewPricingSource creates a source holding p.
func NewPricingSource(p Pricing) *PricingSource {
	s := &PricingSource{}
	s.Set(p)
	return s
}

// Get returns a snapshot of the current rates.
func (s *PricingSource) Get() Pricing {
	return *s.current.Load()
}

// Set replaces the rates. Hops already recorded keep the cost computed at
// record time.
func (s *PricingSource) Set(p Pricing) {
	s.current.Store(&p)
}
