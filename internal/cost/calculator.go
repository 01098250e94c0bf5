package cost

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator prices LLM calls for models with a known rate card.
type Calculator struct {
	rates map[string]ModelRate
}

// NewCalculator creates a Calculator with the given per-model rates.
func NewCalculator(rates map[string]ModelRate) *Calculator {
	return &Calculator{rates: rates}
}

// Tokens computes the exact cost of one call. ok is false for models without
// a rate card, in which case callers fall back to the flat ledger rate.
func (c *Calculator) Tokens(model string, input, output int64) (cost float64, ok bool) {
	if c == nil {
		return 0, false
	}
	rate, ok := c.rates[model]
	if !ok {
		return 0, false
	}
	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	return inCost + outCost, true
}

// DefaultModelRates returns published rates for the Claude models the
// reasoning backend is usually pointed at.
func DefaultModelRates() map[string]ModelRate {
	return map[string]ModelRate{
		"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
	}
}
