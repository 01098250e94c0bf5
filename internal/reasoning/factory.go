package reasoning

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deep-research/internal/config"
	"github.com/sells-group/deep-research/internal/cost"
	"github.com/sells-group/deep-research/internal/resilience"
	"github.com/sells-group/deep-research/pkg/anthropic"
)

// NewFromConfig builds the backend selected by reasoning.backend.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Service, error) {
	switch cfg.Reasoning.Backend {
	case "anthropic", "":
		rates := cost.DefaultModelRates()
		for name, p := range cfg.Pricing.Anthropic {
			rates[name] = cost.ModelRate{Input: p.Input, Output: p.Output}
		}
		breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Reasoning.FailureThreshold,
			ResetTimeout:     time.Duration(cfg.Reasoning.ResetTimeoutSecs) * time.Second,
		})
		return NewAnthropicService(
			anthropic.NewClient(cfg.Anthropic.Key),
			cfg.Anthropic.Model,
			cfg.Anthropic.MaxTokens,
			WithCalculator(cost.NewCalculator(rates)),
			WithBreaker(breaker),
		), nil
	case "mcp":
		return StartMCPService(ctx, cfg.Reasoning.Command, cfg.Reasoning.Args...)
	default:
		return nil, eris.Errorf("reasoning: unknown backend %q", cfg.Reasoning.Backend)
	}
}
