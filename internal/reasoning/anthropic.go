package reasoning

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deep-research/internal/cost"
	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/resilience"
	"github.com/sells-group/deep-research/pkg/anthropic"
)

// AnthropicService reasons with one Messages API call per operation.
type AnthropicService struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	breaker   *resilience.CircuitBreaker
	retry     resilience.RetryConfig
	calc      *cost.Calculator
}

var _ Service = (*AnthropicService)(nil)

// AnthropicOption configures an AnthropicService.
type AnthropicOption func(*AnthropicService)

// WithCalculator prices calls from a per-model rate card.
func WithCalculator(c *cost.Calculator) AnthropicOption {
	return func(s *AnthropicService) { s.calc = c }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) AnthropicOption {
	return func(s *AnthropicService) { s.breaker = cb }
}

// WithRetry replaces the default retry policy.
func WithRetry(cfg resilience.RetryConfig) AnthropicOption {
	return func(s *AnthropicService) { s.retry = cfg }
}

// NewAnthropicService creates a service calling model through client.
func NewAnthropicService(client anthropic.Client, modelName string, maxTokens int64, opts ...AnthropicOption) *AnthropicService {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	s := &AnthropicService{
		client:    client,
		model:     modelName,
		maxTokens: maxTokens,
		retry:     resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.breaker == nil {
		s.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("reasoning: anthropic circuit changed",
					zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
	}
	return s
}

// Plan implements Service.
func (s *AnthropicService) Plan(ctx context.Context, query, planContext string) (*Plan, Usage, error) {
	text, usage, err := s.call(ctx, "plan", planSystem, planPrompt(query, planContext))
	if err != nil {
		return nil, usage, err
	}
	var p Plan
	if !decodeJSON(text, &p) {
		zap.L().Warn("reasoning: malformed plan, using fallback", zap.String("query", query))
		return FallbackPlan(query), usage, nil
	}
	return normalizePlan(&p, query), usage, nil
}

// GenerateHypotheses implements Service. Malformed output yields none.
func (s *AnthropicService) GenerateHypotheses(ctx context.Context, researchContext string, evidence []model.Evidence) ([]Hypothesis, Usage, error) {
	text, usage, err := s.call(ctx, "generate_hypotheses", hypothesesSystem, hypothesesPrompt(researchContext, evidence))
	if err != nil {
		return nil, usage, err
	}
	var hs []Hypothesis
	if !decodeJSON(text, &hs) {
		zap.L().Warn("reasoning: malformed hypotheses, returning none")
		return nil, usage, nil
	}
	return normalizeHypotheses(hs), usage, nil
}

// TestHypothesis implements Service. Malformed output keeps the prior.
func (s *AnthropicService) TestHypothesis(ctx context.Context, h Hypothesis, evidence []model.Evidence) (*TestResult, Usage, error) {
	text, usage, err := s.call(ctx, "test_hypothesis", testSystem, testPrompt(h, evidence))
	if err != nil {
		return nil, usage, err
	}
	var r TestResult
	if !decodeJSON(text, &r) {
		zap.L().Warn("reasoning: malformed test result, keeping prior", zap.String("hypothesis", h.Statement))
		return fallbackTest(h, len(evidence)), usage, nil
	}
	return normalizeTest(&r, h, len(evidence)), usage, nil
}

// Synthesize implements Service. Malformed output falls back to the
// evidence-weighted mean of the posteriors.
func (s *AnthropicService) Synthesize(ctx context.Context, results []TestResult, query string) (*Synthesis, Usage, error) {
	text, usage, err := s.call(ctx, "synthesize", synthesizeSystem, synthesizePrompt(results, query))
	if err != nil {
		return nil, usage, err
	}
	var syn Synthesis
	if !decodeJSON(text, &syn) {
		zap.L().Warn("reasoning: malformed synthesis, using weighted posteriors")
		return FallbackSynthesis(results), usage, nil
	}
	return normalizeSynthesis(&syn, results), usage, nil
}

// Close implements Service.
func (s *AnthropicService) Close() error { return nil }

func (s *AnthropicService) call(ctx context.Context, op, system, prompt string) (string, Usage, error) {
	temp := 0.2
	req := anthropic.MessageRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		System:      anthropic.CachedSystem(system),
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	}

	retry := s.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("anthropic", op)
	}

	start := time.Now()
	resp, err := resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return s.client.CreateMessage(ctx, req)
		})
	})
	if err != nil {
		return "", Usage{}, eris.Wrapf(err, "reasoning: %s", op)
	}

	usage := Usage{Tokens: int(resp.Usage.Total())}
	if c, ok := s.calc.Tokens(s.model, resp.Usage.InputTokens+resp.Usage.CacheCreationInputTokens+resp.Usage.CacheReadInputTokens, resp.Usage.OutputTokens); ok {
		usage.Cost = c
		usage.Priced = true
	}

	zap.L().Debug("reasoning: call complete",
		zap.String("op", op),
		zap.Int("tokens", usage.Tokens),
		zap.Float64("cost", usage.Cost),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp.Text(), usage, nil
}
