package evidence

import (
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deep-research/internal/config"
	"github.com/sells-group/deep-research/internal/resilience"
	"github.com/sells-group/deep-research/pkg/jina"
	"github.com/sells-group/deep-research/pkg/perplexity"
	"github.com/sells-group/deep-research/pkg/tavily"
)

// NewFromConfig builds the configured provider wrapped in Limited.
func NewFromConfig(cfg *config.Config) (Source, error) {
	timeout := time.Duration(cfg.Evidence.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	hc := &http.Client{Timeout: timeout}

	var src Source
	switch cfg.Evidence.Provider {
	case "tavily", "":
		src = NewTavilySource(tavily.NewClient(cfg.Tavily.Key,
			tavily.WithBaseURL(cfg.Tavily.BaseURL),
			tavily.WithSearchDepth(cfg.Tavily.SearchDepth),
			tavily.WithHTTPClient(hc),
		))
	case "jina":
		src = NewJinaSource(jina.NewClient(cfg.Jina.Key,
			jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL),
			jina.WithHTTPClient(hc),
		))
	case "perplexity":
		src = NewPerplexitySource(perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
			perplexity.WithHTTPClient(hc),
		))
	default:
		return nil, eris.Errorf("evidence: unknown provider %q", cfg.Evidence.Provider)
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.Evidence.Retries > 0 {
		retry.MaxAttempts = cfg.Evidence.Retries
	}
	return NewLimited(src, cfg.Evidence.RequestsPerSecond, cfg.Evidence.Burst, retry), nil
}
