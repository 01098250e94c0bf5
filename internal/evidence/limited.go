package evidence

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/resilience"
)

// Limited throttles a Source and retries transient failures.
type Limited struct {
	next    Source
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewLimited wraps next with a token bucket of rps requests per second and
// the given burst. A non-positive rps disables throttling.
func NewLimited(next Source, rps float64, burst int, retry resilience.RetryConfig) *Limited {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(next.Name(), "search")
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		retry:   retry,
	}
}

// Name implements Source.
func (l *Limited) Name() string { return l.next.Name() }

// Search waits for a token before every attempt.
func (l *Limited) Search(ctx context.Context, query string, maxResults int, depth model.Depth) ([]model.Evidence, error) {
	return resilience.DoVal(ctx, l.retry, func(ctx context.Context) ([]model.Evidence, error) {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "evidence: rate limit wait")
		}
		return l.next.Search(ctx, query, maxResults, depth)
	})
}
