package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/store"
)

// MetricsSnapshot holds a point-in-time view of research activity.
type MetricsSnapshot struct {
	SessionsTotal      int     `json:"sessions_total"`
	SessionsComplete   int     `json:"sessions_complete"`
	SessionsFailed     int     `json:"sessions_failed"`
	SessionsInProgress int     `json:"sessions_in_progress"`
	FailRate           float64 `json:"fail_rate"`
	CostUSD            float64 `json:"cost_usd"`
	AvgConfidence      float64 `json:"avg_confidence"`
	AvgHops            float64 `json:"avg_hops"`
	BudgetExhausted    int     `json:"budget_exhausted"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// SessionLister is the store capability the collector needs.
type SessionLister interface {
	ListSessions(ctx context.Context, filter store.SessionFilter) ([]model.ResearchSession, error)
}

// Collector gathers metrics from archived sessions.
type Collector struct {
	sessions SessionLister
	now      func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(sessions SessionLister) *Collector {
	return &Collector{sessions: sessions, now: time.Now}
}

// Collect summarises sessions started within the lookback window. A
// non-positive window covers every session.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{LookbackHours: lookbackHours, CollectedAt: now}

	sessions, err := c.sessions.ListSessions(ctx, store.SessionFilter{Limit: -1})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list sessions")
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	var confidence float64
	var hops int
	for _, s := range sessions {
		if lookbackHours > 0 && s.StartedAt.Before(cutoff) {
			continue
		}
		snap.SessionsTotal++
		snap.CostUSD += s.TotalCost
		hops += len(s.Hops)

		switch s.Status {
		case model.SessionComplete:
			snap.SessionsComplete++
			confidence += s.FinalConfidence
		case model.SessionError:
			snap.SessionsFailed++
		default:
			snap.SessionsInProgress++
		}
		if s.StopReason == model.StopBudgetExhausted {
			snap.BudgetExhausted++
		}
	}

	if finished := snap.SessionsComplete + snap.SessionsFailed; finished > 0 {
		snap.FailRate = float64(snap.SessionsFailed) / float64(finished)
	}
	if snap.SessionsComplete > 0 {
		snap.AvgConfidence = confidence / float64(snap.SessionsComplete)
	}
	if snap.SessionsTotal > 0 {
		snap.AvgHops = float64(hops) / float64(snap.SessionsTotal)
	}
	return snap, nil
}
