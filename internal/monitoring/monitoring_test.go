package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/deep-research/internal/config"
	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/store"
)

type fakeSessions struct {
	sessions []model.ResearchSession
	err      error
	filter   store.SessionFilter
}

func (f *fakeSessions) ListSessions(_ context.Context, filter store.SessionFilter) ([]model.ResearchSession, error) {
	f.filter = filter
	return f.sessions, f.err
}

func session(status model.SessionStatus, started time.Time, cost, conf float64, hops int) model.ResearchSession {
	s := model.ResearchSession{Status: status, StartedAt: started, TotalCost: cost, FinalConfidence: conf}
	for i := 0; i < hops; i++ {
		s.Hops = append(s.Hops, model.Hop{Number: i + 1})
	}
	return s
}

func TestCollector_Collect(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	old := session(model.SessionComplete, now.Add(-48*time.Hour), 9, 1, 1)
	exhausted := session(model.SessionComplete, now.Add(-time.Hour), 0.5, 0.6, 3)
	exhausted.StopReason = model.StopBudgetExhausted

	fs := &fakeSessions{sessions: []model.ResearchSession{
		session(model.SessionComplete, now.Add(-2*time.Hour), 0.2, 0.9, 1),
		exhausted,
		session(model.SessionError, now.Add(-3*time.Hour), 0.1, 0, 2),
		session(model.SessionSearching, now.Add(-time.Minute), 0.05, 0, 0),
		old,
	}}
	c := NewCollector(fs)
	c.now = func() time.Time { return now }

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, -1, fs.filter.Limit)
	assert.Equal(t, 4, snap.SessionsTotal)
	assert.Equal(t, 2, snap.SessionsComplete)
	assert.Equal(t, 1, snap.SessionsFailed)
	assert.Equal(t, 1, snap.SessionsInProgress)
	assert.Equal(t, 1, snap.BudgetExhausted)
	assert.InDelta(t, 1.0/3, snap.FailRate, 1e-9)
	assert.InDelta(t, 0.85, snap.CostUSD, 1e-9)
	assert.InDelta(t, 0.75, snap.AvgConfidence, 1e-9)
	assert.InDelta(t, 1.5, snap.AvgHops, 1e-9)

	all, err := c.Collect(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, all.SessionsTotal)
}

func TestCollector_Error(t *testing.T) {
	t.Parallel()
	_, err := NewCollector(&fakeSessions{err: errors.New("db down")}).Collect(context.Background(), 24)
	assert.ErrorContains(t, err, "monitoring: list sessions")
}

func TestAlerter_Evaluate(t *testing.T) {
	t.Parallel()
	cfg := config.MonitoringConfig{FailureRateThreshold: 0.10, CostThresholdUSD: 5}

	tests := []struct {
		name  string
		snap  MetricsSnapshot
		types []AlertType
	}{
		{
			name: "healthy",
			snap: MetricsSnapshot{SessionsComplete: 19, SessionsFailed: 1, FailRate: 0.05, CostUSD: 1},
		},
		{
			name:  "failure rate",
			snap:  MetricsSnapshot{SessionsComplete: 6, SessionsFailed: 4, FailRate: 0.4, LookbackHours: 24},
			types: []AlertType{AlertSessionFailureRate},
		},
		{
			name: "too few finished",
			snap: MetricsSnapshot{SessionsComplete: 1, SessionsFailed: 3, FailRate: 0.75},
		},
		{
			name:  "both",
			snap:  MetricsSnapshot{SessionsComplete: 5, SessionsFailed: 5, FailRate: 0.5, CostUSD: 12},
			types: []AlertType{AlertSessionFailureRate, AlertCostOverrun},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			alerts := NewAlerter(cfg).Evaluate(&tt.snap)
			var got []AlertType
			for _, a := range alerts {
				got = append(got, a.Type)
			}
			assert.Equal(t, tt.types, got)
		})
	}
}

func TestAlerter_Evaluate_MessageFormat(t *testing.T) {
	t.Parallel()
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.1})
	alerts := a.Evaluate(&MetricsSnapshot{SessionsComplete: 12, SessionsFailed: 8, FailRate: 0.4, LookbackHours: 24})
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Contains(t, alerts[0].Message, "8 failed / 20 finished")
}

func TestAlerter_Notify(t *testing.T) {
	t.Parallel()
	var got Alert
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	a.Notify(context.Background(), model.BudgetAlert{
		SessionID:      "sess-1",
		Level:          model.AlertCritical,
		Threshold:      1,
		CurrentCost:    0.21,
		BudgetLimit:    0.2,
		PercentageUsed: 105,
		Message:        "CRITICAL: budget exhausted",
		Timestamp:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, AlertBudgetThreshold, got.Type)
	assert.Equal(t, "high", got.Severity)
	assert.Equal(t, "sess-1", got.Details["session_id"])
	assert.Equal(t, "critical", got.Details["level"])
}

func TestAlerter_SendAlerts(t *testing.T) {
	t.Parallel()

	t.Run("empty url", func(t *testing.T) {
		t.Parallel()
		a := NewAlerter(config.MonitoringConfig{})
		assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertCostOverrun}}))
		a.Notify(context.Background(), model.BudgetAlert{Level: model.AlertMedium})
	})

	t.Run("webhook error", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()
		a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
		assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertCostOverrun}}))
	})

	t.Run("delivered", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()
		a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
		assert.Equal(t, 2, a.SendAlerts(context.Background(), []Alert{{Type: AlertCostOverrun}, {Type: AlertSessionFailureRate}}))
	})
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	t.Parallel()
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(&fakeSessions{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_CheckSendsAlertsOncePerEpisode(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.MonitoringConfig{WebhookURL: srv.URL, CostThresholdUSD: 1, LookbackWindowHours: 0}
	fs := &fakeSessions{sessions: []model.ResearchSession{session(model.SessionComplete, time.Now(), 3, 0.9, 2)}}
	checker := NewChecker(NewCollector(fs), NewAlerter(cfg), cfg)
	ctx := context.Background()

	first := checker.check(ctx)
	require.Len(t, first, 1)
	assert.Equal(t, AlertCostOverrun, first[0].Type)
	assert.Equal(t, int32(1), calls.Load())

	assert.Empty(t, checker.check(ctx), "still firing, not resent")
	assert.Equal(t, int32(1), calls.Load())

	fs.sessions = []model.ResearchSession{session(model.SessionComplete, time.Now(), 0.5, 0.9, 2)}
	assert.Empty(t, checker.check(ctx))

	fs.sessions = []model.ResearchSession{session(model.SessionComplete, time.Now(), 3, 0.9, 2)}
	assert.Len(t, checker.check(ctx), 1, "fires again after clearing")
	assert.Equal(t, int32(2), calls.Load())
}

func TestChecker_CollectError(t *testing.T) {
	t.Parallel()
	cfg := config.MonitoringConfig{CostThresholdUSD: 1}
	checker := NewChecker(NewCollector(&fakeSessions{err: errors.New("db down")}), NewAlerter(cfg), cfg)
	assert.Nil(t, checker.check(context.Background()))
}

func TestNewChecker_DefaultInterval(t *testing.T) {
	t.Parallel()
	checker := NewChecker(NewCollector(&fakeSessions{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.Equal(t, defaultCheckInterval, checker.interval)
}
