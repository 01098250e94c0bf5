package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/deep-research/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker re-evaluates session health on an interval. An alert type is
// sent when it first fires and then held back until a check finds it
// cleared.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
	log       *zap.Logger

	// Only touched from the Run goroutine.
	firing map[AlertType]bool
}

// NewChecker creates a checker from the monitoring config.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  cfg.LookbackWindowHours,
		log:       zap.L().Named("monitoring"),
		firing:    make(map[AlertType]bool),
	}
}

// Run checks once immediately and then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.log.Info("health checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.check(ctx)
		select {
		case <-ctx.Done():
			c.log.Info("health checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// check returns the alerts it delivered or attempted to deliver.
func (c *Checker) check(ctx context.Context) []Alert {
	if ctx.Err() != nil {
		return nil
	}
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		c.log.Error("collect metrics failed", zap.Error(err))
		return nil
	}

	current := c.alerter.Evaluate(snap)
	next := make(map[AlertType]bool, len(current))
	var fresh []Alert
	for _, a := range current {
		next[a.Type] = true
		if !c.firing[a.Type] {
			fresh = append(fresh, a)
		}
	}
	for t := range c.firing {
		if !next[t] {
			c.log.Info("alert cleared", zap.String("type", string(t)))
		}
	}
	c.firing = next

	if len(fresh) == 0 {
		c.log.Debug("health check passed",
			zap.Int("sessions", snap.SessionsTotal),
			zap.Int("still_firing", len(current)),
		)
		return nil
	}
	sent := c.alerter.SendAlerts(ctx, fresh)
	c.log.Info("health check raised alerts",
		zap.Int("new", len(fresh)),
		zap.Int("sent", sent),
	)
	return fresh
}
