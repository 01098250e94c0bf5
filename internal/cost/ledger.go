package cost

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deep-research/internal/model"
)

// Budget thresholds as a fraction of the session budget.
const (
	ThresholdMedium   = 0.75
	ThresholdHigh     = 0.90
	ThresholdCritical = 1.00
)

// Ledger records hop costs on a session and raises budget alerts.
type Ledger struct {
	pricing *PricingSource
}

// NewLedger creates a Ledger reading rates from pricing.
func NewLedger(pricing *PricingSource) *Ledger {
	return &Ledger{pricing: pricing}
}

// RecordOption overrides a computed cost component.
type RecordOption func(*recordOpts)

type recordOpts struct {
	searchCost    *float64
	reasoningCost *float64
}

// WithSearchCost replaces ops × rate with an explicit search cost.
func WithSearchCost(c float64) RecordOption {
	return func(o *recordOpts) { o.searchCost = &c }
}

// WithReasoningCost replaces tokens/1000 × rate with an explicit reasoning cost.
func WithReasoningCost(c float64) RecordOption {
	return func(o *recordOpts) { o.reasoningCost = &c }
}

// Record prices a hop, writes the costs onto it and stores it in the
// session (replacing any hop with the same number). The session total is
// recomputed from all hops, then budget thresholds are checked against the
// session's budget target.
func (l *Ledger) Record(session *model.ResearchSession, hop model.Hop, searchOps, tokens int, opts ...RecordOption) (model.CostBreakdown, *model.BudgetAlert, error) {
	if session == nil {
		return model.CostBreakdown{}, nil, eris.New("cost: nil session")
	}
	if hop.Number < 1 {
		return model.CostBreakdown{}, nil, eris.Errorf("cost: invalid hop number %d", hop.Number)
	}
	if searchOps < 0 || tokens < 0 {
		return model.CostBreakdown{}, nil, eris.Errorf("cost: negative usage (searches=%d tokens=%d)", searchOps, tokens)
	}

	o := &recordOpts{}
	for _, opt := range opts {
		opt(o)
	}

	rates := l.pricing.Get()
	searchCost := float64(searchOps) * rates.TavilyPerSearch
	if o.searchCost != nil {
		searchCost = *o.searchCost
	}
	reasoningCost := float64(tokens) / 1000 * rates.LLMPer1KTokens
	if o.reasoningCost != nil {
		reasoningCost = *o.reasoningCost
	}

	hop.SearchCost = searchCost
	hop.ReasoningTokens = tokens
	hop.ReasoningCost = reasoningCost
	upsertHop(session, hop)

	session.TotalCost = session.HopCostSum()

	breakdown := model.NewCostBreakdown(searchCost, tokens, reasoningCost)
	return breakdown, l.CheckThreshold(session, session.BudgetTarget), nil
}

func upsertHop(session *model.ResearchSession, hop model.Hop) {
	for i := range session.Hops {
		if session.Hops[i].Number == hop.Number {
			session.Hops[i] = hop
			return
		}
	}
	session.Hops = append(session.Hops, hop)
}

// CheckThreshold compares the session total against budget and appends an
// alert for the highest band crossed. A band already alerted on the session
// is not raised again, so escalation yields one alert per band. Returns nil
// when there is no budget or nothing new to report.
func (l *Ledger) CheckThreshold(session *model.ResearchSession, budget float64) *model.BudgetAlert {
	if session == nil || budget <= 0 {
		return nil
	}

	ratio := session.TotalCost / budget
	var (
		level     model.AlertLevel
		threshold float64
	)
	switch {
	case ratio >= ThresholdCritical:
		level, threshold = model.AlertCritical, ThresholdCritical
	case ratio >= ThresholdHigh:
		level, threshold = model.AlertHigh, ThresholdHigh
	case ratio >= ThresholdMedium:
		level, threshold = model.AlertMedium, ThresholdMedium
	default:
		return nil
	}

	for _, prev := range session.Alerts {
		if prev.Level.Rank() >= level.Rank() {
			return nil
		}
	}

	pct := ratio * 100
	alert := model.BudgetAlert{
		SessionID:      session.ID,
		Level:          level,
		Threshold:      threshold,
		CurrentCost:    session.TotalCost,
		BudgetLimit:    budget,
		PercentageUsed: pct,
		Message:        alertMessage(level, session.TotalCost, budget, pct),
		Timestamp:      time.Now().UTC(),
	}
	session.Alerts = append(session.Alerts, alert)
	session.BudgetWarnings = append(session.BudgetWarnings, alert.Message)
	return &alert
}

func alertMessage(level model.AlertLevel, spent, budget, pct float64) string {
	switch level {
	case model.AlertCritical:
		return fmt.Sprintf("CRITICAL: budget exhausted, $%.4f spent of $%.2f (%.1f%%)", spent, budget, pct)
	case model.AlertHigh:
		return fmt.Sprintf("WARNING: $%.4f spent of $%.2f budget (%.1f%%)", spent, budget, pct)
	default:
		return fmt.Sprintf("NOTICE: $%.4f spent of $%.2f budget (%.1f%%)", spent, budget, pct)
	}
}

// CanAfford reports whether an operation of the estimated cost still fits.
// Sessions without a budget can always afford it.
func (l *Ledger) CanAfford(session *model.ResearchSession, estimate, budget float64) bool {
	if budget <= 0 {
		return true
	}
	return session.TotalCost+estimate <= budget
}

// Estimate prices a prospective operation at the current rates.
func (l *Ledger) Estimate(searchOps, tokens int) float64 {
	rates := l.pricing.Get()
	return float64(searchOps)*rates.TavilyPerSearch + float64(tokens)/1000*rates.LLMPer1KTokens
}
