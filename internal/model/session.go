package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Depth selects how much effort a research session may spend.
type Depth string

const (
	DepthQuick    Depth = "quick"
	DepthStandard Depth = "standard"
	DepthDeep     Depth = "deep"
)

// DepthProfile is the default budget and hop ceiling for a depth tier.
type DepthProfile struct {
	Budget  float64 `json:"budget" yaml:"budget" mapstructure:"budget"`
	MaxHops int     `json:"max_hops" yaml:"max_hops" mapstructure:"max_hops"`
}

// DefaultDepthProfiles returns the built-in tier table.
func DefaultDepthProfiles() map[Depth]DepthProfile {
	return map[Depth]DepthProfile{
		DepthQuick:    {Budget: 0.20, MaxHops: 1},
		DepthStandard: {Budget: 0.50, MaxHops: 3},
		DepthDeep:     {Budget: 2.00, MaxHops: 5},
	}
}

// ParseDepth validates a depth tier name.
func ParseDepth(s string) (Depth, error) {
	d := Depth(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DepthQuick, DepthStandard, DepthDeep:
		return d, nil
	default:
		return "", eris.Errorf("model: unknown depth %q (want quick, standard or deep)", s)
	}
}

// Rank orders depth tiers from shallowest to deepest.
func (d Depth) Rank() int {
	switch d {
	case DepthQuick:
		return 0
	case DepthStandard:
		return 1
	case DepthDeep:
		return 2
	default:
		return -1
	}
}

// SessionStatus is the lifecycle state of a research session.
type SessionStatus string

const (
	SessionPlanning   SessionStatus = "planning"
	SessionSearching  SessionStatus = "searching"
	SessionAnalyzing  SessionStatus = "analyzing"
	SessionValidating SessionStatus = "validating"
	SessionComplete   SessionStatus = "complete"
	SessionError      SessionStatus = "error"
)

// IsTerminal reports whether no further transitions are allowed.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionComplete || s == SessionError
}

// sessionTransitions lists the legal forward moves. Validating loops back to
// searching when the next hop starts. Error is reachable from any
// non-terminal state and is handled separately.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionPlanning:   {SessionSearching, SessionComplete},
	SessionSearching:  {SessionAnalyzing},
	SessionAnalyzing:  {SessionValidating},
	SessionValidating: {SessionSearching, SessionComplete},
}

// Hop is one round of evidence gathering and hypothesis testing.
type Hop struct {
	Number           int       `json:"number"`
	Queries          []string  `json:"queries"`
	SourcesFound     int       `json:"sources_found"`
	SourcesAdded     int       `json:"sources_added"`
	ConfidenceBefore float64   `json:"confidence_before"`
	ConfidenceAfter  float64   `json:"confidence_after"`
	SearchCost       float64   `json:"search_cost"`
	ReasoningTokens  int       `json:"reasoning_tokens"`
	ReasoningCost    float64   `json:"reasoning_cost"`
	Findings         []string  `json:"findings,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
}

// Gain is the confidence improvement produced by the hop.
func (h Hop) Gain() float64 {
	return h.ConfidenceAfter - h.ConfidenceBefore
}

// TotalCost is the hop's search plus reasoning spend.
func (h Hop) TotalCost() float64 {
	return h.SearchCost + h.ReasoningCost
}

// ResearchSession is the root aggregate for one query execution. It is
// mutated only by the controller and the cost ledger.
type ResearchSession struct {
	ID              string        `json:"id"`
	Query           string        `json:"query"`
	Depth           Depth         `json:"depth"`
	CurrentHop      int           `json:"current_hop"`
	Status          SessionStatus `json:"status"`
	Hops            []Hop         `json:"hops"`
	TotalCost       float64       `json:"total_cost"`
	BudgetTarget    float64       `json:"budget_target"`
	BudgetWarnings  []string      `json:"budget_warnings,omitempty"`
	Alerts          []BudgetAlert `json:"alerts,omitempty"`
	FinalConfidence float64       `json:"final_confidence"`
	StopReason      StopReason    `json:"stop_reason,omitempty"`
	Error           string        `json:"error,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// NewResearchSession creates a session in the planning state.
func NewResearchSession(id, query string, depth Depth, budget float64) *ResearchSession {
	return &ResearchSession{
		ID:           id,
		Query:        query,
		Depth:        depth,
		Status:       SessionPlanning,
		BudgetTarget: budget,
		StartedAt:    time.Now().UTC(),
	}
}

// Transition moves the session to the given status.
func (s *ResearchSession) Transition(to SessionStatus) error {
	if s.Status.IsTerminal() {
		return eris.Errorf("model: session %s is %s and cannot move to %s", s.ID, s.Status, to)
	}
	if to == s.Status {
		return nil
	}
	if to == SessionError {
		s.Status = to
		return nil
	}
	for _, next := range sessionTransitions[s.Status] {
		if next == to {
			s.Status = to
			return nil
		}
	}
	return eris.Errorf("model: illegal session transition %s -> %s", s.Status, to)
}

// BeginHop advances the hop counter and returns the new hop record.
func (s *ResearchSession) BeginHop(confidence float64) Hop {
	s.CurrentHop++
	return Hop{
		Number:           s.CurrentHop,
		ConfidenceBefore: confidence,
		StartedAt:        time.Now().UTC(),
	}
}

// Fail moves a non-terminal session into the error state and records why.
func (s *ResearchSession) Fail(err error) {
	if s.Status.IsTerminal() {
		return
	}
	s.Status = SessionError
	if err != nil {
		s.Error = err.Error()
	}
	now := time.Now().UTC()
	s.CompletedAt = &now
}

// Complete marks the session finished.
func (s *ResearchSession) Complete(confidence float64) error {
	if err := s.Transition(SessionComplete); err != nil {
		return err
	}
	s.FinalConfidence = confidence
	now := time.Now().UTC()
	s.CompletedAt = &now
	return nil
}

// HopCostSum returns the sum of all hop costs.
func (s *ResearchSession) HopCostSum() float64 {
	var total float64
	for _, h := range s.Hops {
		total += h.TotalCost()
	}
	return total
}

// SourcesAnalyzed totals the sources added across hops.
func (s *ResearchSession) SourcesAnalyzed() int {
	var n int
	for _, h := range s.Hops {
		n += h.SourcesAdded
	}
	return n
}

// Duration is the wall time between start and completion.
func (s *ResearchSession) Duration() time.Duration {
	if s.CompletedAt == nil {
		return time.Since(s.StartedAt)
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// StopReason records why the hop loop ended.
type StopReason string

const (
	StopConfidenceTarget StopReason = "confidence_target"
	StopEarly            StopReason = "early_stop"
	StopBudgetExhausted  StopReason = "budget_exhausted"
	StopMaxHops          StopReason = "max_hops"
	StopStalled          StopReason = "stalled"
)

// Evidence is a single search hit. It lives only for the session.
type Evidence struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Topic   string  `json:"topic,omitempty"`
}

// CostBreakdown is the cost of one recorded operation. The total is derived
// from the components on every read.
type CostBreakdown struct {
	SearchCost      float64 `json:"search_cost"`
	ReasoningTokens int     `json:"reasoning_tokens"`
	ReasoningCost   float64 `json:"reasoning_cost"`
}

// NewCostBreakdown builds a breakdown from its components.
func NewCostBreakdown(search float64, tokens int, reasoning float64) CostBreakdown {
	return CostBreakdown{SearchCost: search, ReasoningTokens: tokens, ReasoningCost: reasoning}
}

// Total is search plus reasoning cost.
func (c CostBreakdown) Total() float64 {
	return c.SearchCost + c.ReasoningCost
}

// AlertLevel is the budget threshold band that was crossed.
type AlertLevel string

const (
	AlertMedium   AlertLevel = "warning_medium"
	AlertHigh     AlertLevel = "warning_high"
	AlertCritical AlertLevel = "critical"
)

// Rank orders alert levels by severity.
func (l AlertLevel) Rank() int {
	switch l {
	case AlertMedium:
		return 1
	case AlertHigh:
		return 2
	case AlertCritical:
		return 3
	default:
		return 0
	}
}

// BudgetAlert is emitted when cumulative cost crosses a budget threshold.
type BudgetAlert struct {
	SessionID      string     `json:"session_id"`
	Level          AlertLevel `json:"level"`
	Threshold      float64    `json:"threshold"`
	CurrentCost    float64    `json:"current_cost"`
	BudgetLimit    float64    `json:"budget_limit"`
	PercentageUsed float64    `json:"percentage_used"`
	Message        string     `json:"message"`
	Timestamp      time.Time  `json:"timestamp"`
}
