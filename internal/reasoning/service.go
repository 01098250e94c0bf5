// Package reasoning plans research, generates and tests hypotheses, and
// synthesizes findings. Two backends implement Service: the Anthropic
// Messages API and an MCP tool server running as a subprocess.
package reasoning

import (
	"context"

	"github.com/sells-group/deep-research/internal/model"
)

// Plan is the research plan for a query.
type Plan struct {
	Topics          []string     `json:"topics"`
	Hypotheses      []Hypothesis `json:"hypotheses"`
	InformationGaps []string     `json:"information_gaps"`
	SuccessCriteria []string     `json:"success_criteria"`
	EstimatedHops   int          `json:"estimated_hops"`
}

// Hypothesis is a claim to be tested against evidence.
type Hypothesis struct {
	Statement        string   `json:"statement"`
	PriorConfidence  float64  `json:"prior_confidence"`
	EvidenceRequired []string `json:"evidence_required,omitempty"`
	TestMethod       string   `json:"test_method,omitempty"`
}

// TestResult is the outcome of testing one hypothesis.
type TestResult struct {
	Hypothesis          Hypothesis `json:"hypothesis"`
	PosteriorConfidence float64    `json:"posterior_confidence"`
	Supporting          []string   `json:"supporting_evidence"`
	Contradicting       []string   `json:"contradicting_evidence"`
	Conclusion          string     `json:"conclusion"`
	EvidenceCount       int        `json:"evidence_count"`
}

// Synthesis summarises a set of test results.
type Synthesis struct {
	KeyFindings     []string `json:"key_findings"`
	Confidence      float64  `json:"confidence"`
	GapsRemaining   []string `json:"gaps_remaining"`
	Recommendations []string `json:"recommendations"`
}

// Usage is what a call consumed. Priced is set when Cost was computed from
// a per-model rate card and should override the ledger's flat token rate.
type Usage struct {
	Tokens int     `json:"tokens"`
	Cost   float64 `json:"cost"`
	Priced bool    `json:"priced"`
}

// Add accumulates o into u. The sum stays priced only if both parts were;
// the zero Usage is the identity.
func (u Usage) Add(o Usage) Usage {
	if u == (Usage{}) {
		return o
	}
	if o == (Usage{}) {
		return u
	}
	return Usage{Tokens: u.Tokens + o.Tokens, Cost: u.Cost + o.Cost, Priced: u.Priced && o.Priced}
}

// Service is the structured reasoning collaborator. Malformed model output
// never fails a call; it degrades to conservative defaults instead.
type Service interface {
	Plan(ctx context.Context, query, planContext string) (*Plan, Usage, error)
	GenerateHypotheses(ctx context.Context, researchContext string, evidence []model.Evidence) ([]Hypothesis, Usage, error)
	TestHypothesis(ctx context.Context, h Hypothesis, evidence []model.Evidence) (*TestResult, Usage, error)
	Synthesize(ctx context.Context, results []TestResult, query string) (*Synthesis, Usage, error)
	Close() error
}
