package reasoning

import (
	"strings"

	"golang.org/x/text/cases"
)

// priorDefault is used when a hypothesis arrives without a usable prior.
const priorDefault = 0.5

// FallbackPlan is the plan used when the backend returns nothing usable:
// research the query itself in a single hop.
func FallbackPlan(query string) *Plan {
	q := strings.TrimSpace(query)
	return &Plan{
		Topics: []string{q},
		Hypotheses: []Hypothesis{{
			Statement:       q,
			PriorConfidence: priorDefault,
			TestMethod:      "evidence review",
		}},
		SuccessCriteria: []string{"answer the query with cited evidence"},
		EstimatedHops:   1,
	}
}

// normalizePlan dedupes topics, clamps priors and fills gaps from the query.
func normalizePlan(p *Plan, query string) *Plan {
	if p == nil {
		return FallbackPlan(query)
	}
	p.Topics = dedupe(p.Topics)
	if len(p.Topics) == 0 {
		p.Topics = []string{strings.TrimSpace(query)}
	}
	p.Hypotheses = normalizeHypotheses(p.Hypotheses)
	if p.EstimatedHops < 1 {
		p.EstimatedHops = 1
	}
	return p
}

func normalizeHypotheses(hs []Hypothesis) []Hypothesis {
	out := make([]Hypothesis, 0, len(hs))
	for _, h := range hs {
		h.Statement = strings.TrimSpace(h.Statement)
		if h.Statement == "" {
			continue
		}
		if h.PriorConfidence <= 0 || h.PriorConfidence > 1 {
			h.PriorConfidence = priorDefault
		}
		out = append(out, h)
	}
	return out
}

// fallbackTest keeps the prior: nothing was learned.
func fallbackTest(h Hypothesis, evidence int) *TestResult {
	return &TestResult{
		Hypothesis:          h,
		PosteriorConfidence: clamp01(h.PriorConfidence),
		Conclusion:          "inconclusive",
		EvidenceCount:       evidence,
	}
}

func normalizeTest(r *TestResult, h Hypothesis, evidence int) *TestResult {
	if r == nil {
		return fallbackTest(h, evidence)
	}
	r.Hypothesis = h
	r.PosteriorConfidence = clamp01(r.PosteriorConfidence)
	if r.EvidenceCount == 0 {
		r.EvidenceCount = evidence
	}
	return r
}

// WeightedConfidence is the mean posterior weighted by how much evidence
// each test cited. Results that cite nothing count once.
func WeightedConfidence(results []TestResult) float64 {
	var sum, weight float64
	for _, r := range results {
		w := float64(len(r.Supporting) + len(r.Contradicting))
		if w == 0 {
			w = 1
		}
		sum += w * clamp01(r.PosteriorConfidence)
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

// FallbackSynthesis derives findings from the conclusions of supported
// hypotheses.
func FallbackSynthesis(results []TestResult) *Synthesis {
	s := &Synthesis{Confidence: WeightedConfidence(results)}
	for _, r := range results {
		if r.PosteriorConfidence >= priorDefault && r.Hypothesis.Statement != "" {
			s.KeyFindings = append(s.KeyFindings, r.Hypothesis.Statement)
		} else if r.Hypothesis.Statement != "" {
			s.GapsRemaining = append(s.GapsRemaining, r.Hypothesis.Statement)
		}
	}
	return s
}

func normalizeSynthesis(s *Synthesis, results []TestResult) *Synthesis {
	if s == nil {
		return FallbackSynthesis(results)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		s.Confidence = WeightedConfidence(results)
	}
	s.KeyFindings = dedupe(s.KeyFindings)
	return s
}

func dedupe(items []string) []string {
	fold := cases.Fold()
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		key := fold.String(it)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
