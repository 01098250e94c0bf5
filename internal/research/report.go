package research

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/reasoning"
	"github.com/sells-group/deep-research/internal/reconcile"
)

const maxTitleRunes = 80

// documentTitle turns a query into a document title.
func documentTitle(query string) string {
	t := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(query), "?.!"))
	r := []rune(t)
	if len(r) > maxTitleRunes {
		t = strings.TrimSpace(string(r[:maxTitleRunes]))
	}
	if t == "" {
		return "Untitled research"
	}
	return t
}

// renderDocument builds the markdown body. Section headings line up across
// sessions so later research integrates section by section.
func renderDocument(query string, plan *reasoning.Plan, syn *reasoning.Synthesis, results []reasoning.TestResult, sources []model.Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", documentTitle(query))

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "Query: %s\n\nConfidence: %.2f\n", query, syn.Confidence)

	writeList(&b, "Key Findings", syn.KeyFindings)

	if len(results) > 0 {
		b.WriteString("\n## Hypotheses\n\n")
		for _, r := range latestResults(results) {
			fmt.Fprintf(&b, "- %s (%.2f → %.2f): %s\n",
				r.Hypothesis.Statement, r.Hypothesis.PriorConfidence, r.PosteriorConfidence, conclusion(r))
		}
	}

	writeList(&b, "Open Questions", syn.GapsRemaining)
	writeList(&b, "Recommendations", syn.Recommendations)
	if plan != nil {
		writeList(&b, "Success Criteria", plan.SuccessCriteria)
	}

	if len(sources) > 0 {
		b.WriteString("\n## Sources\n\n")
		for i, s := range sources {
			title := s.Title
			if title == "" {
				title = s.URL
			}
			if s.URL == "" {
				fmt.Fprintf(&b, "%d. %s\n", i+1, title)
				continue
			}
			fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, title, s.URL)
		}
	}
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n", heading)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

// latestResults keeps the last test of each hypothesis statement, in first
// seen order.
func latestResults(results []reasoning.TestResult) []reasoning.TestResult {
	idx := make(map[string]int, len(results))
	var out []reasoning.TestResult
	for _, r := range results {
		key := strings.ToLower(strings.TrimSpace(r.Hypothesis.Statement))
		if i, ok := idx[key]; ok {
			out[i] = r
			continue
		}
		idx[key] = len(out)
		out = append(out, r)
	}
	return out
}

func conclusion(r reasoning.TestResult) string {
	if c := strings.TrimSpace(r.Conclusion); c != "" {
		return c
	}
	return "no conclusion"
}

func quoteTitle(title, id string) string {
	if title == "" {
		return id
	}
	return strconv.Quote(title)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// result assembles the caller-facing summary.
func (r *run) result(final *reasoning.Synthesis, outcome *reconcile.Outcome) *model.ResearchResult {
	s := r.session
	cfg := r.c.cfg
	within := s.BudgetTarget <= 0 || s.TotalCost <= s.BudgetTarget

	res := &model.ResearchResult{
		SessionID:       s.ID,
		FinalConfidence: s.FinalConfidence,
		SourcesAnalyzed: s.SourcesAnalyzed(),
		HopsExecuted:    len(s.Hops),
		TotalCost:       s.TotalCost,
		WithinBudget:    within,
		StopReason:      s.StopReason,
		Duration:        s.Duration(),
		KeyFindings:     final.KeyFindings,
	}
	if outcome != nil {
		if outcome.Decision != nil {
			res.Operation = outcome.Decision.Operation
		}
		if outcome.Document != nil {
			res.DocumentID = outcome.Document.ID
			res.DocumentPath = outcome.Document.Path
		}
		if outcome.Report != nil {
			res.Conflicts = outcome.Report.Conflicts
		}
	}

	res.Warnings = append(res.Warnings, r.warnings...)
	res.Warnings = append(res.Warnings, s.BudgetWarnings...)
	if !within {
		res.Warnings = append(res.Warnings, fmt.Sprintf("budget exceeded: $%.4f spent of $%.2f", s.TotalCost, s.BudgetTarget))
	}
	if s.FinalConfidence < cfg.ConfidenceTarget {
		res.Warnings = append(res.Warnings, fmt.Sprintf("confidence %.2f is below target %.2f", s.FinalConfidence, cfg.ConfidenceTarget))
	}
	if r.topicsFailed > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d topic searches failed and were skipped", r.topicsFailed))
	}

	if s.FinalConfidence < cfg.ConfidenceTarget && s.Depth.Rank() < model.DepthDeep.Rank() {
		res.Suggestions = append(res.Suggestions, "consider deeper research")
	}
	if s.StopReason == model.StopStalled {
		res.Suggestions = append(res.Suggestions, "refine the query: recent hops added little confidence")
	}
	if s.StopReason == model.StopBudgetExhausted && s.FinalConfidence < cfg.ConfidenceTarget {
		res.Suggestions = append(res.Suggestions, "raise the budget to allow more hops")
	}
	return res
}
