package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/deep-research/internal/model"
)

// maxPromptEvidence bounds how many evidence items go into one prompt.
const maxPromptEvidence = 25

const planSystem = `You are a research planner. Reply with a single JSON object and nothing else:
{"topics": [string], "hypotheses": [{"statement": string, "prior_confidence": number, "evidence_required": [string], "test_method": string}],
 "information_gaps": [string], "success_criteria": [string], "estimated_hops": integer}
Topics are short web search queries. Use 2 to 5 topics and at most 4 hypotheses. Confidences are between 0 and 1.`

const hypothesesSystem = `You generate testable research hypotheses from evidence. Reply with a JSON array and nothing else:
[{"statement": string, "prior_confidence": number, "evidence_required": [string], "test_method": string}]
Return at most 4 hypotheses. Confidences are between 0 and 1.`

const testSystem = `You test one hypothesis against numbered evidence. Reply with a single JSON object and nothing else:
{"posterior_confidence": number, "supporting_evidence": [string], "contradicting_evidence": [string], "conclusion": string}
Cite evidence by its URL. The posterior is between 0 and 1.`

const synthesizeSystem = `You synthesize hypothesis test results into findings. Reply with a single JSON object and nothing else:
{"key_findings": [string], "confidence": number, "gaps_remaining": [string], "recommendations": [string]}
Confidence is how well the findings answer the query, between 0 and 1.`

func planPrompt(query, planContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research query: %s\n", query)
	if strings.TrimSpace(planContext) != "" {
		fmt.Fprintf(&b, "\nContext:\n%s\n", planContext)
	}
	return b.String()
}

func hypothesesPrompt(researchContext string, evidence []model.Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research context: %s\n\nEvidence:\n", researchContext)
	writeEvidence(&b, evidence)
	return b.String()
}

func testPrompt(h Hypothesis, evidence []model.Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hypothesis: %s\nPrior confidence: %.2f\n", h.Statement, h.PriorConfidence)
	if h.TestMethod != "" {
		fmt.Fprintf(&b, "Test method: %s\n", h.TestMethod)
	}
	b.WriteString("\nEvidence:\n")
	writeEvidence(&b, evidence)
	return b.String()
}

func synthesizePrompt(results []TestResult, query string) string {
	var b strings.Builder
	if query != "" {
		fmt.Fprintf(&b, "Original query: %s\n\n", query)
	}
	b.WriteString("Test results:\n")
	data, _ := json.MarshalIndent(results, "", "  ")
	b.Write(data)
	return b.String()
}

func writeEvidence(b *strings.Builder, evidence []model.Evidence) {
	if len(evidence) == 0 {
		b.WriteString("(none)\n")
		return
	}
	for i, e := range evidence {
		if i == maxPromptEvidence {
			fmt.Fprintf(b, "... %d more omitted\n", len(evidence)-i)
			break
		}
		fmt.Fprintf(b, "[%d] %s (%s)\n%s\n\n", i+1, e.Title, e.URL, e.Content)
	}
}
