package model

import "time"

// ResearchResult is what a caller gets back from a research execution.
type ResearchResult struct {
	SessionID       string        `json:"session_id"`
	DocumentID      string        `json:"document_id"`
	DocumentPath    string        `json:"document_path"`
	Operation       Operation     `json:"operation"`
	FinalConfidence float64       `json:"final_confidence"`
	SourcesAnalyzed int           `json:"sources_analyzed"`
	HopsExecuted    int           `json:"hops_executed"`
	TotalCost       float64       `json:"total_cost"`
	WithinBudget    bool          `json:"within_budget"`
	StopReason      StopReason    `json:"stop_reason"`
	Duration        time.Duration `json:"duration"`
	KeyFindings     []string      `json:"key_findings,omitempty"`
	Warnings        []string      `json:"warnings,omitempty"`
	Suggestions     []string      `json:"suggestions,omitempty"`
	Conflicts       []Conflict    `json:"conflicts,omitempty"`
}
