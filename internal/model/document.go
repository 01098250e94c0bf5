package model

import (
	"slices"
	"time"
)

// DocumentStatus is the editorial lifecycle of a research document.
type DocumentStatus string

const (
	DocumentDraft       DocumentStatus = "draft"
	DocumentResearching DocumentStatus = "researching"
	DocumentValidating  DocumentStatus = "validating"
	DocumentReviewed    DocumentStatus = "reviewed"
	DocumentDeprecated  DocumentStatus = "deprecated"
)

// Rank places the status in the progression draft < researching < validating
// < reviewed. Deprecated and unknown statuses rank -1.
func (s DocumentStatus) Rank() int {
	switch s {
	case DocumentDraft:
		return 0
	case DocumentResearching:
		return 1
	case DocumentValidating:
		return 2
	case DocumentReviewed:
		return 3
	default:
		return -1
	}
}

// AdvanceStatus returns the status a document holds after seeing next.
// Deprecated wins over everything and is never left; otherwise the status
// only moves forward.
func AdvanceStatus(current, next DocumentStatus) DocumentStatus {
	if current == DocumentDeprecated || next == DocumentDeprecated {
		return DocumentDeprecated
	}
	if next.Rank() > current.Rank() {
		return next
	}
	return current
}

// Document is a persisted research artifact.
type Document struct {
	ID          string         `json:"id" yaml:"id"`
	Path        string         `json:"path" yaml:"path"`
	Title       string         `json:"title" yaml:"title"`
	Purpose     string         `json:"purpose,omitempty" yaml:"purpose,omitempty"`
	Topics      []string       `json:"topics" yaml:"topics"`
	Questions   []string       `json:"questions,omitempty" yaml:"questions,omitempty"`
	Status      DocumentStatus `json:"status" yaml:"status"`
	Confidence  float64        `json:"confidence" yaml:"confidence"`
	SourceCount int            `json:"source_count" yaml:"source_count"`
	Content     string         `json:"content" yaml:"-"`
	Version     int            `json:"version" yaml:"version"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Topics = slices.Clone(d.Topics)
	cp.Questions = slices.Clone(d.Questions)
	return &cp
}

// DocumentMeta is the metadata that accompanies new findings.
type DocumentMeta struct {
	Title       string         `json:"title"`
	Purpose     string         `json:"purpose,omitempty"`
	Topics      []string       `json:"topics"`
	Questions   []string       `json:"questions,omitempty"`
	Status      DocumentStatus `json:"status,omitempty"`
	Confidence  float64        `json:"confidence"`
	SourceCount int            `json:"source_count"`
}

// DocumentVersion is one entry in a document's history.
type DocumentVersion struct {
	DocumentID string    `json:"document_id"`
	Version    int       `json:"version"`
	Content    string    `json:"content"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// SimilarityMatch is a candidate document with its composite score.
type SimilarityMatch struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
	Reason   string   `json:"reason"`
}

// ConflictKind classifies a disagreement found during a merge.
type ConflictKind string

const (
	ConflictMetadata   ConflictKind = "metadata"
	ConflictContent    ConflictKind = "content"
	ConflictStructural ConflictKind = "structural"
	ConflictConfidence ConflictKind = "confidence"
)

// Severity grades a conflict.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Conflict describes one disagreement between an existing document and new
// content. Conflicts are observational and never persisted.
type Conflict struct {
	Kind          ConflictKind `json:"kind"`
	Field         string       `json:"field"`
	ExistingValue string       `json:"existing_value"`
	NewValue      string       `json:"new_value"`
	Severity      Severity     `json:"severity"`
}

// Operation is the reconciliation outcome.
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationMerge  Operation = "MERGE"
)

// MergeStrategy selects how new content joins an existing body.
type MergeStrategy string

const (
	StrategyAppend    MergeStrategy = "APPEND"
	StrategyIntegrate MergeStrategy = "INTEGRATE"
	StrategyReplace   MergeStrategy = "REPLACE"
)

// MergeReport summarises a single merge call.
type MergeReport struct {
	Strategy       MergeStrategy `json:"strategy"`
	Conflicts      []Conflict    `json:"conflicts"`
	ConflictCount  int           `json:"conflict_count"`
	Operations     []string      `json:"operations"`
	OperationCount int           `json:"operation_count"`
	Timestamp      time.Time     `json:"timestamp"`
}
