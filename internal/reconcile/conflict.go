package reconcile

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/similarity"
)

// Conflict thresholds.
const (
	confidenceGapMedium = 0.15
	confidenceGapHigh   = 0.30
	minTopicOverlap     = 0.30
)

// ContradictionDetector flags textual disagreements between two bodies.
type ContradictionDetector interface {
	Detect(field, existing, incoming string) []model.Conflict
}

// KeywordPairDetector reports a content conflict when one text uses a
// keyword and the other uses its opposite. It matches whole words only and
// knows nothing about negation or scope, so expect false positives.
type KeywordPairDetector struct {
	Pairs [][2]string
}

var _ ContradictionDetector = (*KeywordPairDetector)(nil)

// DefaultKeywordPairs is the built-in antonym list.
func DefaultKeywordPairs() [][2]string {
	return [][2]string{
		{"supports", "contradicts"},
		{"true", "false"},
		{"increased", "decreased"},
		{"increase", "decrease"},
		{"confirmed", "refuted"},
		{"effective", "ineffective"},
		{"safe", "unsafe"},
		{"proven", "disproven"},
		{"possible", "impossible"},
		{"likely", "unlikely"},
		{"rising", "falling"},
		{"growth", "decline"},
	}
}

// NewKeywordPairDetector returns a detector over DefaultKeywordPairs.
func NewKeywordPairDetector() *KeywordPairDetector {
	return &KeywordPairDetector{Pairs: DefaultKeywordPairs()}
}

// Detect returns at most one low-severity conflict per pair.
func (d *KeywordPairDetector) Detect(field, existing, incoming string) []model.Conflict {
	have := wordSet(existing)
	got := wordSet(incoming)

	var out []model.Conflict
	for _, pair := range d.Pairs {
		a, b := pair[0], pair[1]
		switch {
		case has(have, a) && has(got, b):
			out = append(out, contentConflict(field, a, b))
		case has(have, b) && has(got, a):
			out = append(out, contentConflict(field, b, a))
		}
	}
	return out
}

func contentConflict(field, existing, incoming string) model.Conflict {
	return model.Conflict{
		Kind:          model.ConflictContent,
		Field:         field,
		ExistingValue: existing,
		NewValue:      incoming,
		Severity:      model.SeverityLow,
	}
}

func wordSet(text string) map[string]struct{} {
	words := similarity.Words(text)
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

func has(set map[string]struct{}, w string) bool {
	_, ok := set[w]
	return ok
}

// DetectConflicts compares the metadata and bodies of two documents.
func (e *Engine) DetectConflicts(existing, incoming *model.Document) []model.Conflict {
	conflicts := MetadataConflicts(existing, incoming)
	return append(conflicts, e.detector.Detect("content", existing.Content, incoming.Content)...)
}

// MetadataConflicts checks confidence, purpose and topic structure.
func MetadataConflicts(existing, incoming *model.Document) []model.Conflict {
	var out []model.Conflict

	if sev, ok := ConfidenceSeverity(existing.Confidence, incoming.Confidence); ok {
		out = append(out, model.Conflict{
			Kind:          model.ConflictConfidence,
			Field:         "confidence",
			ExistingValue: fmt.Sprintf("%.2f", existing.Confidence),
			NewValue:      fmt.Sprintf("%.2f", incoming.Confidence),
			Severity:      sev,
		})
	}

	ep, ip := strings.TrimSpace(existing.Purpose), strings.TrimSpace(incoming.Purpose)
	if ep != "" && ip != "" && !strings.EqualFold(ep, ip) {
		out = append(out, model.Conflict{
			Kind:          model.ConflictMetadata,
			Field:         "purpose",
			ExistingValue: ep,
			NewValue:      ip,
			Severity:      model.SeverityMedium,
		})
	}

	if len(existing.Topics) > 0 && len(incoming.Topics) > 0 {
		if overlap := TopicOverlap(existing.Topics, incoming.Topics); overlap < minTopicOverlap {
			out = append(out, model.Conflict{
				Kind:          model.ConflictStructural,
				Field:         "topics",
				ExistingValue: strings.Join(existing.Topics, ", "),
				NewValue:      strings.Join(incoming.Topics, ", "),
				Severity:      model.SeverityMedium,
			})
		}
	}
	return out
}

// ConfidenceSeverity grades the gap between two confidences. ok is false
// when the gap is within tolerance.
func ConfidenceSeverity(a, b float64) (model.Severity, bool) {
	gap := math.Round(math.Abs(a-b)*1e9) / 1e9
	switch {
	case gap > confidenceGapHigh:
		return model.SeverityHigh, true
	case gap > confidenceGapMedium:
		return model.SeverityMedium, true
	default:
		return "", false
	}
}
