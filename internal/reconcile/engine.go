// Package reconcile decides whether new research findings create a new
// document or update or merge into an existing one, and performs the merge.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/similarity"
	"github.com/sells-group/deep-research/internal/store"
)

// Default thresholds.
const (
	DefaultSimilarityThreshold = 0.85
	DefaultMergeThreshold      = 0.70
	DefaultCandidateLimit      = 5

	// indexFloor is the minimum vector score for an index hit to be
	// considered a candidate at all.
	indexFloor = 0.1
)

// Config tunes an Engine.
type Config struct {
	SimilarityThreshold float64
	MergeThreshold      float64
	CandidateLimit      int
	UpdateStrategy      model.MergeStrategy
	DocumentDir         string
}

// DefaultConfig returns the stock thresholds with INTEGRATE updates.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: DefaultSimilarityThreshold,
		MergeThreshold:      DefaultMergeThreshold,
		CandidateLimit:      DefaultCandidateLimit,
		UpdateStrategy:      model.StrategyIntegrate,
	}
}

// Thresholds are the two cut-offs Classify compares a score against.
type Thresholds struct {
	Similarity float64
	Merge      float64
}

// DocumentSource is the read side of the document store.
type DocumentSource interface {
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListDocuments(ctx context.Context, filter store.DocumentFilter) ([]model.Document, error)
}

// Decision is the outcome of Decide.
type Decision struct {
	Operation  model.Operation         `json:"operation"`
	Target     *model.Document         `json:"target,omitempty"`
	Matches    []model.SimilarityMatch `json:"matches"`
	Confidence float64                 `json:"confidence"`
	Reason     string                  `json:"reason"`
}

// Engine reconciles findings against the document library. It holds no
// per-call state and is safe for concurrent use.
type Engine struct {
	cfg      Config
	index    similarity.Index
	docs     DocumentSource
	detector ContradictionDetector
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithDetector replaces the contradiction heuristic.
func WithDetector(d ContradictionDetector) Option {
	return func(e *Engine) { e.detector = d }
}

// WithClock sets the time source used for update headers and reports.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New validates cfg and builds an Engine. index may be nil, in which case
// candidates come from a full scan of docs.
func New(cfg Config, index similarity.Index, docs DocumentSource, opts ...Option) (*Engine, error) {
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return nil, &ConfigurationError{Field: "similarity_threshold", Reason: fmt.Sprintf("%.2f is outside [0, 1]", cfg.SimilarityThreshold)}
	}
	if cfg.MergeThreshold < 0 || cfg.MergeThreshold > 1 {
		return nil, &ConfigurationError{Field: "merge_threshold", Reason: fmt.Sprintf("%.2f is outside [0, 1]", cfg.MergeThreshold)}
	}
	if cfg.MergeThreshold > cfg.SimilarityThreshold {
		return nil, &ConfigurationError{
			Field:  "merge_threshold",
			Reason: fmt.Sprintf("%.2f exceeds similarity_threshold %.2f", cfg.MergeThreshold, cfg.SimilarityThreshold),
		}
	}
	switch cfg.UpdateStrategy {
	case "":
		cfg.UpdateStrategy = model.StrategyIntegrate
	case model.StrategyAppend, model.StrategyIntegrate, model.StrategyReplace:
	default:
		return nil, &ConfigurationError{Field: "update_strategy", Reason: fmt.Sprintf("%q is not a merge strategy", cfg.UpdateStrategy)}
	}
	if docs == nil {
		return nil, &ConfigurationError{Field: "documents", Reason: "source is required"}
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCandidateLimit
	}

	e := &Engine{
		cfg:      cfg,
		index:    index,
		docs:     docs,
		detector: NewKeywordPairDetector(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Thresholds returns the engine's cut-offs.
func (e *Engine) Thresholds() Thresholds {
	return Thresholds{Similarity: e.cfg.SimilarityThreshold, Merge: e.cfg.MergeThreshold}
}

// Classify maps the best candidate score to an operation and confidence.
// It depends only on its arguments.
func Classify(best float64, hasCandidates bool, t Thresholds) (model.Operation, float64) {
	switch {
	case !hasCandidates:
		return model.OperationCreate, 1.0
	case best >= t.Similarity:
		return model.OperationUpdate, best
	case best >= t.Merge:
		return model.OperationMerge, best
	default:
		return model.OperationCreate, 1 - best
	}
}

// Decide scores the library against the new findings and picks an
// operation.
func (e *Engine) Decide(ctx context.Context, content string, meta model.DocumentMeta, queryContext string) (*Decision, error) {
	var (
		matches []model.SimilarityMatch
		err     error
	)
	if e.index != nil {
		matches, err = e.indexCandidates(ctx, content, meta, queryContext)
	} else {
		matches, err = e.scanCandidates(ctx, content, meta, queryContext)
	}
	if err != nil {
		return nil, &ReconciliationError{Op: "search", Err: err}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > e.cfg.CandidateLimit {
		matches = matches[:e.cfg.CandidateLimit]
	}

	var best float64
	if len(matches) > 0 {
		best = matches[0].Score
	}
	op, confidence := Classify(best, len(matches) > 0, e.Thresholds())

	d := &Decision{Operation: op, Matches: matches, Confidence: confidence}
	switch {
	case len(matches) == 0:
		d.Reason = "no existing document is similar"
	case op == model.OperationUpdate:
		d.Target = matches[0].Document.Clone()
		d.Reason = fmt.Sprintf("%q scored %.2f, at or above the similarity threshold %.2f", d.Target.Title, best, e.cfg.SimilarityThreshold)
	case op == model.OperationMerge:
		d.Target = matches[0].Document.Clone()
		d.Reason = fmt.Sprintf("%q scored %.2f, between the merge threshold %.2f and the similarity threshold %.2f", d.Target.Title, best, e.cfg.MergeThreshold, e.cfg.SimilarityThreshold)
	default:
		d.Reason = fmt.Sprintf("best match %q scored %.2f, below the merge threshold %.2f", matches[0].Document.Title, best, e.cfg.MergeThreshold)
	}
	return d, nil
}

func (e *Engine) indexCandidates(ctx context.Context, content string, meta model.DocumentMeta, queryContext string) ([]model.SimilarityMatch, error) {
	text := similarity.DocumentText(&model.Document{Title: meta.Title, Topics: meta.Topics, Content: content})
	hits, err := e.index.SearchSimilar(ctx, text, indexFloor, e.cfg.CandidateLimit*2)
	if err != nil {
		return nil, err
	}

	matches := make([]model.SimilarityMatch, 0, len(hits))
	for _, hit := range hits {
		doc, err := e.docs.GetDocument(ctx, hit.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if doc.Status == model.DocumentDeprecated {
			continue
		}
		topics := TopicOverlap(meta.Topics, doc.Topics)
		questions := QuestionOverlap(queryContext, meta.Questions, doc)
		score := 0.6*hit.Score + 0.3*topics + 0.1*questions
		matches = append(matches, model.SimilarityMatch{
			Document: *doc,
			Score:    clamp01(score),
			Reason:   fmt.Sprintf("vector %.2f, topics %.2f, questions %.2f", hit.Score, topics, questions),
		})
	}
	return matches, nil
}

func (e *Engine) scanCandidates(ctx context.Context, content string, meta model.DocumentMeta, queryContext string) ([]model.SimilarityMatch, error) {
	docs, err := e.docs.ListDocuments(ctx, store.DocumentFilter{Limit: -1})
	if err != nil {
		return nil, err
	}

	var matches []model.SimilarityMatch
	for i := range docs {
		doc := &docs[i]
		if doc.Status == model.DocumentDeprecated {
			continue
		}
		topics := TopicOverlap(meta.Topics, doc.Topics)
		words := WordOverlap(content, doc.Content)
		questions := QuestionOverlap(queryContext, meta.Questions, doc)
		score := 0.4*topics + 0.4*words + 0.2*questions
		if score <= 0 {
			continue
		}
		matches = append(matches, model.SimilarityMatch{
			Document: *doc,
			Score:    clamp01(score),
			Reason:   fmt.Sprintf("topics %.2f, words %.2f, questions %.2f", topics, words, questions),
		})
	}
	return matches, nil
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
