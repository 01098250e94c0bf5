package research

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/deep-research/internal/cost"
	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/reasoning"
	"github.com/sells-group/deep-research/internal/reconcile"
	"github.com/sells-group/deep-research/internal/similarity"
	"github.com/sells-group/deep-research/internal/store"
)

// fakeSource returns two fresh results per search. Topics listed in fail
// return an error instead.
type fakeSource struct {
	fail  map[string]bool
	calls atomic.Int64
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Search(_ context.Context, query string, _ int, _ model.Depth) ([]model.Evidence, error) {
	n := f.calls.Add(1)
	if f.fail[query] {
		return nil, eris.Errorf("search %q: upstream unavailable", query)
	}
	return []model.Evidence{
		{Title: query + " overview", URL: fmt.Sprintf("https://example.com/%d/a", n), Content: "details about " + query, Score: 0.9},
		{Title: query + " study", URL: fmt.Sprintf("https://example.com/%d/b", n), Content: "a study of " + query, Score: 0.7},
	}, nil
}

// scriptedReasoning plays back hop confidences. The Nth Synthesize call
// returns confidences[N], repeating the last value once the script runs out.
type scriptedReasoning struct {
	topics      []string
	confidences []float64
	usage       reasoning.Usage
	planErr     error
	testErr     error
	// synthErr is returned from the Synthesize call numbered synthErrCall.
	synthErr     error
	synthErrCall int
	// onSynthesize runs before each Synthesize call with its 0-based index.
	onSynthesize func(call int)

	mu         sync.Mutex
	synthCalls int
	planCalls  int
}

func (s *scriptedReasoning) Plan(_ context.Context, query, _ string) (*reasoning.Plan, reasoning.Usage, error) {
	s.mu.Lock()
	s.planCalls++
	s.mu.Unlock()
	if s.planErr != nil {
		return nil, reasoning.Usage{}, s.planErr
	}
	topics := s.topics
	if len(topics) == 0 {
		topics = []string{query}
	}
	return &reasoning.Plan{
		Topics:          topics,
		Hypotheses:      []reasoning.Hypothesis{{Statement: "the claim holds", PriorConfidence: 0.5}},
		InformationGaps: []string{"long term data"},
		SuccessCriteria: []string{"two independent sources"},
		EstimatedHops:   2,
	}, s.usage, nil
}

func (s *scriptedReasoning) GenerateHypotheses(_ context.Context, _ string, _ []model.Evidence) ([]reasoning.Hypothesis, reasoning.Usage, error) {
	return []reasoning.Hypothesis{{Statement: "the claim holds", PriorConfidence: 0.5}}, s.usage, nil
}

func (s *scriptedReasoning) TestHypothesis(_ context.Context, h reasoning.Hypothesis, ev []model.Evidence) (*reasoning.TestResult, reasoning.Usage, error) {
	if s.testErr != nil {
		return nil, reasoning.Usage{}, s.testErr
	}
	return &reasoning.TestResult{
		Hypothesis:          h,
		PosteriorConfidence: 0.7,
		Supporting:          []string{"source agrees"},
		Conclusion:          "supported",
		EvidenceCount:       len(ev),
	}, s.usage, nil
}

func (s *scriptedReasoning) Synthesize(_ context.Context, _ []reasoning.TestResult, _ string) (*reasoning.Synthesis, reasoning.Usage, error) {
	s.mu.Lock()
	call := s.synthCalls
	s.synthCalls++
	s.mu.Unlock()
	if s.onSynthesize != nil {
		s.onSynthesize(call)
	}
	if s.synthErr != nil && call == s.synthErrCall {
		return nil, reasoning.Usage{}, s.synthErr
	}

	conf := 0.5
	if len(s.confidences) > 0 {
		conf = s.confidences[min(call, len(s.confidences)-1)]
	}
	return &reasoning.Synthesis{
		KeyFindings:     []string{fmt.Sprintf("finding %d", call+1)},
		Confidence:      conf,
		GapsRemaining:   []string{"follow up question"},
		Recommendations: []string{"monitor new results"},
	}, s.usage, nil
}

func (s *scriptedReasoning) Close() error { return nil }

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []model.BudgetAlert
}

func (n *recordingNotifier) Notify(_ context.Context, a model.BudgetAlert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
}

func (n *recordingNotifier) all() []model.BudgetAlert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.BudgetAlert(nil), n.alerts...)
}

// failingReconciler rejects every Persist call.
type failingReconciler struct {
	err error
}

func (f *failingReconciler) Persist(context.Context, reconcile.DocumentWriter, reconcile.Findings) (*reconcile.Outcome, error) {
	return nil, f.err
}

// stubIndex reports a fixed hit for every similarity query.
type stubIndex struct {
	hits []similarity.Hit
}

func (s *stubIndex) SearchSimilar(context.Context, string, float64, int) ([]similarity.Hit, error) {
	return s.hits, nil
}
func (s *stubIndex) AddDocument(context.Context, *model.Document) error    { return nil }
func (s *stubIndex) UpdateDocument(context.Context, *model.Document) error { return nil }
func (s *stubIndex) DeleteDocument(context.Context, string) error          { return nil }

type harness struct {
	ctrl     *Controller
	store    *store.SQLiteStore
	notifier *recordingNotifier
}

func newHarness(t *testing.T, src *fakeSource, rs reasoning.Service, mutate func(*Deps)) *harness {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "research.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	engine, err := reconcile.New(reconcile.DefaultConfig(), similarity.NewVectorIndex(similarity.NewHashEmbedder(64)), st)
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	deps := Deps{
		Evidence:   src,
		Reasoning:  rs,
		Ledger:     cost.NewLedger(cost.NewPricingSource(cost.DefaultPricing())),
		Reconciler: engine,
		Documents:  st,
		Sessions:   st,
		Notifier:   notifier,
	}
	if mutate != nil {
		mutate(&deps)
	}

	ctrl, err := New(DefaultConfig(), deps)
	require.NoError(t, err)
	return &harness{ctrl: ctrl, store: st, notifier: notifier}
}
