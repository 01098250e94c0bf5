package research

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/deep-research/internal/cost"
	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/reasoning"
)

// TopicResult is the outcome of searching one plan topic. Err is set when
// the search failed; the hop carries on without that topic's evidence.
type TopicResult struct {
	Topic    string
	Evidence []model.Evidence
	Err      error
}

// gather searches every topic concurrently. Failures are isolated: one
// topic failing never cancels its siblings.
func (r *run) gather(ctx context.Context, topics []string) []TopicResult {
	results := make([]TopicResult, len(topics))
	depth := r.session.Depth
	limit := r.c.cfg.ResultsPerTopic

	var g errgroup.Group
	for i, topic := range topics {
		g.Go(func() error {
			ev, err := r.c.deps.Evidence.Search(ctx, topic, limit, depth)
			for j := range ev {
				ev[j].Topic = topic
			}
			results[i] = TopicResult{Topic: topic, Evidence: ev, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// hop runs one evidence and reasoning round and records its cost.
func (r *run) hop(ctx context.Context, topics []string, confidence float64) (*reasoning.Synthesis, error) {
	s := r.session
	if err := s.Transition(model.SessionSearching); err != nil {
		return nil, r.fail(ctx, StageHop, err)
	}
	hop := s.BeginHop(confidence)
	hop.Queries = topics
	log := r.log.With(zap.Int("hop", hop.Number))

	var hopEvidence []model.Evidence
	for _, tr := range r.gather(ctx, topics) {
		if tr.Err != nil {
			r.topicsFailed++
			log.Warn("research: topic search failed", zap.String("topic", tr.Topic), zap.Error(tr.Err))
			continue
		}
		hop.SourcesFound += len(tr.Evidence)
		hop.SourcesAdded += r.pool.add(tr.Evidence)
		hopEvidence = append(hopEvidence, tr.Evidence...)
	}
	log.Info("research: evidence gathered",
		zap.Int("topics", len(topics)),
		zap.Int("found", hop.SourcesFound),
		zap.Int("new", hop.SourcesAdded),
	)

	if err := s.Transition(model.SessionAnalyzing); err != nil {
		return nil, r.fail(ctx, StageHop, err)
	}
	usage := reasoning.Usage{}
	if hop.Number == 1 {
		// Planning tokens are billed with the first hop.
		usage = r.lastUsage
	}

	generated, u, err := r.c.deps.Reasoning.GenerateHypotheses(ctx, r.researchContext(), hopEvidence)
	if err != nil {
		return nil, r.fail(ctx, StageHypotheses, err)
	}
	usage = usage.Add(u)
	if len(generated) > 0 {
		r.hypotheses = generated
	}
	if len(r.hypotheses) == 0 {
		r.hypotheses = reasoning.FallbackPlan(r.query).Hypotheses
	}

	all := r.pool.items()
	hopResults := make([]reasoning.TestResult, 0, len(r.hypotheses))
	for _, h := range r.hypotheses {
		res, u, err := r.c.deps.Reasoning.TestHypothesis(ctx, h, all)
		if err != nil {
			return nil, r.fail(ctx, StageTest, err)
		}
		usage = usage.Add(u)
		hopResults = append(hopResults, *res)
	}
	r.results = append(r.results, hopResults...)

	if err := s.Transition(model.SessionValidating); err != nil {
		return nil, r.fail(ctx, StageHop, err)
	}
	syn, u, err := r.c.deps.Reasoning.Synthesize(ctx, hopResults, r.query)
	if err != nil {
		return nil, r.fail(ctx, StageSynthesize, err)
	}
	usage = usage.Add(u)

	hop.ConfidenceAfter = syn.Confidence
	hop.Findings = syn.KeyFindings
	hop.EndedAt = time.Now().UTC()

	r.lastHop = hop
	r.lastOps = len(topics)
	r.lastUsage = usage
	if err := r.record(ctx); err != nil {
		return nil, r.fail(ctx, StageLedger, err)
	}
	r.lastHop = s.Hops[len(s.Hops)-1]

	log.Info("research: hop complete",
		zap.Float64("confidence", syn.Confidence),
		zap.Float64("gain", hop.Gain()),
		zap.Float64("total_cost", s.TotalCost),
	)
	r.archive(ctx)
	return syn, nil
}

// record prices the last hop and forwards any budget alert.
func (r *run) record(ctx context.Context, opts ...cost.RecordOption) error {
	if r.lastUsage.Priced {
		opts = append(opts, cost.WithReasoningCost(r.lastUsage.Cost))
	}
	_, alert, err := r.c.deps.Ledger.Record(r.session, r.lastHop, r.lastOps, r.lastUsage.Tokens, opts...)
	if err != nil {
		return err
	}
	if alert != nil {
		r.log.Warn("research: budget alert", zap.String("level", string(alert.Level)), zap.String("message", alert.Message))
		if r.c.deps.Notifier != nil {
			r.c.deps.Notifier.Notify(ctx, *alert)
		}
	}
	return nil
}

// recordExtra bills usage incurred after the loop to the last hop. The
// costs already on the hop are kept; only u is priced at the current rates.
func (r *run) recordExtra(ctx context.Context, u reasoning.Usage) error {
	if u == (reasoning.Usage{}) || r.lastHop.Number == 0 {
		return nil
	}
	extra := u.Cost
	if !u.Priced {
		extra = r.c.deps.Ledger.Estimate(0, u.Tokens)
	}
	prev := r.lastHop
	r.lastUsage = reasoning.Usage{
		Tokens: prev.ReasoningTokens + u.Tokens,
		Cost:   prev.ReasoningCost + extra,
		Priced: true,
	}
	if err := r.record(ctx, cost.WithSearchCost(prev.SearchCost)); err != nil {
		return err
	}
	r.lastHop = r.session.Hops[len(r.session.Hops)-1]
	return nil
}

// researchContext summarises what is known so far for hypothesis generation.
func (r *run) researchContext() string {
	var b strings.Builder
	b.WriteString(r.query)
	if len(r.plan.InformationGaps) > 0 {
		b.WriteString("\nKnown gaps: ")
		b.WriteString(strings.Join(r.plan.InformationGaps, "; "))
	}
	if len(r.gaps) > 0 {
		b.WriteString("\nStill open: ")
		b.WriteString(strings.Join(r.gaps, "; "))
	}
	for _, h := range r.session.Hops {
		for _, f := range h.Findings {
			b.WriteString("\nFinding: ")
			b.WriteString(f)
		}
	}
	return b.String()
}

// evidencePool accumulates unique evidence across hops, keyed by URL (or
// title when there is no URL).
type evidencePool struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []model.Evidence
}

func newEvidencePool() *evidencePool {
	return &evidencePool{seen: make(map[string]struct{})}
}

// add stores new items and returns how many were not seen before.
func (p *evidencePool) add(items []model.Evidence) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	added := 0
	for _, e := range items {
		key := strings.TrimSpace(e.URL)
		if key == "" {
			key = "title:" + strings.TrimSpace(e.Title)
		}
		if _, ok := p.seen[key]; ok {
			continue
		}
		p.seen[key] = struct{}{}
		p.order = append(p.order, e)
		added++
	}
	return added
}

func (p *evidencePool) items() []model.Evidence {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Evidence, len(p.order))
	copy(out, p.order)
	return out
}

func (p *evidencePool) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}
