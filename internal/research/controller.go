// Package research drives a research session: it plans, runs evidence and
// reasoning hops until a stop condition holds, and hands the findings to
// reconciliation.
package research

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deep-research/internal/cost"
	"github.com/sells-group/deep-research/internal/evidence"
	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/reasoning"
	"github.com/sells-group/deep-research/internal/reconcile"
	"github.com/sells-group/deep-research/internal/similarity"
)

// Reconciler persists findings as a new or updated document.
type Reconciler interface {
	Persist(ctx context.Context, w reconcile.DocumentWriter, f reconcile.Findings) (*reconcile.Outcome, error)
}

// SessionArchive stores session snapshots.
type SessionArchive interface {
	SaveSession(ctx context.Context, session *model.ResearchSession) error
}

// AlertNotifier receives budget alerts as they are raised.
type AlertNotifier interface {
	Notify(ctx context.Context, alert model.BudgetAlert)
}

// Deps are the controller's collaborators. Index, Sessions and Notifier
// are optional.
type Deps struct {
	Evidence   evidence.Source
	Reasoning  reasoning.Service
	Ledger     *cost.Ledger
	Reconciler Reconciler
	Documents  reconcile.DocumentWriter
	Index      similarity.Index
	Sessions   SessionArchive
	Notifier   AlertNotifier
}

// Controller runs research sessions. It holds no per-session state and is
// safe for concurrent Execute calls.
type Controller struct {
	cfg  Config
	deps Deps
}

// New validates deps and returns a Controller.
func New(cfg Config, deps Deps) (*Controller, error) {
	switch {
	case deps.Evidence == nil:
		return nil, eris.New("research: evidence source is required")
	case deps.Reasoning == nil:
		return nil, eris.New("research: reasoning service is required")
	case deps.Ledger == nil:
		return nil, eris.New("research: cost ledger is required")
	case deps.Reconciler == nil || deps.Documents == nil:
		return nil, eris.New("research: reconciler and document store are required")
	}
	if cfg.ConfidenceTarget <= 0 || cfg.ConfidenceTarget > 1 || cfg.EarlyStopThreshold < cfg.ConfidenceTarget {
		return nil, eris.Errorf("research: invalid thresholds target=%.2f early_stop=%.2f", cfg.ConfidenceTarget, cfg.EarlyStopThreshold)
	}
	if cfg.Depths == nil {
		cfg.Depths = model.DefaultDepthProfiles()
	}
	return &Controller{cfg: cfg, deps: deps}, nil
}

// ExecuteOption adjusts a single Execute call.
type ExecuteOption func(*executeOpts)

type executeOpts struct {
	budget    *float64
	sessionID string
}

// WithBudget overrides the depth's default budget ceiling.
func WithBudget(ceiling float64) ExecuteOption {
	return func(o *executeOpts) { o.budget = &ceiling }
}

// WithSessionID fixes the session ID, letting callers track a session
// started in the background.
func WithSessionID(id string) ExecuteOption {
	return func(o *executeOpts) { o.sessionID = id }
}

// run carries the state of one Execute call.
type run struct {
	c       *Controller
	session *model.ResearchSession
	log     *zap.Logger
	query   string
	plan    *reasoning.Plan

	pool         *evidencePool
	results      []reasoning.TestResult
	hypotheses   []reasoning.Hypothesis
	gaps         []string
	topicsFailed int
	warnings     []string
	stalled      int

	lastHop   model.Hop
	lastOps   int
	lastUsage reasoning.Usage
}

// Validate checks a query and depth the way Execute does, without starting
// a session. Failures wrap ErrInvalidInput.
func (c *Controller) Validate(query string, depth model.Depth) error {
	if len([]rune(strings.TrimSpace(query))) < c.cfg.MinQueryLength {
		return eris.Wrapf(ErrInvalidInput, "query must be at least %d characters", c.cfg.MinQueryLength)
	}
	if depth.Rank() < 0 {
		return eris.Wrapf(ErrInvalidInput, "unknown depth %q", depth)
	}
	return nil
}

// Execute researches query at the given depth and persists the result.
func (c *Controller) Execute(ctx context.Context, query string, depth model.Depth, opts ...ExecuteOption) (*model.ResearchResult, error) {
	if err := c.Validate(query, depth); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)

	o := &executeOpts{}
	for _, opt := range opts {
		opt(o)
	}
	profile := c.cfg.profile(depth)
	budget := profile.Budget
	if o.budget != nil {
		if *o.budget < 0 {
			return nil, eris.Wrapf(ErrInvalidInput, "budget must be >= 0, got %.4f", *o.budget)
		}
		budget = *o.budget
	}
	id := o.sessionID
	if id == "" {
		id = uuid.NewString()
	}

	// (1) session
	r := &run{
		c:       c,
		session: model.NewResearchSession(id, query, depth, budget),
		query:   query,
		pool:    newEvidencePool(),
	}
	r.log = zap.L().With(zap.String("session_id", id), zap.String("depth", string(depth)))
	r.log.Info("research: session started", zap.String("query", query), zap.Float64("budget", budget), zap.Int("max_hops", profile.MaxHops))
	r.archive(ctx)

	// (2) plan
	plan, usage, err := c.deps.Reasoning.Plan(ctx, query, "")
	if err != nil {
		return nil, r.fail(ctx, StagePlan, err)
	}
	if plan == nil {
		plan = reasoning.FallbackPlan(query)
	}
	if len(plan.Topics) == 0 {
		plan.Topics = []string{query}
	}
	r.plan = plan
	r.lastUsage = usage
	r.hypotheses = plan.Hypotheses
	r.log.Info("research: planned",
		zap.Strings("topics", plan.Topics),
		zap.Int("hypotheses", len(plan.Hypotheses)),
		zap.Int("estimated_hops", plan.EstimatedHops),
	)

	// (3) informational duplicate check
	r.checkDuplicates(ctx)

	// (4) hops
	if err := r.loop(ctx, profile.MaxHops); err != nil {
		return nil, err
	}

	// (5) cross-hop synthesis
	final, usage, err := c.deps.Reasoning.Synthesize(ctx, r.results, query)
	if err != nil {
		return nil, r.fail(ctx, StageSynthesize, err)
	}
	if err := r.recordExtra(ctx, usage); err != nil {
		return nil, r.fail(ctx, StageLedger, err)
	}

	// (6) persist
	outcome, err := c.deps.Reconciler.Persist(ctx, c.deps.Documents, reconcile.Findings{
		SessionID:    id,
		QueryContext: query,
		Content:      renderDocument(query, plan, final, r.results, r.pool.items()),
		Meta: model.DocumentMeta{
			Title:       documentTitle(query),
			Purpose:     query,
			Topics:      plan.Topics,
			Questions:   []string{query},
			Status:      model.DocumentResearching,
			Confidence:  final.Confidence,
			SourceCount: r.pool.len(),
		},
	})
	if err != nil {
		return nil, r.fail(ctx, StagePersist, err)
	}

	// (7) complete
	if err := r.session.Complete(final.Confidence); err != nil {
		return nil, r.fail(ctx, StagePersist, err)
	}
	r.archive(ctx)

	result := r.result(final, outcome)
	r.log.Info("research: session complete",
		zap.String("operation", string(result.Operation)),
		zap.String("stop_reason", string(result.StopReason)),
		zap.Float64("confidence", result.FinalConfidence),
		zap.Int("hops", result.HopsExecuted),
		zap.Float64("cost", result.TotalCost),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// loop runs hops until a stop condition holds.
func (r *run) loop(ctx context.Context, maxHops int) error {
	if maxHops < 1 {
		maxHops = 1
	}
	topics := r.plan.Topics
	confidence := 0.0

	for n := 1; n <= maxHops; n++ {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, StageHop, eris.Wrap(err, "cancelled"))
		}
		if n > 1 {
			estimate := r.c.deps.Ledger.Estimate(len(topics), r.lastHop.ReasoningTokens)
			if !r.c.deps.Ledger.CanAfford(r.session, estimate, r.session.BudgetTarget) {
				r.log.Info("research: next hop not affordable", zap.Float64("estimate", estimate))
				r.session.StopReason = model.StopBudgetExhausted
				return nil
			}
		}

		syn, err := r.hop(ctx, topics, confidence)
		if err != nil {
			return err
		}
		confidence = syn.Confidence

		if reason, stop := r.stopReason(confidence); stop {
			r.session.StopReason = reason
			r.log.Info("research: stopping", zap.String("reason", string(reason)), zap.Int("hop", n))
			return nil
		}
		topics = r.nextTopics(syn)
	}
	r.session.StopReason = model.StopMaxHops
	return nil
}

// stopReason checks the stop conditions in priority order.
func (r *run) stopReason(confidence float64) (model.StopReason, bool) {
	cfg := r.c.cfg
	s := r.session
	switch {
	case confidence >= cfg.EarlyStopThreshold:
		return model.StopEarly, true
	case confidence >= cfg.ConfidenceTarget:
		return model.StopConfidenceTarget, true
	case s.BudgetTarget > 0 && s.TotalCost >= s.BudgetTarget:
		return model.StopBudgetExhausted, true
	}

	if cfg.StallHops > 0 {
		if r.lastHop.Gain() < cfg.MinGain {
			r.stalled++
		} else {
			r.stalled = 0
		}
		if r.stalled >= cfg.StallHops {
			return model.StopStalled, true
		}
	}
	return "", false
}

// nextTopics searches the remaining gaps next, falling back to the plan.
func (r *run) nextTopics(syn *reasoning.Synthesis) []string {
	r.gaps = syn.GapsRemaining
	if len(syn.GapsRemaining) == 0 {
		return r.plan.Topics
	}
	n := len(r.plan.Topics)
	if n < 1 {
		n = 1
	}
	if len(syn.GapsRemaining) < n {
		n = len(syn.GapsRemaining)
	}
	return syn.GapsRemaining[:n]
}

func (r *run) checkDuplicates(ctx context.Context) {
	if r.c.deps.Index == nil {
		return
	}
	hits, err := r.c.deps.Index.SearchSimilar(ctx, r.query+"\n"+strings.Join(r.plan.Topics, " "), r.c.cfg.DuplicateThreshold, 1)
	if err != nil {
		r.log.Warn("research: duplicate check failed", zap.Error(err))
		return
	}
	if len(hits) == 0 {
		return
	}
	h := hits[0]
	r.log.Info("research: similar document exists", zap.String("document_id", h.ID), zap.Float64("score", h.Score))
	r.warnings = append(r.warnings, "a similar document already exists: "+quoteTitle(h.Title, h.ID)+" (score "+formatScore(h.Score)+")")
}

// fail moves the session to error, archives it and wraps err.
func (r *run) fail(ctx context.Context, stage string, err error) error {
	r.session.Fail(err)
	r.log.Error("research: session failed", zap.String("stage", stage), zap.Error(err))
	r.archive(context.WithoutCancel(ctx))
	return &OrchestrationError{SessionID: r.session.ID, Stage: stage, Err: err}
}

// archive saves a snapshot of the session. Failures are logged only.
func (r *run) archive(ctx context.Context) {
	if r.c.deps.Sessions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := r.c.deps.Sessions.SaveSession(ctx, r.session); err != nil {
		r.log.Warn("research: archive session failed", zap.Error(err))
	}
}
