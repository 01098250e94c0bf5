package main

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deep-research/internal/config"
	"github.com/sells-group/deep-research/internal/cost"
	"github.com/sells-group/deep-research/internal/evidence"
	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/monitoring"
	"github.com/sells-group/deep-research/internal/reasoning"
	"github.com/sells-group/deep-research/internal/reconcile"
	"github.com/sells-group/deep-research/internal/research"
	"github.com/sells-group/deep-research/internal/similarity"
	"github.com/sells-group/deep-research/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite", "":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "deep-research.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// library is the document store plus the indexes and reconciliation engine
// that sit on top of it.
type library struct {
	Store   store.Store
	Vector  *similarity.VectorIndex
	Keyword *similarity.KeywordIndex
	Index   *similarity.Combined
	Engine  *reconcile.Engine

	vectorPath string
}

func vectorPath() string  { return filepath.Join(cfg.Index.Dir, "vectors.gob") }
func keywordPath() string { return filepath.Join(cfg.Index.Dir, "keyword.bleve") }

func initLibrary(ctx context.Context) (*library, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	lib := &library{Store: st, vectorPath: vectorPath()}

	lib.Vector = similarity.NewVectorIndex(similarity.NewHashEmbedder(cfg.Index.Dimensions))
	if err := lib.Vector.Load(lib.vectorPath); err != nil {
		lib.Close()
		return nil, err
	}
	lib.Keyword, err = similarity.NewKeywordIndex(keywordPath())
	if err != nil {
		lib.Close()
		return nil, err
	}
	lib.Index = &similarity.Combined{Vector: lib.Vector, Keyword: lib.Keyword}

	if lib.Vector.Len() == 0 {
		if err := lib.reindex(ctx); err != nil {
			lib.Close()
			return nil, err
		}
	}

	lib.Engine, err = reconcile.New(reconcile.Config{
		SimilarityThreshold: cfg.Reconcile.SimilarityThreshold,
		MergeThreshold:      cfg.Reconcile.MergeThreshold,
		CandidateLimit:      cfg.Reconcile.CandidateLimit,
		UpdateStrategy:      model.MergeStrategy(strings.ToUpper(cfg.Reconcile.UpdateStrategy)),
		DocumentDir:         cfg.Reconcile.DocumentDir,
	}, lib.Index, st)
	if err != nil {
		lib.Close()
		return nil, err
	}
	return lib, nil
}

// reindex rebuilds both indexes from the store.
func (l *library) reindex(ctx context.Context) error {
	docs, err := l.Store.ListDocuments(ctx, store.DocumentFilter{Limit: -1})
	if err != nil {
		return eris.Wrap(err, "reindex: list documents")
	}
	for i := range docs {
		if err := l.Index.AddDocument(ctx, &docs[i]); err != nil {
			return eris.Wrapf(err, "reindex: %s", docs[i].ID)
		}
	}
	if len(docs) > 0 {
		zap.L().Info("rebuilt document indexes", zap.Int("documents", len(docs)))
	}
	return nil
}

// Close saves the vector index and releases everything.
func (l *library) Close() {
	if l.Vector != nil && l.Vector.Len() > 0 {
		if err := l.Vector.Save(l.vectorPath); err != nil {
			zap.L().Warn("save vector index failed", zap.Error(err))
		}
	}
	if l.Keyword != nil {
		l.Keyword.Close() //nolint:errcheck
	}
	if l.Store != nil {
		l.Store.Close() //nolint:errcheck
	}
}

// researchEnv is everything a research session needs.
type researchEnv struct {
	*library
	Pricing    *cost.PricingSource
	Reasoning  reasoning.Service
	Alerter    *monitoring.Alerter
	Controller *research.Controller
}

// pricingFrom reads the flat rates from c, keeping defaults for unset ones.
func pricingFrom(c *config.Config) cost.Pricing {
	p := cost.DefaultPricing()
	if c.Pricing.TavilyPerSearch > 0 {
		p.TavilyPerSearch = c.Pricing.TavilyPerSearch
	}
	if c.Pricing.LLMPer1KTokens > 0 {
		p.LLMPer1KTokens = c.Pricing.LLMPer1KTokens
	}
	return p
}

func initResearch(ctx context.Context, mode string) (*researchEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	lib, err := initLibrary(ctx)
	if err != nil {
		return nil, err
	}
	env := &researchEnv{
		library: lib,
		Pricing: cost.NewPricingSource(pricingFrom(cfg)),
		Alerter: monitoring.NewAlerter(cfg.Monitoring),
	}

	src, err := evidence.NewFromConfig(cfg)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Reasoning, err = reasoning.NewFromConfig(ctx, cfg)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Controller, err = research.New(research.ConfigFrom(cfg), research.Deps{
		Evidence:   src,
		Reasoning:  env.Reasoning,
		Ledger:     cost.NewLedger(env.Pricing),
		Reconciler: lib.Engine,
		Documents:  lib.Store,
		Index:      lib.Index,
		Sessions:   lib.Store,
		Notifier:   env.Alerter,
	})
	if err != nil {
		env.Close()
		return nil, err
	}

	zap.L().Info("research environment ready",
		zap.String("evidence", src.Name()),
		zap.String("reasoning", cfg.Reasoning.Backend),
		zap.String("store", cfg.Store.Driver),
		zap.Int("indexed_documents", lib.Vector.Len()),
	)
	return env, nil
}

func (e *researchEnv) Close() {
	if e.Reasoning != nil {
		if err := e.Reasoning.Close(); err != nil {
			zap.L().Warn("close reasoning service failed", zap.Error(err))
		}
	}
	e.library.Close()
}
