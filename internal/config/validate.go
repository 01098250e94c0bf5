package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the configuration for the given command mode: "run",
// "serve", "docs" or "publish". All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run", "serve":
		errs = append(errs, c.validateResearch()...)
		errs = append(errs, c.validateProviders()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "docs":
	case "publish":
		if c.Notion.Token == "" {
			errs = append(errs, "notion.token is required")
		}
		if c.Notion.DatabaseID == "" {
			errs = append(errs, "notion.database_id is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	errs = append(errs, c.validateReconcile()...)
	errs = append(errs, c.validateStore()...)

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateResearch() []string {
	var errs []string
	r := c.Research
	if r.MinQueryLength < 1 {
		errs = append(errs, "research.min_query_length must be >= 1")
	}
	if r.ConfidenceTarget <= 0 || r.ConfidenceTarget > 1 {
		errs = append(errs, "research.confidence_target must be in (0, 1]")
	}
	if r.EarlyStopThreshold < r.ConfidenceTarget || r.EarlyStopThreshold > 1 {
		errs = append(errs, "research.early_stop_threshold must be between confidence_target and 1")
	}
	for name, d := range r.Depths {
		if d.Budget < 0 {
			errs = append(errs, fmt.Sprintf("research.depths.%s.budget must be >= 0", name))
		}
		if d.MaxHops < 1 {
			errs = append(errs, fmt.Sprintf("research.depths.%s.max_hops must be >= 1", name))
		}
	}
	if c.Pricing.TavilyPerSearch < 0 || c.Pricing.LLMPer1KTokens < 0 {
		errs = append(errs, "pricing rates must be >= 0")
	}
	return errs
}

func (c *Config) validateProviders() []string {
	var errs []string
	switch c.Evidence.Provider {
	case "tavily":
		if c.Tavily.Key == "" {
			errs = append(errs, "tavily.key is required")
		}
	case "jina":
		if c.Jina.Key == "" {
			errs = append(errs, "jina.key is required")
		}
	case "perplexity":
		if c.Perplexity.Key == "" {
			errs = append(errs, "perplexity.key is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("evidence.provider %q is not supported", c.Evidence.Provider))
	}

	switch c.Reasoning.Backend {
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "mcp":
		if c.Reasoning.Command == "" {
			errs = append(errs, "reasoning.command is required for the mcp backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("reasoning.backend %q is not supported", c.Reasoning.Backend))
	}
	return errs
}

func (c *Config) validateReconcile() []string {
	var errs []string
	rc := c.Reconcile
	if rc.SimilarityThreshold < 0 || rc.SimilarityThreshold > 1 {
		errs = append(errs, "reconcile.similarity_threshold must be in [0, 1]")
	}
	if rc.MergeThreshold < 0 || rc.MergeThreshold > 1 {
		errs = append(errs, "reconcile.merge_threshold must be in [0, 1]")
	}
	if rc.MergeThreshold > rc.SimilarityThreshold {
		errs = append(errs, "reconcile.merge_threshold must be <= similarity_threshold")
	}
	switch strings.ToUpper(rc.UpdateStrategy) {
	case "APPEND", "INTEGRATE", "REPLACE":
	default:
		errs = append(errs, fmt.Sprintf("reconcile.update_strategy %q is not supported", rc.UpdateStrategy))
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
		return nil
	default:
		return []string{fmt.Sprintf("store.driver %q is not supported", c.Store.Driver)}
	}
}
