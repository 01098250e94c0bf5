package research

import (
	"github.com/sells-group/deep-research/internal/config"
	"github.com/sells-group/deep-research/internal/model"
)

// Config tunes the hop loop.
type Config struct {
	MinQueryLength     int
	ConfidenceTarget   float64
	EarlyStopThreshold float64
	// StallHops consecutive hops gaining less than MinGain end the loop.
	// Zero disables stall detection.
	StallHops       int
	MinGain         float64
	ResultsPerTopic int
	// DuplicateThreshold is the similarity at which an existing document
	// is reported as a likely duplicate before research starts.
	DuplicateThreshold float64
	Depths             map[model.Depth]model.DepthProfile
}

// DefaultConfig returns the built-in tuning.
func DefaultConfig() Config {
	return Config{
		MinQueryLength:     10,
		ConfidenceTarget:   0.85,
		EarlyStopThreshold: 0.95,
		StallHops:          2,
		MinGain:            0.02,
		ResultsPerTopic:    5,
		DuplicateThreshold: 0.85,
		Depths:             model.DefaultDepthProfiles(),
	}
}

// ConfigFrom maps application config onto controller tuning. Depth tiers
// missing from the file keep their defaults.
func ConfigFrom(cfg *config.Config) Config {
	out := DefaultConfig()
	r := cfg.Research
	if r.MinQueryLength > 0 {
		out.MinQueryLength = r.MinQueryLength
	}
	if r.ConfidenceTarget > 0 {
		out.ConfidenceTarget = r.ConfidenceTarget
	}
	if r.EarlyStopThreshold > 0 {
		out.EarlyStopThreshold = r.EarlyStopThreshold
	}
	if r.StallHops >= 0 {
		out.StallHops = r.StallHops
	}
	if r.MinGain > 0 {
		out.MinGain = r.MinGain
	}
	if r.ResultsPerTopic > 0 {
		out.ResultsPerTopic = r.ResultsPerTopic
	}
	if cfg.Reconcile.SimilarityThreshold > 0 {
		out.DuplicateThreshold = cfg.Reconcile.SimilarityThreshold
	}
	for name, d := range r.Depths {
		depth, err := model.ParseDepth(name)
		if err != nil {
			continue
		}
		out.Depths[depth] = model.DepthProfile{Budget: d.Budget, MaxHops: d.MaxHops}
	}
	return out
}

func (c Config) profile(d model.Depth) model.DepthProfile {
	if p, ok := c.Depths[d]; ok {
		return p
	}
	return model.DefaultDepthProfiles()[d]
}
