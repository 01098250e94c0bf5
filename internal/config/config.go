package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Reconcile  ReconcileConfig  `yaml:"reconcile" mapstructure:"reconcile"`
	Evidence   EvidenceConfig   `yaml:"evidence" mapstructure:"evidence"`
	Tavily     TavilyConfig     `yaml:"tavily" mapstructure:"tavily"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Reasoning  ReasoningConfig  `yaml:"reasoning" mapstructure:"reasoning"`
	Index      IndexConfig      `yaml:"index" mapstructure:"index"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ResearchConfig tunes the hop loop.
type ResearchConfig struct {
	MinQueryLength     int                    `yaml:"min_query_length" mapstructure:"min_query_length"`
	ConfidenceTarget   float64                `yaml:"confidence_target" mapstructure:"confidence_target"`
	EarlyStopThreshold float64                `yaml:"early_stop_threshold" mapstructure:"early_stop_threshold"`
	StallHops          int                    `yaml:"stall_hops" mapstructure:"stall_hops"`
	MinGain            float64                `yaml:"min_gain" mapstructure:"min_gain"`
	ResultsPerTopic    int                    `yaml:"results_per_topic" mapstructure:"results_per_topic"`
	Depths             map[string]DepthConfig `yaml:"depths" mapstructure:"depths"`
}

// DepthConfig overrides the budget and hop ceiling of a depth tier.
type DepthConfig struct {
	Budget  float64 `yaml:"budget" mapstructure:"budget"`
	MaxHops int     `yaml:"max_hops" mapstructure:"max_hops"`
}

// PricingConfig holds billing rates. The flat rates feed the cost ledger;
// per-model Anthropic rates let the reasoning backend report exact spend.
type PricingConfig struct {
	TavilyPerSearch float64                 `yaml:"tavily_per_search" mapstructure:"tavily_per_search"`
	LLMPer1KTokens  float64                 `yaml:"llm_per_1k_tokens" mapstructure:"llm_per_1k_tokens"`
	Anthropic       map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// ReconcileConfig configures the create/update/merge decision.
type ReconcileConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	MergeThreshold      float64 `yaml:"merge_threshold" mapstructure:"merge_threshold"`
	CandidateLimit      int     `yaml:"candidate_limit" mapstructure:"candidate_limit"`
	UpdateStrategy      string  `yaml:"update_strategy" mapstructure:"update_strategy"`
	DocumentDir         string  `yaml:"document_dir" mapstructure:"document_dir"`
}

// EvidenceConfig selects and throttles the search provider.
type EvidenceConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries           int     `yaml:"retries" mapstructure:"retries"`
}

// TavilyConfig holds Tavily search settings.
type TavilyConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	SearchDepth string `yaml:"search_depth" mapstructure:"search_depth"`
}

// JinaConfig holds Jina search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ReasoningConfig selects the reasoning backend.
type ReasoningConfig struct {
	Backend          string   `yaml:"backend" mapstructure:"backend"`
	Command          string   `yaml:"command" mapstructure:"command"`
	Args             []string `yaml:"args" mapstructure:"args"`
	FailureThreshold int      `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int      `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// IndexConfig locates the similarity and keyword indexes.
type IndexConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures alert delivery and the periodic health check.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// NotionConfig configures publishing documents to a Notion database.
type NotionConfig struct {
	Token      string  `yaml:"token" mapstructure:"token"`
	DatabaseID string  `yaml:"database_id" mapstructure:"database_id"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func newViper(path string) *viper.Viper {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("DEEPRESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("research.min_query_length", 10)
	v.SetDefault("research.confidence_target", 0.85)
	v.SetDefault("research.early_stop_threshold", 0.95)
	v.SetDefault("research.stall_hops", 2)
	v.SetDefault("research.min_gain", 0.02)
	v.SetDefault("research.results_per_topic", 5)
	v.SetDefault("research.depths.quick.budget", 0.20)
	v.SetDefault("research.depths.quick.max_hops", 1)
	v.SetDefault("research.depths.standard.budget", 0.50)
	v.SetDefault("research.depths.standard.max_hops", 3)
	v.SetDefault("research.depths.deep.budget", 2.00)
	v.SetDefault("research.depths.deep.max_hops", 5)
	v.SetDefault("pricing.tavily_per_search", 0.01)
	v.SetDefault("pricing.llm_per_1k_tokens", 0.003)
	v.SetDefault("reconcile.similarity_threshold", 0.85)
	v.SetDefault("reconcile.merge_threshold", 0.70)
	v.SetDefault("reconcile.candidate_limit", 5)
	v.SetDefault("reconcile.update_strategy", "INTEGRATE")
	v.SetDefault("reconcile.document_dir", "research")
	v.SetDefault("evidence.provider", "tavily")
	v.SetDefault("evidence.requests_per_second", 2.0)
	v.SetDefault("evidence.burst", 4)
	v.SetDefault("evidence.timeout_secs", 20)
	v.SetDefault("evidence.retries", 3)
	v.SetDefault("tavily.base_url", "https://api.tavily.com")
	v.SetDefault("tavily.search_depth", "basic")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("reasoning.backend", "anthropic")
	v.SetDefault("reasoning.failure_threshold", 5)
	v.SetDefault("reasoning.reset_timeout_secs", 30)
	v.SetDefault("index.dir", ".deep-research/index")
	v.SetDefault("index.dimensions", 256)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "deep-research.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 25.0)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("notion.rate_limit", 3.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	return v
}

// Load reads ./config.yaml, if present, and the environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path falls back
// to the optional ./config.yaml; a named file must exist.
func LoadFile(path string) (*Config, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Watch re-reads the config file whenever it changes on disk and hands the
// fresh Config to onChange. path selects the file as in LoadFile. It
// returns false when there is no config file to watch.
func Watch(path string, onChange func(*Config)) (bool, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		return false, eris.Wrap(err, "config: read file")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			zap.L().Warn("config: reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		zap.L().Info("config: reloaded", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		onChange(cfg)
	})
	v.WatchConfig()
	return true, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
