package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Research.MinQueryLength)
	assert.InDelta(t, 0.85, cfg.Research.ConfidenceTarget, 0.001)
	assert.InDelta(t, 0.95, cfg.Research.EarlyStopThreshold, 0.001)
	assert.InDelta(t, 0.20, cfg.Research.Depths["quick"].Budget, 0.001)
	assert.Equal(t, 1, cfg.Research.Depths["quick"].MaxHops)
	assert.Equal(t, 3, cfg.Research.Depths["standard"].MaxHops)
	assert.InDelta(t, 2.00, cfg.Research.Depths["deep"].Budget, 0.001)
	assert.InDelta(t, 0.01, cfg.Pricing.TavilyPerSearch, 0.0001)
	assert.InDelta(t, 0.003, cfg.Pricing.LLMPer1KTokens, 0.0001)
	assert.InDelta(t, 0.85, cfg.Reconcile.SimilarityThreshold, 0.001)
	assert.InDelta(t, 0.70, cfg.Reconcile.MergeThreshold, 0.001)
	assert.Equal(t, "INTEGRATE", cfg.Reconcile.UpdateStrategy)
	assert.Equal(t, "tavily", cfg.Evidence.Provider)
	assert.Equal(t, "https://api.tavily.com", cfg.Tavily.BaseURL)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
	assert.Equal(t, "anthropic", cfg.Reasoning.Backend)
	assert.Equal(t, 256, cfg.Index.Dimensions)
	assert.InDelta(t, 3.0, cfg.Notion.RateLimit, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/research
log:
  level: debug
  format: console
research:
  depths:
    quick:
      budget: 0.1
      max_hops: 2
pricing:
  tavily_per_search: 0.02
  llm_per_1k_tokens: 0.01
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 0.1, cfg.Research.Depths["quick"].Budget, 0.001)
	assert.Equal(t, 2, cfg.Research.Depths["quick"].MaxHops)
	assert.InDelta(t, 0.02, cfg.Pricing.TavilyPerSearch, 0.0001)
	assert.InDelta(t, 0.01, cfg.Pricing.LLMPer1KTokens, 0.0001)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Research.Depths["standard"].MaxHops)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("DEEPRESEARCH_STORE_DRIVER", "postgres")
	t.Setenv("DEEPRESEARCH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("DEEPRESEARCH_SERVER_PORT", "3000")
	t.Setenv("DEEPRESEARCH_RECONCILE_MERGE_THRESHOLD", "0.6")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.InDelta(t, 0.6, cfg.Reconcile.MergeThreshold, 0.001)
}

func TestLoadFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "prod.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestWatch_NoConfigFile(t *testing.T) {
	chdirTemp(t)

	watching, err := Watch("", func(*Config) { t.Error("unexpected reload") })
	require.NoError(t, err)
	assert.False(t, watching)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Research.MinQueryLength = 10
	cfg.Research.ConfidenceTarget = 0.85
	cfg.Research.EarlyStopThreshold = 0.95
	cfg.Research.Depths = map[string]DepthConfig{"quick": {Budget: 0.2, MaxHops: 1}}
	cfg.Reconcile.SimilarityThreshold = 0.85
	cfg.Reconcile.MergeThreshold = 0.70
	cfg.Reconcile.UpdateStrategy = "INTEGRATE"
	cfg.Evidence.Provider = "tavily"
	cfg.Tavily.Key = "tvly-key"
	cfg.Reasoning.Backend = "anthropic"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "research.db"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateRun_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("run"))
}

func TestValidateRun_MissingKeys(t *testing.T) {
	cfg := validDefaults()
	cfg.Tavily.Key = ""
	cfg.Anthropic.Key = ""
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tavily.key is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_MCPBackendNeedsCommand(t *testing.T) {
	cfg := validDefaults()
	cfg.Reasoning.Backend = "mcp"

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reasoning.command is required")

	cfg.Reasoning.Command = "reasoner"
	assert.NoError(t, cfg.Validate("run"))
}

func TestValidate_ThresholdOrdering(t *testing.T) {
	cfg := validDefaults()
	cfg.Reconcile.MergeThreshold = 0.9

	err := cfg.Validate("docs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge_threshold must be <= similarity_threshold")
}

func TestValidate_EarlyStopBelowTarget(t *testing.T) {
	cfg := validDefaults()
	cfg.Research.EarlyStopThreshold = 0.5

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "early_stop_threshold")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateDocs_SkipsProviderChecks(t *testing.T) {
	cfg := validDefaults()
	cfg.Tavily.Key = ""
	cfg.Anthropic.Key = ""

	assert.NoError(t, cfg.Validate("docs"))
}

func TestValidatePublish_RequiresNotion(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("publish")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion.token is required")
	assert.Contains(t, err.Error(), "notion.database_id is required")

	cfg.Notion.Token = "secret_abc"
	cfg.Notion.DatabaseID = "db-123"
	assert.NoError(t, cfg.Validate("publish"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_UnsupportedProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Evidence.Provider = "bing"
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `evidence.provider "bing" is not supported`)
	assert.Contains(t, err.Error(), `store.driver "mysql" is not supported`)
}
