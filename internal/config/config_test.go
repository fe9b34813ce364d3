package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/vis2attr/internal/apperr"
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
	// Change to temp dir so no vis2attr.yaml is found
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Provider.Model)
	assert.Equal(t, 1024, cfg.Provider.MaxTokens)
	assert.InDelta(t, 2.0, cfg.Provider.RequestsPerSecond, 0.001)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 1000, cfg.Retry.InitialBackoffMs)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 3, cfg.IO.MaxImagesPerItem)
	assert.Equal(t, 768, cfg.IO.MaxResolution)
	assert.Equal(t, []string{".jpg", ".jpeg", ".png", ".webp"}, cfg.IO.SupportedFormats)
	assert.True(t, cfg.IO.StripEXIF)
	assert.Equal(t, "files", cfg.Storage.Backend)
	assert.Equal(t, "./data", cfg.Storage.Root)
	assert.Equal(t, "./data/storage.parquet", cfg.Storage.ParquetPath)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, "csv", cfg.Output.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.InDelta(t, 0.75, cfg.Thresholds["default"], 0.001)
	assert.InDelta(t, 0.80, cfg.Thresholds["brand"], 0.001)
	assert.InDelta(t, 0.30, cfg.Pricing.Fallback.Input, 0.001)
	assert.Contains(t, cfg.Pricing.Anthropic, "claude-sonnet-4-5-20250929")
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
provider:
  name: mistral
  model: pixtral-large-latest
storage:
  backend: sqlite
log:
  level: debug
  format: console
batch:
  concurrency: 8
thresholds:
  default: 0.6
  brand: 0.9
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vis2attr.yaml"), []byte(yaml), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mistral", cfg.Provider.Name)
	assert.Equal(t, "pixtral-large-latest", cfg.Provider.Model)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	assert.InDelta(t, 0.6, cfg.Thresholds["default"], 0.001)
	assert.InDelta(t, 0.9, cfg.Thresholds["brand"], 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 768, cfg.IO.MaxResolution)
}

func TestLoadExplicitPath(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestLoadExplicitPathMissing(t *testing.T) {
	chdirTemp(t)

	_, err := Load("does-not-exist.yaml")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfig))
}

func TestLoadPricingOverride(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
pricing:
  mistral:
    pixtral-12b-latest:
      input: 1.5
      output: 2.5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vis2attr.yaml"), []byte(yaml), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, cfg.Pricing.Mistral["pixtral-12b-latest"].Input, 0.001)
	assert.InDelta(t, 0.60, cfg.Pricing.Mistral["pixtral-large-latest"].Input, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
storage:
  backend: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vis2attr.yaml"), []byte(yaml), 0644))

	t.Setenv("VIS2ATTR_STORAGE_BACKEND", "postgres")
	t.Setenv("VIS2ATTR_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("VIS2ATTR_SERVER_PORT", "3000")
	t.Setenv("VIS2ATTR_PROVIDER_ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sk-ant-test", cfg.Provider.AnthropicKey)
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
	cfg.Provider.Name = "stub"
	cfg.Provider.MaxTokens = 1024
	cfg.Retry.MaxAttempts = 3
	cfg.IO.MaxImagesPerItem = 3
	cfg.IO.MaxResolution = 768
	cfg.Storage.Backend = "files"
	cfg.Storage.Root = "./data"
	cfg.Batch.Concurrency = 4
	cfg.Output.Format = "csv"
	cfg.Server.Port = 8080
	cfg.Thresholds = map[string]float64{"default": 0.75}
	return cfg
}

func TestValidateAnalyze_AllPresent(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("analyze"))
}

func TestValidateAnalyze_MissingKeys(t *testing.T) {
	cfg := validDefaults()
	cfg.Provider.Name = "anthropic"
	cfg.Storage.Backend = "postgres"

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfig))
	assert.Contains(t, err.Error(), "provider.anthropic_api_key is required")
	assert.Contains(t, err.Error(), "storage.database_url is required")
}

func TestValidateAnalyze_MistralKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Provider.Name = "mistral"
	assert.ErrorContains(t, cfg.Validate("analyze"), "provider.mistral_api_key is required")

	cfg.Provider.MistralKey = "mk"
	assert.NoError(t, cfg.Validate("analyze"))
}

func TestValidateUnknownProviderAndBackend(t *testing.T) {
	cfg := validDefaults()
	cfg.Provider.Name = "openai"
	cfg.Storage.Backend = "s3"

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider.name "openai"`)
	assert.Contains(t, err.Error(), `unknown storage.backend "s3"`)
}

func TestValidateThresholds(t *testing.T) {
	cfg := validDefaults()
	cfg.Thresholds = map[string]float64{"brand": 0.8}
	assert.ErrorContains(t, cfg.Validate("analyze"), "default")

	cfg.Thresholds = map[string]float64{"default": 0.5, "brand": 1.5}
	assert.ErrorContains(t, cfg.Validate("report"), "brand")
}

func TestValidateOutputFormat(t *testing.T) {
	cfg := validDefaults()
	for _, f := range []string{"csv", "xlsx", "jsonl", "parquet"} {
		cfg.Output.Format = f
		assert.NoError(t, cfg.Validate("analyze"), f)
	}
	cfg.Output.Format = "orc"
	assert.ErrorContains(t, cfg.Validate("analyze"), "output.format")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.Concurrency = 0
	assert.ErrorContains(t, cfg.Validate("analyze"), "batch.concurrency must be between 1 and 64")

	cfg.Batch.Concurrency = 65
	assert.ErrorContains(t, cfg.Validate("analyze"), "batch.concurrency must be between 1 and 64")

	cfg.Batch.Concurrency = 64
	assert.NoError(t, cfg.Validate("analyze"))
}

func TestValidateTemperature(t *testing.T) {
	cfg := validDefaults()
	cfg.Provider.Temperature = 1.5
	assert.ErrorContains(t, cfg.Validate("analyze"), "provider.temperature")
}

func TestValidateItemsOnlyChecksStorage(t *testing.T) {
	cfg := validDefaults()
	cfg.Provider.Name = "anthropic"
	assert.NoError(t, cfg.Validate("items"))

	cfg.Storage.Backend = "sqlite"
	cfg.Storage.SQLitePath = ""
	assert.ErrorContains(t, cfg.Validate("items"), "storage.sqlite_path is required")

	cfg.Storage.Backend = "parquet"
	cfg.Storage.ParquetPath = ""
	assert.ErrorContains(t, cfg.Validate("items"), "storage.parquet_path is required")
	cfg.Storage.ParquetPath = "./data/storage.parquet"
	assert.NoError(t, cfg.Validate("items"))
}

func TestValidateSchemaMode(t *testing.T) {
	cfg := &Config{}
	assert.NoError(t, cfg.Validate("schema"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
