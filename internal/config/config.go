package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/vis2attr/internal/apperr"
	"github.com/sells-group/vis2attr/internal/cost"
	"github.com/sells-group/vis2attr/internal/decision"
)

// Config holds the full application configuration.
type Config struct {
	Provider   ProviderConfig     `yaml:"provider" mapstructure:"provider"`
	Retry      RetryConfig        `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig      `yaml:"circuit" mapstructure:"circuit"`
	Schema     SchemaConfig       `yaml:"schema" mapstructure:"schema"`
	Prompt     PromptConfig       `yaml:"prompt" mapstructure:"prompt"`
	Thresholds map[string]float64 `yaml:"thresholds" mapstructure:"thresholds"`
	IO         IOConfig           `yaml:"io" mapstructure:"io"`
	Storage    StorageConfig      `yaml:"storage" mapstructure:"storage"`
	Batch      BatchConfig        `yaml:"batch" mapstructure:"batch"`
	Output     OutputConfig       `yaml:"output" mapstructure:"output"`
	Server     ServerConfig       `yaml:"server" mapstructure:"server"`
	Log        LogConfig          `yaml:"log" mapstructure:"log"`
	Pricing    cost.Rates         `yaml:"pricing" mapstructure:"pricing"`
}

// ProviderConfig selects and configures the vision model provider.
type ProviderConfig struct {
	Name              string  `yaml:"name" mapstructure:"name"`
	Model             string  `yaml:"model" mapstructure:"model"`
	AnthropicKey      string  `yaml:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	AnthropicBaseURL  string  `yaml:"anthropic_base_url" mapstructure:"anthropic_base_url"`
	MistralKey        string  `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralBaseURL    string  `yaml:"mistral_base_url" mapstructure:"mistral_base_url"`
	StubResponse      string  `yaml:"stub_response" mapstructure:"stub_response"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// RetryConfig configures backoff for transient provider failures.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the provider circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// SchemaConfig points at the attribute schema file. Empty uses the
// built-in product schema.
type SchemaConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PromptConfig points at a custom prompt template.
type PromptConfig struct {
	TemplatePath string `yaml:"template_path" mapstructure:"template_path"`
}

// IOConfig configures image ingestion.
type IOConfig struct {
	MaxImagesPerItem int      `yaml:"max_images_per_item" mapstructure:"max_images_per_item"`
	MaxResolution    int      `yaml:"max_resolution" mapstructure:"max_resolution"`
	SupportedFormats []string `yaml:"supported_formats" mapstructure:"supported_formats"`
	StripEXIF        bool     `yaml:"strip_exif" mapstructure:"strip_exif"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Backend     string `yaml:"backend" mapstructure:"backend"`
	Root        string `yaml:"root" mapstructure:"root"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	ParquetPath string `yaml:"parquet_path" mapstructure:"parquet_path"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// OutputConfig configures the tabular results file.
type OutputConfig struct {
	Path   string `yaml:"path" mapstructure:"path"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. An empty path
// searches the working directory for vis2attr.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vis2attr")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("VIS2ATTR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("provider.name", "anthropic")
	v.SetDefault("provider.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("provider.anthropic_api_key", "")
	v.SetDefault("provider.mistral_api_key", "")
	v.SetDefault("provider.max_tokens", 1024)
	v.SetDefault("provider.temperature", 0.0)
	v.SetDefault("provider.requests_per_second", 2.0)
	v.SetDefault("provider.timeout_secs", 60)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("thresholds", decision.DefaultThresholds().Map())
	v.SetDefault("io.max_images_per_item", 3)
	v.SetDefault("io.max_resolution", 768)
	v.SetDefault("io.supported_formats", []string{".jpg", ".jpeg", ".png", ".webp"})
	v.SetDefault("io.strip_exif", true)
	v.SetDefault("storage.backend", "files")
	v.SetDefault("storage.root", "./data")
	v.SetDefault("storage.database_url", "")
	v.SetDefault("storage.sqlite_path", "./data/vis2attr.db")
	v.SetDefault("storage.parquet_path", "./data/storage.parquet")
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("output.path", "results.csv")
	v.SetDefault("output.format", "csv")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional unless given explicitly)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, apperr.Wrap(apperr.KindConfig, err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperr.Wrap(apperr.KindConfig, err, "config: unmarshal")
	}
	cfg.Pricing = cost.DefaultRates().Merge(cfg.Pricing)

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "analyze", "serve", "report", "items" and "schema". All problems are
// reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "analyze", "serve":
		errs = append(errs, c.validateProvider()...)
		errs = append(errs, c.validateStorage()...)
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64 {
			errs = append(errs, fmt.Sprintf("batch.concurrency must be between 1 and 64, got %d", c.Batch.Concurrency))
		}
		if c.IO.MaxImagesPerItem < 1 {
			errs = append(errs, fmt.Sprintf("io.max_images_per_item must be >= 1, got %d", c.IO.MaxImagesPerItem))
		}
		if c.IO.MaxResolution < 1 {
			errs = append(errs, fmt.Sprintf("io.max_resolution must be >= 1, got %d", c.IO.MaxResolution))
		}
		if c.Retry.MaxAttempts < 1 {
			errs = append(errs, fmt.Sprintf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts))
		}
		if _, err := decision.ParseThresholds(c.Thresholds); err != nil {
			errs = append(errs, err.Error())
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if mode == "analyze" {
			switch c.Output.Format {
			case "csv", "xlsx", "jsonl", "parquet":
			default:
				errs = append(errs, fmt.Sprintf("unknown output.format %q", c.Output.Format))
			}
		}
	case "report":
		if _, err := decision.ParseThresholds(c.Thresholds); err != nil {
			errs = append(errs, err.Error())
		}
	case "items":
		errs = append(errs, c.validateStorage()...)
	case "schema":
	default:
		return apperr.Errorf(apperr.KindConfig, "config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return apperr.New(apperr.KindConfig, "config: "+strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateProvider() []string {
	var errs []string
	switch c.Provider.Name {
	case "anthropic":
		if c.Provider.AnthropicKey == "" {
			errs = append(errs, "provider.anthropic_api_key is required")
		}
	case "mistral":
		if c.Provider.MistralKey == "" {
			errs = append(errs, "provider.mistral_api_key is required")
		}
	case "stub":
	case "":
		errs = append(errs, "provider.name is required")
	default:
		errs = append(errs, fmt.Sprintf("unknown provider.name %q", c.Provider.Name))
	}
	if c.Provider.Temperature < 0 || c.Provider.Temperature > 1 {
		errs = append(errs, fmt.Sprintf("provider.temperature must be in [0,1], got %v", c.Provider.Temperature))
	}
	if c.Provider.MaxTokens < 1 {
		errs = append(errs, "provider.max_tokens must be > 0")
	}
	return errs
}

func (c *Config) validateStorage() []string {
	switch c.Storage.Backend {
	case "files":
		if c.Storage.Root == "" {
			return []string{"storage.root is required"}
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return []string{"storage.sqlite_path is required"}
		}
	case "parquet":
		if c.Storage.ParquetPath == "" {
			return []string{"storage.parquet_path is required"}
		}
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return []string{"storage.database_url is required"}
		}
	default:
		return []string{fmt.Sprintf("unknown storage.backend %q", c.Storage.Backend)}
	}
	return nil
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
