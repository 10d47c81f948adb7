package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	ExecutorInline   = "inline"
	ExecutorTemporal = "temporal"
)

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

type ImportConfig struct {
	KeyColumn string `mapstructure:"key_column"`
	BatchSize int    `mapstructure:"batch_size"`
	Executor  string `mapstructure:"executor"`
}

type ProgressConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Listen       bool          `mapstructure:"listen"`
}

type WebhookConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	SigningKey string        `mapstructure:"signing_key"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
	// MaxConcurrentImports caps parallel imports per worker; 0 keeps the SDK default.
	MaxConcurrentImports int `mapstructure:"max_concurrent_imports"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type Config struct {
	DatabaseURL string         `mapstructure:"database_url"`
	ServerPort  string         `mapstructure:"server_port"`
	Log         LogConfig      `mapstructure:"log"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Import      ImportConfig   `mapstructure:"import"`
	Progress    ProgressConfig `mapstructure:"progress"`
	Webhook     WebhookConfig  `mapstructure:"webhook"`
	Temporal    TemporalConfig `mapstructure:"temporal"`
	CORS        CORSConfig     `mapstructure:"cors"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "")
	v.SetDefault("server_port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("storage.dir", "./uploads")
	v.SetDefault("import.key_column", "sku")
	v.SetDefault("import.batch_size", 2000)
	v.SetDefault("import.executor", ExecutorInline)
	v.SetDefault("progress.poll_interval", 500*time.Millisecond)
	v.SetDefault("progress.listen", false)
	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.signing_key", "")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "CATALOG_IMPORT")
	v.SetDefault("temporal.max_concurrent_imports", 0)
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
}

// Load reads config.yaml from the working directory or ./config, applies
// IMPORTER_* environment overrides (after loading an optional .env file) and
// validates the result. A missing config file is not an error.
func Load(logger zerolog.Logger, paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn().Err(err).Msg("failed to load .env file")
	}

	v := viper.New()
	setDefaults(v)

	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("IMPORTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		logger.Info().Msg("no config file found, using defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.normalize(logger); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize(logger zerolog.Logger) error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("database_url must be set in the config file or IMPORTER_DATABASE_URL")
	}
	if c.ServerPort == "" {
		c.ServerPort = "8080"
	}
	if c.Import.BatchSize < 1 {
		logger.Warn().Int("batch_size", c.Import.BatchSize).Msg("invalid import.batch_size, using 2000")
		c.Import.BatchSize = 2000
	}
	if strings.TrimSpace(c.Import.KeyColumn) == "" {
		c.Import.KeyColumn = "sku"
	}
	c.Import.Executor = strings.ToLower(strings.TrimSpace(c.Import.Executor))
	if c.Import.Executor != ExecutorInline && c.Import.Executor != ExecutorTemporal {
		logger.Warn().Str("executor", c.Import.Executor).Msg("unknown import.executor, using inline")
		c.Import.Executor = ExecutorInline
	}
	if c.Progress.PollInterval <= 0 {
		c.Progress.PollInterval = 500 * time.Millisecond
	}
	if c.Webhook.Timeout <= 0 {
		c.Webhook.Timeout = 10 * time.Second
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "./uploads"
	}
	if c.Temporal.TaskQueue == "" {
		c.Temporal.TaskQueue = "CATALOG_IMPORT"
	}
	return nil
}
