// Package config loads esg-pipeline settings from config.yaml and ESG_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Retention RetentionConfig `yaml:"retention" mapstructure:"retention"`
	NATS      NATSConfig      `yaml:"nats" mapstructure:"nats"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects and configures the record store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres, sqlite, memory
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Table       string `yaml:"table" mapstructure:"table"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourceConfig selects where file drops are read from.
type SourceConfig struct {
	Driver            string        `yaml:"driver" mapstructure:"driver"` // file, http, ftp
	Root              string        `yaml:"root" mapstructure:"root"`
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	FTPAddr           string        `yaml:"ftp_addr" mapstructure:"ftp_addr"`
	FTPUser           string        `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword       string        `yaml:"ftp_password" mapstructure:"ftp_password"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	RetryAttempts     int           `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs    int           `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RetryMaxBackoffMs int           `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
}

// IngestConfig bounds one ingestion invocation.
type IngestConfig struct {
	WindowSize        int           `yaml:"window_size" mapstructure:"window_size"`
	ChunkSize         int           `yaml:"chunk_size" mapstructure:"chunk_size"`
	MaxWindows        int           `yaml:"max_windows" mapstructure:"max_windows"`
	TimeLimit         time.Duration `yaml:"time_limit" mapstructure:"time_limit"`
	RequireEntityName bool          `yaml:"require_entity_name" mapstructure:"require_entity_name"`
	QueueSize         int           `yaml:"queue_size" mapstructure:"queue_size"`
}

// RetentionConfig configures the pruner.
type RetentionConfig struct {
	ChunkSize int  `yaml:"chunk_size" mapstructure:"chunk_size"`
	PageSize  int  `yaml:"page_size" mapstructure:"page_size"`
	DryRun    bool `yaml:"dry_run" mapstructure:"dry_run"`
}

// NATSConfig configures the continuation transport. An empty URL keeps
// continuations in process.
type NATSConfig struct {
	URL     string `yaml:"url" mapstructure:"url"`
	Subject string `yaml:"subject" mapstructure:"subject"`
	Queue   string `yaml:"queue" mapstructure:"queue"`
	Name    string `yaml:"name" mapstructure:"name"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int           `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ESG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "esg.db")
	v.SetDefault("store.table", "esg_records")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("source.driver", "file")
	v.SetDefault("source.root", "./drops")
	v.SetDefault("source.base_url", "")
	v.SetDefault("source.ftp_addr", "")
	v.SetDefault("source.ftp_user", "")
	v.SetDefault("source.ftp_password", "")
	v.SetDefault("source.timeout", 30*time.Second)
	v.SetDefault("source.requests_per_second", 10.0)
	v.SetDefault("source.retry_attempts", 3)
	v.SetDefault("source.retry_backoff_ms", 250)
	v.SetDefault("source.retry_max_backoff_ms", 10000)
	v.SetDefault("ingest.window_size", 500)
	v.SetDefault("ingest.chunk_size", 500)
	v.SetDefault("ingest.max_windows", 0)
	v.SetDefault("ingest.time_limit", 0)
	v.SetDefault("ingest.require_entity_name", false)
	v.SetDefault("ingest.queue_size", 64)
	v.SetDefault("retention.chunk_size", 25)
	v.SetDefault("retention.page_size", 1000)
	v.SetDefault("retention.dry_run", false)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "esg.ingest.continue")
	v.SetDefault("nats.queue", "esg-ingest")
	v.SetDefault("nats.name", "esg-pipeline")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 5*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings required by a command mode:
// "ingest", "prune", "serve" or "worker".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "ingest", "prune", "serve", "worker":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	case "memory":
	default:
		errs = append(errs, "store.driver must be postgres, sqlite or memory")
	}

	if mode != "prune" {
		switch c.Source.Driver {
		case "file":
			if c.Source.Root == "" {
				errs = append(errs, "source.root is required for the file driver")
			}
		case "http":
			if c.Source.BaseURL == "" {
				errs = append(errs, "source.base_url is required for the http driver")
			}
		case "ftp":
			if c.Source.FTPAddr == "" {
				errs = append(errs, "source.ftp_addr is required for the ftp driver")
			}
		default:
			errs = append(errs, "source.driver must be file, http or ftp")
		}
		if c.Ingest.WindowSize <= 0 {
			errs = append(errs, "ingest.window_size must be > 0")
		}
		if c.Ingest.ChunkSize <= 0 {
			errs = append(errs, "ingest.chunk_size must be > 0")
		}
		if c.Ingest.MaxWindows < 0 {
			errs = append(errs, "ingest.max_windows must be >= 0")
		}
	}

	if mode == "prune" {
		if c.Retention.ChunkSize <= 0 {
			errs = append(errs, "retention.chunk_size must be > 0")
		}
		if c.Retention.PageSize <= 0 {
			errs = append(errs, "retention.page_size must be > 0")
		}
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}
	if mode == "worker" && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required for worker mode")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
