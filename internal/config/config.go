package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Tor        TorConfig        `yaml:"tor" mapstructure:"tor"`
	Filter     FilterConfig     `yaml:"filter" mapstructure:"filter"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// IngestConfig configures one ingestion cycle.
type IngestConfig struct {
	Terms           []string `yaml:"terms" mapstructure:"terms"`
	MaxPages        int      `yaml:"max_pages" mapstructure:"max_pages"`
	Workers         int      `yaml:"workers" mapstructure:"workers"`
	PageDelayMs     int      `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	MaxEmptyPages   int      `yaml:"max_empty_pages" mapstructure:"max_empty_pages"`
	BaseURL         string   `yaml:"base_url" mapstructure:"base_url"`
	ConnectivityURL string   `yaml:"connectivity_url" mapstructure:"connectivity_url"`
}

// FetchConfig configures pacing and retry of outbound page requests.
type FetchConfig struct {
	RPM              int      `yaml:"rpm" mapstructure:"rpm"`
	TimeoutSecs      int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int      `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int      `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64  `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter           float64  `yaml:"jitter" mapstructure:"jitter"`
	UserAgents       []string `yaml:"user_agents" mapstructure:"user_agents"`
	BreakerThreshold int      `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int      `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// TorConfig configures the optional onion-routing proxy.
type TorConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	ProxyURL        string `yaml:"proxy_url" mapstructure:"proxy_url"`
	ControlAddr     string `yaml:"control_addr" mapstructure:"control_addr"`
	ControlPassword string `yaml:"control_password" mapstructure:"control_password"`
	RenewEvery      int    `yaml:"renew_every" mapstructure:"renew_every"`
	RenewWaitMs     int    `yaml:"renew_wait_ms" mapstructure:"renew_wait_ms"`
}

// FilterConfig holds the quality filter thresholds.
type FilterConfig struct {
	Warmup      int     `yaml:"warmup" mapstructure:"warmup"`
	LowFactor   float64 `yaml:"low_factor" mapstructure:"low_factor"`
	HighFactor  float64 `yaml:"high_factor" mapstructure:"high_factor"`
	Floor       float64 `yaml:"floor" mapstructure:"floor"`
	MinTitleLen int     `yaml:"min_title_len" mapstructure:"min_title_len"`
}

// CatalogConfig points at an optional catalog override file.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures run-health alerting in the API server.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultTerms are the search terms of the original marketplace crawl.
var DefaultTerms = []string{"видеокарта", "графична", "видео", "rtx", "gtx", "rx", "arc"}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HWVALUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("ingest.terms", DefaultTerms)
	v.SetDefault("ingest.max_pages", 3)
	v.SetDefault("ingest.workers", 2)
	v.SetDefault("ingest.page_delay_ms", 5000)
	v.SetDefault("ingest.max_empty_pages", 3)
	v.SetDefault("ingest.base_url", "https://www.olx.bg")
	v.SetDefault("ingest.connectivity_url", "https://api.ipify.org?format=json")
	v.SetDefault("fetch.rpm", 10)
	v.SetDefault("fetch.timeout_secs", 20)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.initial_backoff_ms", 10000)
	v.SetDefault("fetch.max_backoff_ms", 60000)
	v.SetDefault("fetch.multiplier", 2.0)
	v.SetDefault("fetch.jitter", 0.25)
	v.SetDefault("fetch.breaker_threshold", 5)
	v.SetDefault("fetch.breaker_reset_secs", 60)
	v.SetDefault("tor.enabled", false)
	v.SetDefault("tor.proxy_url", "socks5://127.0.0.1:9050")
	v.SetDefault("tor.control_addr", "127.0.0.1:9051")
	v.SetDefault("tor.renew_every", 25)
	v.SetDefault("tor.renew_wait_ms", 5000)
	v.SetDefault("filter.warmup", 5)
	v.SetDefault("filter.low_factor", 0.5)
	v.SetDefault("filter.high_factor", 3.0)
	v.SetDefault("filter.floor", 50.0)
	v.SetDefault("filter.min_title_len", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
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

// Validate checks that the settings needed for an ingestion cycle are usable.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}
	if len(c.Ingest.Terms) == 0 {
		return eris.New("config: ingest.terms must not be empty")
	}
	if c.Ingest.MaxPages < 1 {
		return eris.New("config: ingest.max_pages must be at least 1")
	}
	if c.Ingest.Workers < 1 {
		return eris.New("config: ingest.workers must be at least 1")
	}
	if c.Fetch.RPM <= 0 {
		return eris.New("config: fetch.rpm must be positive")
	}
	if c.Filter.Warmup < 1 {
		return eris.New("config: filter.warmup must be at least 1")
	}
	if c.Filter.LowFactor <= 0 || c.Filter.LowFactor >= c.Filter.HighFactor {
		return eris.Errorf("config: filter factors must satisfy 0 < low (%.2f) < high (%.2f)",
			c.Filter.LowFactor, c.Filter.HighFactor)
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
