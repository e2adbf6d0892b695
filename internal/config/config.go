package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	API     APIConfig     `yaml:"api" mapstructure:"api"`
	Session SessionConfig `yaml:"session" mapstructure:"session"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Map     MapConfig     `yaml:"map" mapstructure:"map"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Notify  NotifyConfig  `yaml:"notify" mapstructure:"notify"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// APIConfig points at the flood report backend.
type APIConfig struct {
	BaseURL     string      `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int         `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retry       RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// Timeout returns the HTTP client timeout.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RetryConfig configures retries of idempotent reads.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// SessionConfig identifies the signed-in user.
type SessionConfig struct {
	UserID string `yaml:"user_id" mapstructure:"user_id"`
	Token  string `yaml:"token" mapstructure:"token"`
}

// GeocodeConfig configures the Nominatim-compatible geocoder.
type GeocodeConfig struct {
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	Language      string        `yaml:"language" mapstructure:"language"`
	RateLimit     float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs   int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLHours int           `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	CellLevel     int           `yaml:"cell_level" mapstructure:"cell_level"`
	Circuit       CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// Timeout returns the HTTP client timeout.
func (c GeocodeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// CacheTTL returns how long geocoder answers are cached.
func (c GeocodeConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// CircuitConfig configures the geocoder circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// CacheConfig selects the geocode cache backend.
type CacheConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"`
	DSN      string `yaml:"dsn" mapstructure:"dsn"`
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// MapConfig holds the initial map view.
type MapConfig struct {
	DefaultLat float64 `yaml:"default_lat" mapstructure:"default_lat"`
	DefaultLng float64 `yaml:"default_lng" mapstructure:"default_lng"`
	Zoom       int     `yaml:"zoom" mapstructure:"zoom"`
}

// ServerConfig configures the development backend.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// NotifyConfig configures outbound notifications.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment, in
// increasing order of precedence.
func Load() (*Config, error) {
	// Optional; variables already set in the environment win.
	if err := godotenv.Load(); err != nil {
		zap.L().Debug("config: no .env file loaded", zap.Error(err))
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FLOODWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout_secs", 30)
	v.SetDefault("api.retry.max_attempts", 3)
	v.SetDefault("api.retry.initial_backoff_ms", 500)
	v.SetDefault("session.user_id", "")
	v.SetDefault("session.token", "")
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "floodwatch/1.0")
	v.SetDefault("geocode.language", "id")
	v.SetDefault("geocode.rate_limit", 1.0)
	v.SetDefault("geocode.timeout_secs", 30)
	v.SetDefault("geocode.cache_ttl_hours", 168)
	v.SetDefault("geocode.cell_level", 16)
	v.SetDefault("geocode.circuit.failure_threshold", 5)
	v.SetDefault("geocode.circuit.reset_timeout_secs", 30)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.dsn", "floodwatch-cache.db")
	v.SetDefault("cache.max_conns", 4)
	v.SetDefault("map.default_lat", -6.2)
	v.SetDefault("map.default_lng", 106.816666)
	v.SetDefault("map.zoom", 13)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("notify.webhook_url", "")
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

// Validation modes.
const (
	ModeClient = "client"
	ModeMutate = "mutate"
	ModeServe  = "serve"
)

// Validate checks the settings a command mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var problems []string
	switch mode {
	case ModeClient, ModeMutate:
		if strings.TrimSpace(c.API.BaseURL) == "" {
			problems = append(problems, "api.base_url is required")
		} else if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, "api.base_url must be an absolute URL")
		}
		if c.API.Retry.MaxAttempts < 1 || c.API.Retry.MaxAttempts > 10 {
			problems = append(problems, "api.retry.max_attempts must be between 1 and 10")
		}
		if c.Geocode.RateLimit <= 0 {
			problems = append(problems, "geocode.rate_limit must be > 0")
		}
		if c.Geocode.CellLevel < 0 || c.Geocode.CellLevel > 30 {
			problems = append(problems, "geocode.cell_level must be between 0 and 30")
		}
		switch c.Cache.Driver {
		case "", "none", "sqlite", "postgres":
		default:
			problems = append(problems, fmt.Sprintf("cache.driver %q is not one of sqlite, postgres, none", c.Cache.Driver))
		}
		if mode == ModeMutate && strings.TrimSpace(c.Session.Token) == "" {
			problems = append(problems, "session.token is required")
		}
	case ModeServe:
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
