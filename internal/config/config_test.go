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
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.API.BaseURL)
	assert.Equal(t, 30, cfg.API.TimeoutSecs)
	assert.Equal(t, 3, cfg.API.Retry.MaxAttempts)
	assert.Equal(t, 500, cfg.API.Retry.InitialBackoffMs)
	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.Geocode.BaseURL)
	assert.Equal(t, "floodwatch/1.0", cfg.Geocode.UserAgent)
	assert.InDelta(t, 1.0, cfg.Geocode.RateLimit, 1e-9)
	assert.Equal(t, 16, cfg.Geocode.CellLevel)
	assert.Equal(t, 5, cfg.Geocode.Circuit.FailureThreshold)
	assert.Equal(t, "sqlite", cfg.Cache.Driver)
	assert.Equal(t, int32(4), cfg.Cache.MaxConns)
	assert.InDelta(t, -6.2, cfg.Map.DefaultLat, 1e-9)
	assert.Equal(t, 13, cfg.Map.Zoom)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Session.Token)
}

func TestDurations(t *testing.T) {
	cfg := Config{
		API:     APIConfig{TimeoutSecs: 10},
		Geocode: GeocodeConfig{TimeoutSecs: 5, CacheTTLHours: 2},
	}
	assert.Equal(t, "10s", cfg.API.Timeout().String())
	assert.Equal(t, "5s", cfg.Geocode.Timeout().String())
	assert.Equal(t, "2h0m0s", cfg.Geocode.CacheTTL().String())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
api:
  base_url: https://api.floods.example
cache:
  driver: postgres
  dsn: postgres://localhost/floodwatch
log:
  level: debug
  format: console
server:
  port: 9090
  allowed_origins: ["http://localhost:5173"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.floods.example", cfg.API.BaseURL)
	assert.Equal(t, "postgres", cfg.Cache.Driver)
	assert.Equal(t, "postgres://localhost/floodwatch", cfg.Cache.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	// Defaults still apply for unset values
	assert.Equal(t, 13, cfg.Map.Zoom)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
cache:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("FLOODWATCH_CACHE_DRIVER", "none")
	t.Setenv("FLOODWATCH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "none", cfg.Cache.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("FLOODWATCH_SESSION_TOKEN=from-dotenv\nFLOODWATCH_SESSION_USER_ID=u-9\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("FLOODWATCH_SESSION_TOKEN")
		_ = os.Unsetenv("FLOODWATCH_SESSION_USER_ID")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Session.Token)
	assert.Equal(t, "u-9", cfg.Session.UserID)
}

func TestLoadDotEnvDoesNotOverrideEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FLOODWATCH_SERVER_PORT=1111\n"), 0o600))
	t.Setenv("FLOODWATCH_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("api: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
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
	cfg.API.BaseURL = "http://localhost:8080"
	cfg.API.Retry.MaxAttempts = 3
	cfg.Geocode.RateLimit = 1
	cfg.Geocode.CellLevel = 16
	cfg.Cache.Driver = "sqlite"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateClient(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate(ModeClient))

	cfg.API.BaseURL = "localhost"
	cfg.Cache.Driver = "redis"
	cfg.Geocode.RateLimit = 0
	err := cfg.Validate(ModeClient)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.base_url must be an absolute URL")
	assert.Contains(t, err.Error(), `cache.driver "redis"`)
	assert.Contains(t, err.Error(), "geocode.rate_limit must be > 0")
}

func TestValidateMutate_RequiresToken(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate(ModeMutate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.token is required")

	cfg.Session.Token = "tok"
	assert.NoError(t, cfg.Validate(ModeMutate))
}

func TestValidateRetryBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.API.Retry.MaxAttempts = 0
	assert.ErrorContains(t, cfg.Validate(ModeClient), "max_attempts must be between 1 and 10")
	cfg.API.Retry.MaxAttempts = 11
	assert.Error(t, cfg.Validate(ModeClient))
}

func TestValidateServe(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate(ModeServe))

	cfg.Server.Port = 0
	err := cfg.Validate(ModeServe)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
