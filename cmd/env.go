package main

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/floodwatch/internal/auth"
	"github.com/sells-group/floodwatch/internal/config"
	"github.com/sells-group/floodwatch/internal/db"
	"github.com/sells-group/floodwatch/internal/model"
	"github.com/sells-group/floodwatch/internal/notify"
	"github.com/sells-group/floodwatch/internal/reports"
	"github.com/sells-group/floodwatch/internal/resilience"
	"github.com/sells-group/floodwatch/internal/store"
	"github.com/sells-group/floodwatch/pkg/floodapi"
	"github.com/sells-group/floodwatch/pkg/geocode"
)

// clientEnv holds the initialized clients used by the report, geocode and
// dashboard commands.
type clientEnv struct {
	Session  auth.Session
	API      floodapi.Client
	Reports  *reports.Store
	Geocoder geocode.Client
	Cache    store.Store // nil when caching in memory
	Notifier notify.Notifier

	webhook *notify.Webhook
}

// Close releases resources held by the environment.
func (e *clientEnv) Close() {
	if e.Reports != nil {
		e.Reports.Dispose()
	}
	if e.webhook != nil {
		e.webhook.Wait()
	}
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
}

// initClient validates config for mode and wires the transport, store,
// geocoder and notifiers. User-facing notifications go to out. Callers should
// defer env.Close().
func initClient(ctx context.Context, out io.Writer, mode string) (*clientEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	session := auth.New(cfg.Session.UserID, cfg.Session.Token)

	api := floodapi.NewClient(cfg.API.BaseURL,
		floodapi.WithTokenSource(session.TokenSource()),
		floodapi.WithRetry(resilience.FromRetryConfig(cfg.API.Retry.MaxAttempts, cfg.API.Retry.InitialBackoffMs)),
		floodapi.WithTimeout(cfg.API.Timeout()),
	)

	var cache geocode.Cache = geocode.NewMemoryCache()
	st, err := store.Open(ctx, cfg.Cache.Driver, cfg.Cache.DSN, &db.PoolConfig{MaxConns: cfg.Cache.MaxConns})
	if err != nil {
		zap.L().Warn("geocode cache unavailable, caching in memory",
			zap.String("driver", cfg.Cache.Driver),
			zap.Error(err),
		)
	}
	if st != nil {
		cache = st
	}

	geo := geocode.NewClient(
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithUserAgent(cfg.Geocode.UserAgent),
		geocode.WithLanguage(cfg.Geocode.Language),
		geocode.WithRateLimit(cfg.Geocode.RateLimit),
		geocode.WithHTTPClient(&http.Client{Timeout: cfg.Geocode.Timeout()}),
		geocode.WithCircuitBreaker(resilience.FromCircuitConfig(cfg.Geocode.Circuit.FailureThreshold, cfg.Geocode.Circuit.ResetTimeoutSecs)),
		geocode.WithCache(cache, cfg.Geocode.CacheTTL()),
		geocode.WithCellLevel(cfg.Geocode.CellLevel),
	)

	notifiers := notify.Multi{notify.NewWriter(out), notify.Log{}}
	var hook *notify.Webhook
	if cfg.Notify.WebhookURL != "" {
		hook = notify.NewWebhook(cfg.Notify.WebhookURL)
		notifiers = append(notifiers, hook)
	}

	return &clientEnv{
		Session:  session,
		API:      api,
		Reports:  reports.New(api),
		Geocoder: geo,
		Cache:    st,
		Notifier: notifiers,
		webhook:  hook,
	}, nil
}

// mapCenter is the configured fallback map point.
func mapCenter(c *config.Config) model.Coordinates {
	return model.Coordinates{Lat: c.Map.DefaultLat, Lng: c.Map.DefaultLng}.OrDefault()
}
