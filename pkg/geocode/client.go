// Package geocode resolves coordinates to place names and back through a
// Nominatim-compatible geocoding service.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/floodwatch/internal/model"
	"github.com/sells-group/floodwatch/internal/resilience"
)

const (
	// DefaultBaseURL is the public Nominatim endpoint.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"
	// DefaultUserAgent identifies the client, as Nominatim's usage policy requires.
	DefaultUserAgent = "floodwatch/1.0"
)

// ErrNotFound is returned when the geocoder has no answer for a query.
var ErrNotFound = eris.New("geocode: no result")

// Client performs forward and reverse geocoding.
type Client interface {
	// Reverse resolves coordinates to an address.
	Reverse(ctx context.Context, c model.Coordinates) (*Address, error)

	// Search resolves free text to candidate places, best match first.
	Search(ctx context.Context, query string) ([]Place, error)
}

// Place is one forward-geocoding candidate.
type Place struct {
	Coordinates model.Coordinates `json:"coordinates"`
	DisplayName string            `json:"display_name"`
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithBaseURL overrides the geocoder endpoint.
func WithBaseURL(u string) Option {
	return func(g *geocoder) { g.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) { g.httpClient = hc }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		if ua != "" {
			g.userAgent = ua
		}
	}
}

// WithRateLimit sets the requests-per-second limit. Nominatim allows 1.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCircuitBreaker guards the upstream with a circuit breaker.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(g *geocoder) { g.breaker = resilience.NewCircuitBreaker(cfg) }
}

// WithCache stores answers in c for ttl.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(g *geocoder) {
		g.cache = c
		g.cacheTTL = ttl
	}
}

// WithCellLevel sets the S2 cell level reverse answers are cached under.
func WithCellLevel(level int) Option {
	return func(g *geocoder) {
		if level > 0 && level <= 30 {
			g.cellLevel = level
		}
	}
}

// WithLanguage sets the Accept-Language header so names come back localized.
func WithLanguage(lang string) Option {
	return func(g *geocoder) { g.language = lang }
}

type geocoder struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	language   string
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
	cache      Cache
	cacheTTL   time.Duration
	cellLevel  int
}

// NewClient creates a geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  DefaultUserAgent,
		limiter:    rate.NewLimiter(1, 1),
		breaker:    resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		cellLevel:  defaultCellLevel,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// getJSON runs one rate-limited, breaker-guarded GET against the geocoder.
func (g *geocoder) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	_, err := resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (struct{}, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return struct{}{}, eris.Wrap(err, "rate limit")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path+"?"+params.Encode(), nil)
		if err != nil {
			return struct{}{}, eris.Wrap(err, "build request")
		}
		req.Header.Set("User-Agent", g.userAgent)
		req.Header.Set("Accept", "application/json")
		if g.language != "" {
			req.Header.Set("Accept-Language", g.language)
		}

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return struct{}{}, eris.Wrap(err, "request")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return struct{}{}, eris.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, eris.Wrap(err, "parse response")
		}
		return struct{}{}, nil
	})
	if err != nil {
		zap.L().Debug("geocode: request failed", zap.String("path", path), zap.Error(err))
	}
	return err
}
