// Package devserver is an in-memory flood report backend for local
// development and end-to-end tests. It speaks the same HTTP contract as the
// production API but performs no validation beyond parsing requests.
package devserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodwatch/internal/model"
)

// DefaultMaxUpload caps multipart bodies held in memory.
const DefaultMaxUpload = 10 << 20

type image struct {
	contentType string
	data        []byte
}

// Backend holds reports newest first.
type Backend struct {
	mu      sync.RWMutex
	reports []model.Report
	images  map[string]image

	tokens    map[string]model.ID
	origins   []string
	maxUpload int64
	now       func() time.Time
	newID     func() model.ID
}

// Option configures a Backend.
type Option func(*Backend)

// WithTokens restricts mutations to the given bearer tokens, each mapped to
// the user id it authenticates. Without it any non-empty token is accepted
// and doubles as the user id.
func WithTokens(tokens map[string]model.ID) Option {
	return func(b *Backend) {
		b.tokens = make(map[string]model.ID, len(tokens))
		for tok, uid := range tokens {
			b.tokens[tok] = uid
		}
	}
}

// WithAllowedOrigins sets the CORS allow list. Defaults to "*".
func WithAllowedOrigins(origins ...string) Option {
	return func(b *Backend) {
		if len(origins) > 0 {
			b.origins = origins
		}
	}
}

// WithSeed preloads reports, given newest first.
func WithSeed(reports ...model.Report) Option {
	return func(b *Backend) { b.reports = append([]model.Report(nil), reports...) }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithIDs overrides report id generation.
func WithIDs(next func() model.ID) Option {
	return func(b *Backend) { b.newID = next }
}

// WithMaxUpload sets the multipart memory limit.
func WithMaxUpload(n int64) Option {
	return func(b *Backend) {
		if n > 0 {
			b.maxUpload = n
		}
	}
}

// New creates an empty Backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		images:    make(map[string]image),
		origins:   []string{"*"},
		maxUpload: DefaultMaxUpload,
		now:       time.Now,
		newID:     func() model.ID { return model.ID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handler returns the HTTP routes.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: b.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/reports", func(r chi.Router) {
		r.Get("/", b.listReports)
		r.Get("/{id}", b.getReport)

		r.Group(func(r chi.Router) {
			r.Use(b.requireAuth)
			r.Post("/", b.createReport)
			r.Put("/{id}", b.updateReport)
			r.Delete("/{id}", b.deleteReport)
		})
	})

	r.Get("/images/{name}", b.getImage)
	return r
}

// Reports returns a snapshot of the stored collection.
func (b *Backend) Reports() []model.Report {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]model.Report(nil), b.reports...)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (b *Backend) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           b.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("devserver: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("devserver: listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "devserver: listen")
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("devserver: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func imageURL(r *http.Request, name string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/images/%s", scheme, r.Host, name)
}
