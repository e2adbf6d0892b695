// Package floodapi is the HTTP transport for the flood report backend.
package floodapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/floodwatch/internal/model"
	"github.com/sells-group/floodwatch/internal/resilience"
)

// Client performs the report CRUD round-trips.
type Client interface {
	ListReports(ctx context.Context) ([]model.Report, error)
	CreateReport(ctx context.Context, p *Payload) (*model.Report, error)
	UpdateReport(ctx context.Context, id model.ID, p *Payload) (*model.Report, error)
	DeleteReport(ctx context.Context, id model.ID) (model.ID, error)
}

// APIError is returned when the backend answers with a non-2xx status.
// Message holds the body's "message" field when the server sent one.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("floodapi: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("floodapi: HTTP %d", e.StatusCode)
}

// TokenSource yields the bearer credential for the current session.
type TokenSource func() string

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithToken injects a fixed bearer token.
func WithToken(token string) Option {
	return func(c *httpClient) { c.token = func() string { return token } }
}

// WithTokenSource injects a bearer token looked up per request.
func WithTokenSource(ts TokenSource) Option {
	return func(c *httpClient) { c.token = ts }
}

// WithRetry sets the retry policy for idempotent reads. Mutations are never retried.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

// WithTimeout sets the request timeout. It applies to a copy of the HTTP
// client, so a shared client passed to WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) { c.timeout = d }
}

type httpClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	token   TokenSource
	retry   resilience.RetryConfig
}

// NewClient creates a Client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		token:   func() string { return "" },
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("floodapi", "list reports")
	}
	return c
}

func (c *httpClient) ListReports(ctx context.Context) ([]model.Report, error) {
	reports, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]model.Report, error) {
		var out []model.Report
		if err := c.send(ctx, http.MethodGet, "/reports", nil, "", &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "floodapi: list reports")
	}
	if reports == nil {
		reports = []model.Report{}
	}
	return reports, nil
}

func (c *httpClient) CreateReport(ctx context.Context, p *Payload) (*model.Report, error) {
	body, contentType, err := p.Encode()
	if err != nil {
		return nil, eris.Wrap(err, "floodapi: create report")
	}
	var out model.Report
	if err := c.send(ctx, http.MethodPost, "/reports", body, contentType, &out); err != nil {
		return nil, eris.Wrap(err, "floodapi: create report")
	}
	return &out, nil
}

func (c *httpClient) UpdateReport(ctx context.Context, id model.ID, p *Payload) (*model.Report, error) {
	body, contentType, err := p.Encode()
	if err != nil {
		return nil, eris.Wrapf(err, "floodapi: update report %s", id)
	}
	var out model.Report
	if err := c.send(ctx, http.MethodPut, reportPath(id), body, contentType, &out); err != nil {
		return nil, eris.Wrapf(err, "floodapi: update report %s", id)
	}
	return &out, nil
}

func (c *httpClient) DeleteReport(ctx context.Context, id model.ID) (model.ID, error) {
	var raw json.RawMessage
	if err := c.send(ctx, http.MethodDelete, reportPath(id), nil, "", &raw); err != nil {
		return "", eris.Wrapf(err, "floodapi: delete report %s", id)
	}
	// Backends echo the id bare, wrapped in {"id": ...}, or not at all.
	var echoed model.ID
	if err := json.Unmarshal(raw, &echoed); err == nil && echoed != "" {
		return echoed, nil
	}
	var wrapped struct {
		ID model.ID `json:"id"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.ID != "" {
		return wrapped.ID, nil
	}
	return id, nil
}

func reportPath(id model.ID) string {
	return "/reports/" + url.PathEscape(string(id))
}

func (c *httpClient) send(ctx context.Context, method, path string, body []byte, contentType string, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    messageFrom(data),
			Body:       string(data),
		}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return apiErr
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}

func messageFrom(body []byte) string {
	var env struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Message
}
