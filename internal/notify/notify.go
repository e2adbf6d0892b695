// Package notify delivers the short, non-blocking messages the report
// workflow raises ("report created", "location not found").
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Severity grades a notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityError   Severity = "error"
)

// Messages raised by the report workflow.
const (
	MsgReportCreated        = "report created"
	MsgReportUpdated        = "report updated"
	MsgReportDeleted        = "report deleted"
	MsgLocationNotFound     = "location not found"
	MsgLocationSearchFailed = "location search failed"
)

// Notification is one user-facing message.
type Notification struct {
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives notifications. Implementations must not block for long.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to Notifier.
type Func func(Notification)

// Notify implements Notifier.
func (f Func) Notify(n Notification) { f(n) }

// New builds a notification stamped with the current time.
func New(sev Severity, msg string) Notification {
	return Notification{Severity: sev, Message: msg, Timestamp: time.Now().UTC()}
}

// Discard drops everything.
var Discard Notifier = Func(func(Notification) {})

// Log writes notifications to the global zap logger.
type Log struct{}

// Notify implements Notifier.
func (Log) Notify(n Notification) {
	fields := []zap.Field{zap.String("severity", string(n.Severity))}
	if n.Severity == SeverityError {
		zap.L().Warn(n.Message, fields...)
		return
	}
	zap.L().Info(n.Message, fields...)
}

// Writer prints one line per notification, e.g. for a terminal.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Notify implements Notifier.
func (w *Writer) Notify(n Notification) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prefix := "*"
	switch n.Severity {
	case SeveritySuccess:
		prefix = "ok"
	case SeverityError:
		prefix = "!!"
	}
	fmt.Fprintf(w.w, "[%s] %s\n", prefix, n.Message) //nolint:errcheck
}

// Multi fans a notification out to every notifier.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(n Notification) {
	for _, nt := range m {
		if nt != nil {
			nt.Notify(n)
		}
	}
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Notify implements Notifier.
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Count returns how many notifications carried msg.
func (r *Recorder) Count(msg string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if it.Message == msg {
			n++
		}
	}
	return n
}

// Webhook posts each notification as JSON to a URL. Delivery runs in the
// background and failures are only logged.
type Webhook struct {
	url    string
	client *http.Client
	wg     sync.WaitGroup
}

// NewWebhook creates a Webhook notifier for url.
func NewWebhook(url string) *Webhook {
	return &Webhook{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

// Notify implements Notifier.
func (w *Webhook) Notify(n Notification) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), w.client.Timeout)
		defer cancel()
		if err := w.send(ctx, n); err != nil {
			zap.L().Error("notify: failed to send webhook",
				zap.String("message", n.Message),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until in-flight deliveries finish.
func (w *Webhook) Wait() {
	w.wg.Wait()
}

func (w *Webhook) send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return eris.Wrap(err, "notify: marshal notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
