// Package capture keeps a map surface, a draggable marker and an address
// text in step with one set of coordinates, geocoding in both directions.
package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodwatch/internal/model"
	"github.com/sells-group/floodwatch/internal/notify"
	"github.com/sells-group/floodwatch/pkg/geocode"
)

// DefaultZoom is the zoom the map opens and re-centers at.
const DefaultZoom = 13

// Snapshot is the captured location at one instant.
type Snapshot struct {
	Coordinates model.Coordinates
	Address     string
}

// Option configures a Capture.
type Option func(*Capture)

// WithNotifier routes non-fatal notifications (e.g. "location not found").
func WithNotifier(n notify.Notifier) Option {
	return func(c *Capture) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithZoom overrides DefaultZoom.
func WithZoom(zoom int) Option {
	return func(c *Capture) {
		if zoom > 0 {
			c.zoom = zoom
		}
	}
}

// WithAddress seeds the address text, e.g. when editing an existing report.
func WithAddress(addr string) Option {
	return func(c *Capture) { c.address = addr }
}

// Capture is safe for concurrent use. Every geocode request takes a fresh
// token; a response whose token is no longer current is dropped, so the
// last request wins regardless of the order responses arrive in.
type Capture struct {
	geo      geocode.Client
	notifier notify.Notifier
	zoom     int

	mu      sync.Mutex
	coords  model.Coordinates
	address string
	surface Surface
	marker  Marker
	unbind  []func()
	token   uint64
	closed  bool
}

// Initialize opens surface centered on initial, places a draggable marker and
// binds marker dragend and map click to OnMarkerDrag and OnMapClick. Invalid
// initial coordinates fall back to model.DefaultCoordinates.
func Initialize(surface Surface, initial model.Coordinates, geo geocode.Client, opts ...Option) (*Capture, error) {
	if surface == nil {
		return nil, eris.New("capture: nil surface")
	}
	c := &Capture{
		geo:      geo,
		notifier: notify.Discard,
		zoom:     DefaultZoom,
		coords:   initial.OrDefault(),
		surface:  surface,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := surface.Open(c.coords, c.zoom); err != nil {
		return nil, eris.Wrap(err, "capture: open surface")
	}
	c.marker = surface.AddMarker(c.coords, true)
	c.unbind = append(c.unbind,
		c.marker.On(EventDragEnd, c.OnMarkerDrag),
		surface.On(EventClick, c.OnMapClick),
	)
	return c, nil
}

// Close unbinds every event and removes the surface. It is idempotent.
func (c *Capture) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.token++
	for _, fn := range c.unbind {
		fn()
	}
	c.unbind = nil
	c.marker.Remove()
	c.surface.Remove()
}

// Closed reports whether Close has run.
func (c *Capture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Snapshot returns the current coordinates and address.
func (c *Capture) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Coordinates: c.coords, Address: c.address}
}

// SetAddress replaces the address text without geocoding.
func (c *Capture) SetAddress(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.address = text
}

// OnMarkerDrag records the dragged-to point and reverse-geocodes it. A failed
// or empty lookup leaves the address unchanged.
func (c *Capture) OnMarkerDrag(ctx context.Context, at model.Coordinates) {
	c.pointMoved(ctx, at, false)
}

// OnMapClick is OnMarkerDrag plus moving the marker to the clicked point.
func (c *Capture) OnMapClick(ctx context.Context, at model.Coordinates) {
	c.pointMoved(ctx, at, true)
}

func (c *Capture) pointMoved(ctx context.Context, at model.Coordinates, moveMarker bool) {
	if !at.Valid() {
		zap.L().Debug("capture: ignoring invalid coordinates",
			zap.Float64("lat", at.Lat), zap.Float64("lng", at.Lng))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.coords = at
	if moveMarker {
		c.marker.MoveTo(at)
	}
	c.token++
	tok := c.token
	c.mu.Unlock()

	if c.geo == nil {
		return
	}
	addr, err := c.geo.Reverse(ctx, at)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(tok) {
		zap.L().Debug("capture: dropping stale reverse geocode", zap.Uint64("token", tok))
		return
	}
	if err != nil {
		zap.L().Warn("capture: reverse geocode failed",
			zap.Float64("lat", at.Lat),
			zap.Float64("lng", at.Lng),
			zap.Error(err),
		)
		return
	}
	if area := addr.Area(); area != "" {
		c.address = area
	}
}

// OnAddressEnter sets the address text and forward-geocodes it. The first
// hit moves the marker and re-centers the map. No hit raises exactly one
// "location not found" notification and leaves the coordinates unchanged.
func (c *Capture) OnAddressEnter(ctx context.Context, text string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.address = text
	c.token++
	tok := c.token
	c.mu.Unlock()

	if c.geo == nil {
		return
	}
	places, err := c.geo.Search(ctx, text)

	c.mu.Lock()
	if !c.current(tok) {
		c.mu.Unlock()
		zap.L().Debug("capture: dropping stale search", zap.Uint64("token", tok))
		return
	}
	var msg string
	switch {
	case err != nil && !errors.Is(err, geocode.ErrNotFound):
		zap.L().Warn("capture: address search failed", zap.String("query", text), zap.Error(err))
		msg = notify.MsgLocationSearchFailed
	case len(places) == 0:
		msg = notify.MsgLocationNotFound
	default:
		c.coords = places[0].Coordinates
		c.marker.MoveTo(c.coords)
		c.surface.SetView(c.coords, c.zoom)
	}
	c.mu.Unlock()

	if msg != "" {
		c.notifier.Notify(notify.New(notify.SeverityError, msg))
	}
}

// current reports whether tok is still the latest request. Caller holds mu.
func (c *Capture) current(tok uint64) bool {
	return !c.closed && tok == c.token
}
