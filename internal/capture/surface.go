package capture

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/floodwatch/internal/model"
)

// Event names a map or marker interaction.
type Event string

const (
	EventClick   Event = "click"
	EventDragEnd Event = "dragend"
)

// Handler receives the coordinates an event happened at.
type Handler func(ctx context.Context, c model.Coordinates)

// Surface is the map view a capture drives.
type Surface interface {
	// Open shows the map centered on center. Opening an open surface fails.
	Open(center model.Coordinates, zoom int) error
	// SetView re-centers the map.
	SetView(center model.Coordinates, zoom int)
	// AddMarker places a marker on the map.
	AddMarker(at model.Coordinates, draggable bool) Marker
	// On binds fn to a map event and returns the function that unbinds it.
	On(event Event, fn Handler) (unbind func())
	// Remove tears the map down along with its markers.
	Remove()
}

// Marker is a single point on a Surface.
type Marker interface {
	Position() model.Coordinates
	MoveTo(c model.Coordinates)
	On(event Event, fn Handler) (unbind func())
	Remove()
}

// ErrSurfaceOpen is returned when opening a surface that is already open.
var ErrSurfaceOpen = eris.New("capture: surface already open")

// Headless is an in-memory Surface. It counts live event bindings so callers
// can verify nothing leaks across open/close cycles, and lets tests and the
// CLI fire map events directly.
type Headless struct {
	mu       sync.Mutex
	open     bool
	center   model.Coordinates
	zoom     int
	marker   *headlessMarker
	nextID   int
	bindings map[int]binding
}

type binding struct {
	owner any
	event Event
	fn    Handler
}

// NewHeadless creates a closed Headless surface.
func NewHeadless() *Headless {
	return &Headless{bindings: make(map[int]binding)}
}

func (h *Headless) Open(center model.Coordinates, zoom int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.open {
		return ErrSurfaceOpen
	}
	h.open = true
	h.center = center
	h.zoom = zoom
	return nil
}

func (h *Headless) SetView(center model.Coordinates, zoom int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.center = center
	h.zoom = zoom
}

func (h *Headless) AddMarker(at model.Coordinates, draggable bool) Marker {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := &headlessMarker{h: h, pos: at, draggable: draggable}
	h.marker = m
	return m
}

func (h *Headless) On(event Event, fn Handler) func() {
	return h.bind(h, event, fn)
}

func (h *Headless) Remove() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.open = false
	h.marker = nil
	clear(h.bindings)
}

// IsOpen reports whether the map is showing.
func (h *Headless) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

// View returns the current center and zoom.
func (h *Headless) View() (model.Coordinates, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.center, h.zoom
}

// MarkerPosition returns the marker position, if a marker is placed.
func (h *Headless) MarkerPosition() (model.Coordinates, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.marker == nil {
		return model.Coordinates{}, false
	}
	return h.marker.pos, true
}

// Bindings returns the number of live event bindings on the map and marker.
func (h *Headless) Bindings() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.bindings)
}

// Click fires the map click handlers.
func (h *Headless) Click(ctx context.Context, c model.Coordinates) {
	h.fire(ctx, h, EventClick, c)
}

// Drag moves a draggable marker to c and fires its dragend handlers.
func (h *Headless) Drag(ctx context.Context, c model.Coordinates) {
	h.mu.Lock()
	m := h.marker
	if m == nil || !m.draggable {
		h.mu.Unlock()
		return
	}
	m.pos = c
	h.mu.Unlock()
	h.fire(ctx, m, EventDragEnd, c)
}

func (h *Headless) bind(owner any, event Event, fn Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.bindings[id] = binding{owner: owner, event: event, fn: fn}
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.bindings, id)
		})
	}
}

// fire runs handlers outside the lock so they may call back into the surface.
func (h *Headless) fire(ctx context.Context, owner any, event Event, c model.Coordinates) {
	h.mu.Lock()
	var fns []Handler
	for _, b := range h.bindings {
		if b.owner == owner && b.event == event {
			fns = append(fns, b.fn)
		}
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ctx, c)
	}
}

type headlessMarker struct {
	h         *Headless
	pos       model.Coordinates
	draggable bool
}

func (m *headlessMarker) Position() model.Coordinates {
	m.h.mu.Lock()
	defer m.h.mu.Unlock()
	return m.pos
}

func (m *headlessMarker) MoveTo(c model.Coordinates) {
	m.h.mu.Lock()
	defer m.h.mu.Unlock()
	m.pos = c
}

func (m *headlessMarker) On(event Event, fn Handler) func() {
	return m.h.bind(m, event, fn)
}

func (m *headlessMarker) Remove() {
	m.h.mu.Lock()
	defer m.h.mu.Unlock()
	for id, b := range m.h.bindings {
		if b.owner == m {
			delete(m.h.bindings, id)
		}
	}
	if m.h.marker == m {
		m.h.marker = nil
	}
}
