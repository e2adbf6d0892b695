// Package form drives the report authoring dialog: a draft, the location
// capture it wraps, and submission through the report store.
package form

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodwatch/internal/capture"
	"github.com/sells-group/floodwatch/internal/model"
	"github.com/sells-group/floodwatch/internal/notify"
	"github.com/sells-group/floodwatch/internal/reports"
	"github.com/sells-group/floodwatch/pkg/floodapi"
	"github.com/sells-group/floodwatch/pkg/geocode"
)

// State is the controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateEditing
	StateSubmitting
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEditing:
		return "editing"
	case StateSubmitting:
		return "submitting"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Mode selects create or update submission.
type Mode int

const (
	ModeCreate Mode = iota
	ModeUpdate
)

func (m Mode) String() string {
	if m == ModeUpdate {
		return "update"
	}
	return "create"
}

// Visibility is whether a dialog is showing.
type Visibility int

const (
	Hidden Visibility = iota
	Visible
)

func (v Visibility) String() string {
	if v == Visible {
		return "visible"
	}
	return "hidden"
}

// MsgSubmitFailed is shown when a rejected submit carries no message.
const MsgSubmitFailed = "failed to submit report"

var (
	// ErrUnknownField is returned by SetField for names it does not edit.
	ErrUnknownField = eris.New("form: unknown field")
	// ErrNotEditing is returned when no draft is open for editing.
	ErrNotEditing = eris.New("form: not editing")
	// ErrSessionOpen is returned when entering a new session over an open one.
	ErrSessionOpen = eris.New("form: session already open")
	// ErrStatusInCreate is returned when setting status on a new report.
	ErrStatusInCreate = eris.New("form: status can only be set when editing")
)

// ReportStore is the part of reports.Store the form needs.
type ReportStore interface {
	Create(ctx context.Context, p *floodapi.Payload) (*model.Report, error)
	Update(ctx context.Context, id model.ID, p *floodapi.Payload) (*model.Report, error)
	Delete(ctx context.Context, id model.ID) error
	Select(id model.ID)
	ClearSelection()
}

// View is an immutable snapshot for presentation.
type View struct {
	State   State
	Mode    Mode
	Draft   Draft
	Error   string
	Visible Visibility
}

// Option configures a Controller.
type Option func(*Controller)

// WithNotifier routes success and capture notifications.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithCaptureOptions passes options to every capture the controller opens.
func WithCaptureOptions(opts ...capture.Option) Option {
	return func(c *Controller) { c.captureOpts = append(c.captureOpts, opts...) }
}

// WithStart sets where new drafts are placed. Invalid coordinates keep
// model.DefaultCoordinates.
func WithStart(at model.Coordinates) Option {
	return func(c *Controller) { c.start = at.OrDefault() }
}

// Controller is safe for concurrent use.
type Controller struct {
	store       ReportStore
	geo         geocode.Client
	notifier    notify.Notifier
	captureOpts []capture.Option
	start       model.Coordinates

	mu         sync.Mutex
	state      State
	mode       Mode
	visibility Visibility
	draft      Draft
	original   model.ReportStatus
	capture    *capture.Capture
	errMsg     string
	session    uint64
}

// New creates an idle Controller.
func New(store ReportStore, geo geocode.Client, opts ...Option) *Controller {
	c := &Controller{store: store, geo: geo, notifier: notify.Discard, start: model.DefaultCoordinates}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnterCreate opens a blank draft at the start coordinates.
func (c *Controller) EnterCreate(surface capture.Surface) error {
	return c.enter(surface, ModeCreate, Draft{Coordinates: c.start, Status: model.StatusActive})
}

// EnterEdit opens a draft copied from r and selects r in the store.
func (c *Controller) EnterEdit(surface capture.Surface, r model.Report) error {
	if err := c.enter(surface, ModeUpdate, draftFrom(r)); err != nil {
		return err
	}
	c.store.Select(r.ID)
	return nil
}

func (c *Controller) enter(surface capture.Surface, mode Mode, d Draft) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open() {
		return ErrSessionOpen
	}

	opts := append([]capture.Option{capture.WithNotifier(c.notifier), capture.WithAddress(d.Location)}, c.captureOpts...)
	cp, err := capture.Initialize(surface, d.Coordinates, c.geo, opts...)
	if err != nil {
		return eris.Wrap(err, "form: open capture")
	}

	c.session++
	c.capture = cp
	c.mode = mode
	c.draft = d
	c.original = d.Status
	c.errMsg = ""
	c.state = StateEditing
	c.visibility = Visible
	return nil
}

// Capture returns the open session's capture, or nil.
func (c *Controller) Capture() *capture.Capture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture
}

// SetField edits one draft field. waterLevel input that is not a positive
// number clears the field instead of failing. location edits the capture's
// address text without geocoding; see EnterAddress.
func (c *Controller) SetField(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return err
	}

	switch name {
	case FieldLocation:
		c.capture.SetAddress(value)
	case FieldDescription:
		c.draft.Description = value
	case FieldWaterLevel:
		c.draft.WaterLevel = parseWaterLevel(value)
	case FieldStatus:
		if c.mode != ModeUpdate {
			return ErrStatusInCreate
		}
		status, err := model.ParseStatus(value)
		if err != nil {
			return err
		}
		if c.original.Valid() && !model.CanTransition(c.original, status) {
			return eris.Wrapf(model.ErrInvalidTransition, "form: %s to %s", c.original, status)
		}
		c.draft.Status = status
	default:
		return eris.Wrapf(ErrUnknownField, "form: %q", name)
	}
	c.touch()
	return nil
}

// EnterAddress sets the location text and forward-geocodes it.
func (c *Controller) EnterAddress(ctx context.Context, text string) error {
	c.mu.Lock()
	if err := c.editable(); err != nil {
		c.mu.Unlock()
		return err
	}
	cp := c.capture
	c.touch()
	c.mu.Unlock()

	cp.OnAddressEnter(ctx, text)
	return nil
}

// SetImage stores a pending image and derives its data URL preview. Type and
// size are left to the server.
func (c *Controller) SetImage(name string, r io.Reader) error {
	data, mime, preview, filename, err := readImage(name, r)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editable(); err != nil {
		return err
	}
	c.draft.image = data
	c.draft.ImageName = filename
	c.draft.ImageType = mime
	c.draft.ImagePreview = preview
	c.touch()
	return nil
}

// Submit sends the draft through the store. On success the session ends:
// the capture closes, the dialog hides, the draft is discarded and an edited
// report is deselected. On failure the dialog stays open with the error
// message.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if err := c.editable(); err != nil {
		c.mu.Unlock()
		return err
	}
	d := c.currentDraft()
	mode := c.mode
	session := c.session
	p, err := BuildPayload(d, mode)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = StateSubmitting
	c.errMsg = ""
	c.mu.Unlock()

	if mode == ModeCreate {
		_, err = c.store.Create(ctx, p)
	} else {
		_, err = c.store.Update(ctx, d.ID, p)
	}

	c.mu.Lock()
	if c.session != session {
		c.mu.Unlock()
		zap.L().Debug("form: submit settled after close", zap.String("mode", mode.String()), zap.Error(err))
		if err == nil {
			c.notifier.Notify(notify.New(notify.SeveritySuccess, successMessage(mode)))
		}
		return err
	}
	if err != nil {
		c.state = StateFailed
		c.errMsg = submitMessage(err)
		c.mu.Unlock()
		return err
	}
	cp := c.capture
	c.capture = nil
	c.state = StateSuccess
	c.visibility = Hidden
	c.draft = Draft{}
	c.mu.Unlock()

	cp.Close()
	if mode == ModeUpdate {
		c.store.ClearSelection()
	}
	c.notifier.Notify(notify.New(notify.SeveritySuccess, successMessage(mode)))
	return nil
}

// Close dismisses the dialog without submitting. A submit still in flight
// settles into the store but no longer touches this controller.
func (c *Controller) Close() {
	c.mu.Lock()
	cp := c.capture
	c.capture = nil
	c.session++
	c.state = StateIdle
	c.visibility = Hidden
	c.draft = Draft{}
	c.errMsg = ""
	c.mu.Unlock()

	if cp != nil {
		cp.Close()
	}
	c.store.ClearSelection()
}

// View returns a copy of the current form state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		State:   c.state,
		Mode:    c.mode,
		Draft:   c.currentDraft(),
		Error:   c.errMsg,
		Visible: c.visibility,
	}
}

// currentDraft merges the capture's location into a copy of the draft.
func (c *Controller) currentDraft() Draft {
	d := c.draft.clone()
	if c.capture != nil {
		snap := c.capture.Snapshot()
		d.Location = snap.Address
		d.Coordinates = snap.Coordinates
	}
	return d
}

func (c *Controller) open() bool {
	return c.state == StateEditing || c.state == StateSubmitting || c.state == StateFailed
}

func (c *Controller) editable() error {
	if c.state != StateEditing && c.state != StateFailed {
		return eris.Wrapf(ErrNotEditing, "form: state %s", c.state)
	}
	return nil
}

// touch returns a failed form to editing.
func (c *Controller) touch() {
	if c.state == StateFailed {
		c.state = StateEditing
	}
}

func successMessage(mode Mode) string {
	if mode == ModeUpdate {
		return notify.MsgReportUpdated
	}
	return notify.MsgReportCreated
}

func submitMessage(err error) string {
	var reqErr *reports.RequestError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message
	}
	return MsgSubmitFailed
}
