// Package reports holds the client-side report collection and the state of
// the CRUD requests that keep it in sync with the server.
package reports

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/floodwatch/internal/model"
	"github.com/sells-group/floodwatch/pkg/floodapi"
)

// State is the request state views render from.
type State struct {
	Loading    bool
	Error      *RequestError
	SelectedID model.ID
}

// Option configures a Store.
type Option func(*Store)

// WithReports seeds the collection.
func WithReports(reports []model.Report) Option {
	return func(s *Store) { s.reports = dedupe(reports) }
}

// Store owns the report collection and request state. All methods are safe
// for concurrent use; the collection is only changed by the store's own
// operations.
//
// Loading is derived from an in-flight counter, so overlapping operations
// cannot clear it early. Every fetch takes a sequence number and only the
// most recently issued fetch may replace the collection.
type Store struct {
	api floodapi.Client

	mu       sync.Mutex
	reports  []model.Report
	inflight int
	err      *RequestError
	selected model.ID
	fetchSeq uint64
	subs     map[int]func(State)
	nextSub  int
	disposed bool
}

// New creates a Store backed by api.
func New(api floodapi.Client, opts ...Option) *Store {
	s := &Store{api: api, subs: make(map[int]func(State))}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispose detaches subscribers and rejects further operations. Requests
// already in flight still settle into the store.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	clear(s.subs)
}

// FetchAll replaces the collection with the server's list.
func (s *Store) FetchAll(ctx context.Context) error {
	seq, err := s.beginFetch()
	if err != nil {
		return err
	}
	return s.fetch(ctx, seq)
}

// Create submits a new report. On success the returned report goes to the
// front of the collection, then a refetch reconciles against the server
// before Create returns. A failed refetch is recorded in State but does not
// fail the create.
func (s *Store) Create(ctx context.Context, p *floodapi.Payload) (*model.Report, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	created, err := s.api.CreateReport(ctx, p)
	if err != nil {
		return nil, s.fail(OpCreate, err)
	}
	seq := s.settleAndRefetch(func() { s.insertFront(*created) })
	_ = s.fetch(ctx, seq)
	return created, nil
}

// Update submits changes to report id. On success the entry is replaced in
// place (no-op if absent) and a refetch reconciles before Update returns.
func (s *Store) Update(ctx context.Context, id model.ID, p *floodapi.Payload) (*model.Report, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	updated, err := s.api.UpdateReport(ctx, id, p)
	if err != nil {
		return nil, s.fail(OpUpdate, err)
	}
	seq := s.settleAndRefetch(func() { s.replace(id, *updated) })
	_ = s.fetch(ctx, seq)
	return updated, nil
}

// Delete removes report id on the server and then locally. Fetches issued
// before the delete settles are dropped so they cannot bring the report back.
func (s *Store) Delete(ctx context.Context, id model.ID) error {
	if err := s.begin(); err != nil {
		return err
	}
	if _, err := s.api.DeleteReport(ctx, id); err != nil {
		return s.fail(OpDelete, err)
	}
	s.settle(func() {
		s.remove(id)
		s.fetchSeq++
	})
	return nil
}

// Select targets id for a pending edit or delete.
func (s *Store) Select(id model.ID) {
	s.update(func() { s.selected = id })
}

// ClearSelection drops the selection.
func (s *Store) ClearSelection() {
	s.update(func() { s.selected = "" })
}

// Selected looks the selected id up in the current collection. It returns
// nil when nothing is selected or the report is gone.
func (s *Store) Selected() *model.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return nil
	}
	return s.find(s.selected)
}

// SetError records msg as a failure not tied to a request.
func (s *Store) SetError(msg string) {
	s.update(func() { s.err = &RequestError{Kind: ValidationDeferred, Message: msg} })
}

// ClearError drops the recorded failure.
func (s *Store) ClearError() {
	s.update(func() { s.err = nil })
}

// Reports returns a copy of the collection.
func (s *Store) Reports() []model.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Report, len(s.reports))
	copy(out, s.reports)
	return out
}

// Find returns a copy of report id, or nil.
func (s *Store) Find(id model.ID) *model.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(id)
}

// State returns the current request state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state()
}

// Subscribe calls fn with the new State after every change. fn runs on the
// goroutine that made the change and must not call back into Subscribe.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return func() {}
	}
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) begin() error {
	var disposed bool
	s.update(func() {
		if s.disposed {
			disposed = true
			return
		}
		s.inflight++
		s.err = nil
	})
	if disposed {
		return ErrDisposed
	}
	return nil
}

func (s *Store) beginFetch() (uint64, error) {
	var seq uint64
	var disposed bool
	s.update(func() {
		if s.disposed {
			disposed = true
			return
		}
		s.inflight++
		s.err = nil
		s.fetchSeq++
		seq = s.fetchSeq
	})
	if disposed {
		return 0, ErrDisposed
	}
	return seq, nil
}

// fetch runs a fetch whose dispatch (inflight, seq) is already recorded.
func (s *Store) fetch(ctx context.Context, seq uint64) error {
	list, err := s.api.ListReports(ctx)
	var stale bool
	s.settle(func() {
		if seq != s.fetchSeq {
			stale = true
			return
		}
		if err != nil {
			s.err = classify(OpFetch, err)
			return
		}
		s.reports = dedupe(list)
	})
	if stale {
		zap.L().Debug("reports: dropped stale fetch", zap.Uint64("seq", seq))
	}
	if err != nil {
		return classify(OpFetch, err)
	}
	return nil
}

// settleAndRefetch applies a mutation result and dispatches the reconciling
// fetch in one step, so Loading never drops between the two.
func (s *Store) settleAndRefetch(apply func()) uint64 {
	var seq uint64
	s.update(func() {
		apply()
		s.fetchSeq++
		seq = s.fetchSeq
	})
	return seq
}

func (s *Store) fail(op Op, err error) error {
	reqErr := classify(op, err)
	s.settle(func() { s.err = reqErr })
	zap.L().Warn("reports: request failed",
		zap.String("op", string(op)),
		zap.String("kind", reqErr.Kind.String()),
		zap.Error(err),
	)
	return reqErr
}

func (s *Store) settle(apply func()) {
	s.update(func() {
		s.inflight--
		apply()
	})
}

// update runs fn under the lock and then notifies subscribers.
func (s *Store) update(fn func()) {
	s.mu.Lock()
	fn()
	st := s.state()
	subs := make([]func(State), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub(st)
	}
}

func (s *Store) state() State {
	return State{Loading: s.inflight > 0, Error: s.err, SelectedID: s.selected}
}

func (s *Store) find(id model.ID) *model.Report {
	if i := model.IndexOf(s.reports, id); i >= 0 {
		r := s.reports[i]
		return &r
	}
	return nil
}

func (s *Store) insertFront(r model.Report) {
	out := make([]model.Report, 0, len(s.reports)+1)
	out = append(out, r)
	for _, existing := range s.reports {
		if existing.ID != r.ID {
			out = append(out, existing)
		}
	}
	s.reports = out
}

func (s *Store) replace(id model.ID, r model.Report) {
	i := model.IndexOf(s.reports, id)
	if i < 0 {
		return
	}
	s.reports[i] = r
}

func (s *Store) remove(id model.ID) {
	i := model.IndexOf(s.reports, id)
	if i < 0 {
		return
	}
	s.reports = append(s.reports[:i:i], s.reports[i+1:]...)
}

// dedupe keeps the first occurrence of each id, preserving order.
func dedupe(reports []model.Report) []model.Report {
	seen := make(map[model.ID]struct{}, len(reports))
	out := make([]model.Report, 0, len(reports))
	for _, r := range reports {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
