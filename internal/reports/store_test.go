package reports

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodwatch/internal/model"
	"github.com/sells-group/floodwatch/pkg/floodapi"
)

// fakeAPI answers each call with the configured function.
type fakeAPI struct {
	list   func(ctx context.Context) ([]model.Report, error)
	create func(ctx context.Context, p *floodapi.Payload) (*model.Report, error)
	update func(ctx context.Context, id model.ID, p *floodapi.Payload) (*model.Report, error)
	del    func(ctx context.Context, id model.ID) (model.ID, error)
}

func (f *fakeAPI) ListReports(ctx context.Context) ([]model.Report, error) {
	return f.list(ctx)
}

func (f *fakeAPI) CreateReport(ctx context.Context, p *floodapi.Payload) (*model.Report, error) {
	return f.create(ctx, p)
}

func (f *fakeAPI) UpdateReport(ctx context.Context, id model.ID, p *floodapi.Payload) (*model.Report, error) {
	return f.update(ctx, id, p)
}

func (f *fakeAPI) DeleteReport(ctx context.Context, id model.ID) (model.ID, error) {
	return f.del(ctx, id)
}

func listOf(reports ...model.Report) func(context.Context) ([]model.Report, error) {
	return func(context.Context) ([]model.Report, error) { return reports, nil }
}

func failWith(err error) func(context.Context) ([]model.Report, error) {
	return func(context.Context) ([]model.Report, error) { return nil, err }
}

var errNetwork = errors.New("dial tcp 127.0.0.1:80: connect: connection refused")

func report(id string, status model.ReportStatus) model.Report {
	return model.Report{ID: model.ID(id), Status: status, Location: "Loc " + id}
}

func ids(reports []model.Report) []model.ID {
	out := make([]model.ID, len(reports))
	for i, r := range reports {
		out[i] = r.ID
	}
	return out
}

func TestFetchAll(t *testing.T) {
	api := &fakeAPI{list: listOf(report("3", model.StatusActive), report("1", model.StatusResolved))}
	s := New(api)

	require.NoError(t, s.FetchAll(context.Background()))
	assert.Equal(t, []model.ID{"3", "1"}, ids(s.Reports()))
	st := s.State()
	assert.False(t, st.Loading)
	assert.Nil(t, st.Error)
}

func TestFetchAll_DropsDuplicateIDs(t *testing.T) {
	api := &fakeAPI{list: listOf(report("1", model.StatusActive), report("1", model.StatusResolved), report("2", model.StatusActive))}
	s := New(api)

	require.NoError(t, s.FetchAll(context.Background()))
	assert.Equal(t, []model.ID{"1", "2"}, ids(s.Reports()))
}

func TestFetchAll_Failure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind ErrorKind
		wantMsg  string
		wantCode int
	}{
		{"network", errNetwork, NetworkFailure, "failed to fetch reports", 0},
		{"server message", &floodapi.APIError{StatusCode: 401, Message: "token expired"}, ServerRejected, "token expired", 401},
		{"server without message", &floodapi.APIError{StatusCode: 500}, ServerRejected, "failed to fetch reports", 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{list: failWith(tt.err)}
			s := New(api, WithReports([]model.Report{report("1", model.StatusActive)}))

			err := s.FetchAll(context.Background())
			require.Error(t, err)

			st := s.State()
			assert.False(t, st.Loading)
			require.NotNil(t, st.Error)
			assert.Equal(t, tt.wantKind, st.Error.Kind)
			assert.Equal(t, tt.wantMsg, st.Error.Message)
			assert.Equal(t, tt.wantCode, st.Error.StatusCode)
			assert.Equal(t, OpFetch, st.Error.Op)
			assert.Equal(t, []model.ID{"1"}, ids(s.Reports()))
		})
	}
}

func TestFetchAll_ErrorClearedOnNextDispatch(t *testing.T) {
	calls := 0
	api := &fakeAPI{list: func(context.Context) ([]model.Report, error) {
		calls++
		if calls == 1 {
			return nil, errNetwork
		}
		return []model.Report{}, nil
	}}
	s := New(api)

	require.Error(t, s.FetchAll(context.Background()))
	require.NotNil(t, s.State().Error)
	require.NoError(t, s.FetchAll(context.Background()))
	assert.Nil(t, s.State().Error)
}

func TestCreate_RefetchSupersedesInsert(t *testing.T) {
	nine := model.Report{ID: "9", Location: "X", Status: model.StatusActive}
	nineFromServer := model.Report{ID: "9", Location: "X, Jakarta", Status: model.StatusActive}
	api := &fakeAPI{
		create: func(context.Context, *floodapi.Payload) (*model.Report, error) { return &nine, nil },
		list:   listOf(nineFromServer, report("2", model.StatusActive)),
	}
	s := New(api, WithReports([]model.Report{report("2", model.StatusActive)}))

	p := &floodapi.Payload{}
	p.Set("location", "X")
	got, err := s.Create(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, model.ID("9"), got.ID)

	assert.Equal(t, []model.Report{nineFromServer, report("2", model.StatusActive)}, s.Reports())
	assert.False(t, s.State().Loading)
}

func TestCreate_InsertsAtFrontWhenRefetchFails(t *testing.T) {
	nine := report("9", model.StatusActive)
	api := &fakeAPI{
		create: func(context.Context, *floodapi.Payload) (*model.Report, error) { return &nine, nil },
		list:   failWith(errNetwork),
	}
	s := New(api, WithReports([]model.Report{report("2", model.StatusActive), report("9", model.StatusResolved)}))

	_, err := s.Create(context.Background(), &floodapi.Payload{})
	require.NoError(t, err)

	assert.Equal(t, []model.Report{nine, report("2", model.StatusActive)}, s.Reports())
	st := s.State()
	require.NotNil(t, st.Error)
	assert.Equal(t, "failed to fetch reports", st.Error.Message)
	assert.False(t, st.Loading)
}

func TestCreate_Failure(t *testing.T) {
	listCalled := false
	api := &fakeAPI{
		create: func(context.Context, *floodapi.Payload) (*model.Report, error) {
			return nil, &floodapi.APIError{StatusCode: 400, Message: "image too large"}
		},
		list: func(context.Context) ([]model.Report, error) {
			listCalled = true
			return nil, nil
		},
	}
	s := New(api, WithReports([]model.Report{report("2", model.StatusActive)}))

	_, err := s.Create(context.Background(), &floodapi.Payload{})
	require.Error(t, err)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "image too large", reqErr.Message)

	assert.False(t, listCalled)
	assert.Equal(t, []model.ID{"2"}, ids(s.Reports()))
	assert.Equal(t, ServerRejected, s.State().Error.Kind)
	assert.False(t, s.State().Loading)
}

func TestCreate_NetworkFailureDefaultMessage(t *testing.T) {
	api := &fakeAPI{create: func(context.Context, *floodapi.Payload) (*model.Report, error) { return nil, errNetwork }}
	s := New(api)

	_, err := s.Create(context.Background(), &floodapi.Payload{})
	require.Error(t, err)
	assert.Equal(t, "failed to create report", err.Error())
	assert.Equal(t, NetworkFailure, s.State().Error.Kind)
	assert.ErrorIs(t, err, errNetwork)
}

func TestUpdate_ResolvesReport(t *testing.T) {
	resolved := report("1", model.StatusResolved)
	server := []model.Report{report("1", model.StatusActive)}
	api := &fakeAPI{
		list: func(context.Context) ([]model.Report, error) { return server, nil },
		update: func(_ context.Context, id model.ID, p *floodapi.Payload) (*model.Report, error) {
			assert.Equal(t, model.ID("1"), id)
			status, _ := p.Get("status")
			assert.Equal(t, "RESOLVED", status)
			server = []model.Report{resolved}
			return &resolved, nil
		},
	}
	s := New(api)
	require.NoError(t, s.FetchAll(context.Background()))

	p := &floodapi.Payload{}
	p.Set("status", string(model.StatusResolved))
	_, err := s.Update(context.Background(), "1", p)
	require.NoError(t, err)

	assert.Equal(t, []model.Report{resolved}, s.Reports())
}

func TestUpdate_ReplacesInPlaceBeforeRefetch(t *testing.T) {
	updated := model.Report{ID: "2", Description: "surut", Status: model.StatusActive}
	var seenDuringRefetch []model.Report
	var s *Store
	api := &fakeAPI{
		update: func(context.Context, model.ID, *floodapi.Payload) (*model.Report, error) { return &updated, nil },
		list: func(context.Context) ([]model.Report, error) {
			seenDuringRefetch = s.Reports()
			return nil, errNetwork
		},
	}
	s = New(api, WithReports([]model.Report{report("1", model.StatusActive), report("2", model.StatusActive), report("3", model.StatusActive)}))

	_, err := s.Update(context.Background(), "2", &floodapi.Payload{})
	require.NoError(t, err)

	want := []model.Report{report("1", model.StatusActive), updated, report("3", model.StatusActive)}
	assert.Equal(t, want, seenDuringRefetch)
	assert.Equal(t, want, s.Reports())
}

func TestUpdate_MissingIDStillRefetches(t *testing.T) {
	updated := report("7", model.StatusResolved)
	api := &fakeAPI{
		update: func(context.Context, model.ID, *floodapi.Payload) (*model.Report, error) { return &updated, nil },
		list:   listOf(updated),
	}
	s := New(api, WithReports([]model.Report{report("1", model.StatusActive)}))

	_, err := s.Update(context.Background(), "7", &floodapi.Payload{})
	require.NoError(t, err)
	assert.Equal(t, []model.Report{updated}, s.Reports())
}

func TestUpdate_Failure(t *testing.T) {
	api := &fakeAPI{update: func(context.Context, model.ID, *floodapi.Payload) (*model.Report, error) {
		return nil, &floodapi.APIError{StatusCode: 403, Message: "not your report"}
	}}
	before := []model.Report{report("1", model.StatusActive)}
	s := New(api, WithReports(before))

	_, err := s.Update(context.Background(), "1", &floodapi.Payload{})
	require.Error(t, err)
	assert.Equal(t, before, s.Reports())
	assert.Equal(t, "not your report", s.State().Error.Message)
	assert.Equal(t, 403, s.State().Error.StatusCode)
}

func TestDelete(t *testing.T) {
	api := &fakeAPI{del: func(_ context.Context, id model.ID) (model.ID, error) { return id, nil }}
	s := New(api, WithReports([]model.Report{report("1", model.StatusActive), report("2", model.StatusActive)}))
	s.Select("1")

	require.NoError(t, s.Delete(context.Background(), "1"))
	assert.Equal(t, []model.ID{"2"}, ids(s.Reports()))
	assert.Nil(t, s.Selected())
	assert.False(t, s.State().Loading)
}

func TestDelete_Failure(t *testing.T) {
	api := &fakeAPI{del: func(context.Context, model.ID) (model.ID, error) { return "", errNetwork }}
	before := []model.Report{report("1", model.StatusActive)}
	s := New(api, WithReports(before))

	require.Error(t, s.Delete(context.Background(), "1"))
	assert.Equal(t, before, s.Reports())
	require.NotNil(t, s.State().Error)
	assert.Equal(t, "failed to delete report", s.State().Error.Message)
}

func TestSelection(t *testing.T) {
	s := New(&fakeAPI{}, WithReports([]model.Report{report("1", model.StatusActive)}))
	assert.Nil(t, s.Selected())

	s.Select("1")
	require.NotNil(t, s.Selected())
	assert.Equal(t, model.ID("1"), s.Selected().ID)
	assert.Equal(t, model.ID("1"), s.State().SelectedID)

	s.Select("404")
	assert.Nil(t, s.Selected())

	s.ClearSelection()
	assert.Empty(t, s.State().SelectedID)
}

func TestFindReturnsCopy(t *testing.T) {
	s := New(&fakeAPI{}, WithReports([]model.Report{report("1", model.StatusActive)}))
	r := s.Find("1")
	require.NotNil(t, r)
	r.Status = model.StatusResolved
	assert.Equal(t, model.StatusActive, s.Find("1").Status)
	assert.Nil(t, s.Find("2"))
}

func TestSetAndClearError(t *testing.T) {
	s := New(&fakeAPI{})
	s.SetError("location required")
	require.NotNil(t, s.State().Error)
	assert.Equal(t, ValidationDeferred, s.State().Error.Kind)
	s.ClearError()
	assert.Nil(t, s.State().Error)
}

// gate blocks a fake call until released and reports when it started.
type gate struct {
	started chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) wait() {
	close(g.started)
	<-g.release
}

func TestLoadingSpansDispatchToSettlement(t *testing.T) {
	g := newGate()
	api := &fakeAPI{del: func(_ context.Context, id model.ID) (model.ID, error) {
		g.wait()
		return id, nil
	}}
	s := New(api, WithReports([]model.Report{report("1", model.StatusActive)}))
	assert.False(t, s.State().Loading)

	done := make(chan error)
	go func() { done <- s.Delete(context.Background(), "1") }()
	<-g.started
	assert.True(t, s.State().Loading)

	close(g.release)
	require.NoError(t, <-done)
	assert.False(t, s.State().Loading)
}

func TestLoadingHeldByOverlappingOperations(t *testing.T) {
	slow, fast := newGate(), newGate()
	api := &fakeAPI{
		list: func(context.Context) ([]model.Report, error) {
			slow.wait()
			return nil, nil
		},
		del: func(_ context.Context, id model.ID) (model.ID, error) {
			fast.wait()
			return id, nil
		},
	}
	s := New(api)

	fetchDone := make(chan error)
	go func() { fetchDone <- s.FetchAll(context.Background()) }()
	<-slow.started

	delDone := make(chan error)
	go func() { delDone <- s.Delete(context.Background(), "1") }()
	<-fast.started
	close(fast.release)
	require.NoError(t, <-delDone)

	assert.True(t, s.State().Loading)

	close(slow.release)
	require.NoError(t, <-fetchDone)
	assert.False(t, s.State().Loading)
}

func TestLoadingNeverDropsBetweenCreateAndRefetch(t *testing.T) {
	nine := report("9", model.StatusActive)
	api := &fakeAPI{
		create: func(context.Context, *floodapi.Payload) (*model.Report, error) { return &nine, nil },
		list:   listOf(nine),
	}
	s := New(api)

	var mu sync.Mutex
	var states []State
	unsubscribe := s.Subscribe(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, st)
	})
	defer unsubscribe()

	_, err := s.Create(context.Background(), &floodapi.Payload{})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	for _, st := range states[:len(states)-1] {
		assert.True(t, st.Loading)
	}
	assert.False(t, states[len(states)-1].Loading)
}

func TestStaleFetchDropped(t *testing.T) {
	first := newGate()
	calls := 0
	var mu sync.Mutex
	api := &fakeAPI{list: func(context.Context) ([]model.Report, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			first.wait()
			return []model.Report{report("old", model.StatusActive)}, nil
		}
		return []model.Report{report("new", model.StatusActive)}, nil
	}}
	s := New(api)

	done := make(chan error)
	go func() { done <- s.FetchAll(context.Background()) }()
	<-first.started

	require.NoError(t, s.FetchAll(context.Background()))
	assert.Equal(t, []model.ID{"new"}, ids(s.Reports()))

	close(first.release)
	require.NoError(t, <-done)
	assert.Equal(t, []model.ID{"new"}, ids(s.Reports()))
	assert.False(t, s.State().Loading)
}

func TestFetchIssuedBeforeDeleteCannotResurrect(t *testing.T) {
	g := newGate()
	api := &fakeAPI{
		list: func(context.Context) ([]model.Report, error) {
			g.wait()
			return []model.Report{report("1", model.StatusActive), report("2", model.StatusActive)}, nil
		},
		del: func(_ context.Context, id model.ID) (model.ID, error) { return id, nil },
	}
	s := New(api, WithReports([]model.Report{report("1", model.StatusActive), report("2", model.StatusActive)}))

	done := make(chan error)
	go func() { done <- s.FetchAll(context.Background()) }()
	<-g.started

	require.NoError(t, s.Delete(context.Background(), "1"))
	close(g.release)
	require.NoError(t, <-done)

	assert.Equal(t, []model.ID{"2"}, ids(s.Reports()))
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	s := New(&fakeAPI{})
	count := 0
	unsubscribe := s.Subscribe(func(State) { count++ })

	s.Select("1")
	s.ClearSelection()
	assert.Equal(t, 2, count)

	unsubscribe()
	s.Select("2")
	assert.Equal(t, 2, count)
}

func TestDispose(t *testing.T) {
	s := New(&fakeAPI{})
	count := 0
	s.Subscribe(func(State) { count++ })
	s.Dispose()

	assert.ErrorIs(t, s.FetchAll(context.Background()), ErrDisposed)
	_, err := s.Create(context.Background(), &floodapi.Payload{})
	assert.ErrorIs(t, err, ErrDisposed)
	_, err = s.Update(context.Background(), "1", &floodapi.Payload{})
	assert.ErrorIs(t, err, ErrDisposed)
	assert.ErrorIs(t, s.Delete(context.Background(), "1"), ErrDisposed)

	s.Select("1")
	assert.Zero(t, count)
	assert.False(t, s.State().Loading)
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "server_rejected", ServerRejected.String())
	assert.Equal(t, "geocode_not_found", GeocodeNotFound.String())
	assert.Equal(t, "ErrorKind(42)", ErrorKind(42).String())
}
