package form

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodwatch/internal/model"
	"github.com/sells-group/floodwatch/internal/notify"
	"github.com/sells-group/floodwatch/internal/reports"
	"github.com/sells-group/floodwatch/pkg/floodapi"
)

func TestDeleteDialog_Confirm(t *testing.T) {
	store := newFakeStore()
	rec := &notify.Recorder{}
	d := NewDeleteDialog(store, rec)

	d.Open("4")
	assert.Equal(t, Visible, d.View().Visible)
	assert.Equal(t, model.ID("4"), store.selection())

	require.NoError(t, d.Confirm(context.Background()))
	assert.Equal(t, []model.ID{"4"}, store.deleted)
	v := d.View()
	assert.Equal(t, Hidden, v.Visible)
	assert.Empty(t, v.TargetID)
	assert.Empty(t, store.selection())
	assert.Equal(t, 1, rec.Count(notify.MsgReportDeleted))
}

func TestDeleteDialog_Cancel(t *testing.T) {
	store := newFakeStore()
	d := NewDeleteDialog(store, nil)

	d.Open("4")
	d.Cancel()

	assert.Equal(t, Hidden, d.View().Visible)
	assert.Empty(t, store.selection())
	assert.ErrorIs(t, d.Confirm(context.Background()), ErrDialogHidden)
	assert.Empty(t, store.deleted)
}

func TestDeleteDialog_FailureKeepsOpen(t *testing.T) {
	store := newFakeStore()
	store.deleteErr = &reports.RequestError{Kind: reports.ServerRejected, Message: "not your report"}
	rec := &notify.Recorder{}
	d := NewDeleteDialog(store, rec)

	d.Open("4")
	require.Error(t, d.Confirm(context.Background()))

	v := d.View()
	assert.Equal(t, Visible, v.Visible)
	assert.Equal(t, model.ID("4"), v.TargetID)
	assert.Equal(t, "not your report", v.Error)
	assert.False(t, v.Deleting)
	assert.Equal(t, model.ID("4"), store.selection())
	assert.Empty(t, rec.All())
}

func TestDeleteDialog_ReopenDuringDelete(t *testing.T) {
	store := newFakeStore()
	store.gate = make(chan struct{})
	store.started = make(chan struct{})
	rec := &notify.Recorder{}
	d := NewDeleteDialog(store, rec)

	d.Open("4")
	done := make(chan error)
	go func() { done <- d.Confirm(context.Background()) }()
	<-store.started
	assert.True(t, d.View().Deleting)

	d.Open("7")
	close(store.gate)
	require.NoError(t, <-done)

	v := d.View()
	assert.Equal(t, Visible, v.Visible)
	assert.Equal(t, model.ID("7"), v.TargetID)
	assert.Equal(t, model.ID("7"), store.selection())
	assert.Equal(t, []model.ID{"4"}, store.deleted)
	assert.Equal(t, 1, rec.Count(notify.MsgReportDeleted))
}

// deleteAPI backs a real reports.Store for the end-to-end dialog test.
type deleteAPI struct {
	floodapi.Client
	fail bool
}

func (a *deleteAPI) DeleteReport(_ context.Context, id model.ID) (model.ID, error) {
	if a.fail {
		return "", &floodapi.APIError{StatusCode: 500}
	}
	return id, nil
}

func TestDeleteDialog_WithReportStore(t *testing.T) {
	api := &deleteAPI{fail: true}
	store := reports.New(api, reports.WithReports([]model.Report{{ID: "1"}, {ID: "2"}}))
	d := NewDeleteDialog(store, nil)

	d.Open("1")
	require.NotNil(t, store.Selected())

	require.Error(t, d.Confirm(context.Background()))
	assert.Equal(t, "failed to delete report", d.View().Error)
	assert.Len(t, store.Reports(), 2)

	api.fail = false
	require.NoError(t, d.Confirm(context.Background()))
	assert.Len(t, store.Reports(), 1)
	assert.Nil(t, store.Selected())
	assert.Empty(t, store.State().SelectedID)
}
