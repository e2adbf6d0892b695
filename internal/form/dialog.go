package form

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/floodwatch/internal/model"
	"github.com/sells-group/floodwatch/internal/notify"
	"github.com/sells-group/floodwatch/internal/reports"
)

// ErrDialogHidden is returned when confirming a dialog that is not showing.
var ErrDialogHidden = eris.New("form: delete dialog not open")

// DialogView is a snapshot of the delete confirmation dialog.
type DialogView struct {
	Visible  Visibility
	TargetID model.ID
	Error    string
	Deleting bool
}

// DeleteDialog confirms deletion of one report.
type DeleteDialog struct {
	store    ReportStore
	notifier notify.Notifier

	mu       sync.Mutex
	visible  Visibility
	target   model.ID
	errMsg   string
	deleting bool
}

// NewDeleteDialog creates a hidden dialog. A nil notifier discards.
func NewDeleteDialog(store ReportStore, n notify.Notifier) *DeleteDialog {
	if n == nil {
		n = notify.Discard
	}
	return &DeleteDialog{store: store, notifier: n}
}

// Open selects id in the store and shows the dialog.
func (d *DeleteDialog) Open(id model.ID) {
	d.mu.Lock()
	d.visible = Visible
	d.target = id
	d.errMsg = ""
	d.mu.Unlock()
	d.store.Select(id)
}

// Cancel hides the dialog and clears the selection.
func (d *DeleteDialog) Cancel() {
	d.mu.Lock()
	d.visible = Hidden
	d.target = ""
	d.errMsg = ""
	d.mu.Unlock()
	d.store.ClearSelection()
}

// Confirm deletes the target. On failure the dialog stays open with the
// error message.
func (d *DeleteDialog) Confirm(ctx context.Context) error {
	d.mu.Lock()
	if d.visible != Visible || d.target == "" {
		d.mu.Unlock()
		return ErrDialogHidden
	}
	id := d.target
	d.deleting = true
	d.errMsg = ""
	d.mu.Unlock()

	err := d.store.Delete(ctx, id)

	d.mu.Lock()
	d.deleting = false
	if err != nil {
		if d.target == id {
			d.errMsg = deleteMessage(err)
		}
		d.mu.Unlock()
		return err
	}
	current := d.target == id
	if current {
		d.visible = Hidden
		d.target = ""
	}
	d.mu.Unlock()

	// A reopen while deleting owns the selection now.
	if current {
		d.store.ClearSelection()
	}
	d.notifier.Notify(notify.New(notify.SeveritySuccess, notify.MsgReportDeleted))
	return nil
}

// View returns the current dialog state.
func (d *DeleteDialog) View() DialogView {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DialogView{Visible: d.visible, TargetID: d.target, Error: d.errMsg, Deleting: d.deleting}
}

func deleteMessage(err error) string {
	if msg := submitMessage(err); msg != MsgSubmitFailed {
		return msg
	}
	return reports.DefaultMessage(reports.OpDelete)
}
