package reports

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/floodwatch/pkg/floodapi"
)

// ErrorKind classifies a failed operation.
type ErrorKind int

const (
	// NetworkFailure means the request never reached the server or no
	// response came back.
	NetworkFailure ErrorKind = iota
	// ServerRejected means the server answered non-2xx.
	ServerRejected
	// GeocodeNotFound means a place search returned nothing.
	GeocodeNotFound
	// ValidationDeferred marks input checks left to the server or caller.
	ValidationDeferred
)

func (k ErrorKind) String() string {
	switch k {
	case NetworkFailure:
		return "network_failure"
	case ServerRejected:
		return "server_rejected"
	case GeocodeNotFound:
		return "geocode_not_found"
	case ValidationDeferred:
		return "validation_deferred"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Op names a store operation.
type Op string

const (
	OpFetch  Op = "fetch"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

var defaultMessages = map[Op]string{
	OpFetch:  "failed to fetch reports",
	OpCreate: "failed to create report",
	OpUpdate: "failed to update report",
	OpDelete: "failed to delete report",
}

// DefaultMessage is the text surfaced when the server sent no message.
func DefaultMessage(op Op) string {
	return defaultMessages[op]
}

// RequestError is the failure recorded in State. Message is safe to show.
type RequestError struct {
	Kind       ErrorKind
	Op         Op
	Message    string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string { return e.Message }

func (e *RequestError) Unwrap() error { return e.Err }

// ErrDisposed is returned by operations on a disposed store.
var ErrDisposed = eris.New("reports: store disposed")

// classify turns a transport error into a RequestError. A server message is
// used verbatim, otherwise the operation's default.
func classify(op Op, err error) *RequestError {
	var apiErr *floodapi.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = DefaultMessage(op)
		}
		return &RequestError{
			Kind:       ServerRejected,
			Op:         op,
			Message:    msg,
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}
	return &RequestError{Kind: NetworkFailure, Op: op, Message: DefaultMessage(op), Err: err}
}
