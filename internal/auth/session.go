// Package auth carries the caller's identity as issued by the backend.
package auth

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/floodwatch/internal/model"
	"github.com/sells-group/floodwatch/pkg/floodapi"
)

// ErrUnauthenticated is returned when an action needs a signed-in session.
var ErrUnauthenticated = eris.New("auth: not signed in")

// Session is an issued identity. The zero value is signed out.
type Session struct {
	UserID model.ID
	Token  string
}

// New trims its inputs into a Session.
func New(userID, token string) Session {
	return Session{UserID: model.ID(strings.TrimSpace(userID)), Token: strings.TrimSpace(token)}
}

// Authenticated reports whether a token is present.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// Require gates the authoring surfaces.
func (s Session) Require() error {
	if !s.Authenticated() {
		return ErrUnauthenticated
	}
	return nil
}

// TokenSource hands the bearer token to the transport.
func (s Session) TokenSource() floodapi.TokenSource {
	return func() string { return s.Token }
}

// Owns reports whether r was filed by this session's user.
func (s Session) Owns(r model.Report) bool {
	return s.UserID != "" && r.UserID == s.UserID
}

// Mine filters reports down to the ones this user filed, keeping order.
func (s Session) Mine(reports []model.Report) []model.Report {
	return model.OwnedBy(reports, s.UserID)
}
