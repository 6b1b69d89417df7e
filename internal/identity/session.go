// Package identity carries the caller's session explicitly through the store
// and selection layers instead of reading it from ambient state.
package identity

import (
	"context"
	"strings"

	"onboarding-backend/internal/shared/util"
)

// Session is the identity a request acts on behalf of.
type Session struct {
	ID     string
	UserID string
	Email  string
	Name   string
	Token  string
}

// New builds a session for an authenticated user. The session ID depends on the
// user only, so it survives token refreshes. Use WithSID to tell apart several
// sign-ins of the same user.
func New(userID, email, name, token string) Session {
	userID = strings.TrimSpace(userID)
	return Session{ID: sessionID(userID, ""), UserID: userID, Email: email, Name: name, Token: token}
}

// WithSID scopes the session to the identity provider's sign-in id (the sid claim).
func (s Session) WithSID(sid string) Session {
	s.ID = sessionID(s.UserID, strings.TrimSpace(sid))
	return s
}

func sessionID(userID, sid string) string {
	key := userID
	if sid != "" {
		key += "|" + sid
	}
	return util.HashKey(key)[:32]
}

// Anonymous reports whether no user is signed in.
func (s Session) Anonymous() bool {
	return strings.TrimSpace(s.UserID) == ""
}

type ctxKey struct{}

// WithSession stores the session on ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored on ctx, or an anonymous one.
func FromContext(ctx context.Context) Session {
	if ctx == nil {
		return Session{}
	}
	s, _ := ctx.Value(ctxKey{}).(Session)
	return s
}
