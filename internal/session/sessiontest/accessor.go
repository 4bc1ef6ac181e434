package sessiontest

import (
	"time"

	"multiactivity/internal/session"

	"github.com/google/uuid"
)

// AccessToken is the access token of sessions built by SignedIn
const AccessToken = "sessiontest-access"

// Accessor is a fixed session.Accessor
type Accessor struct {
	Session *session.Session
}

// Current returns the fixed session
func (a *Accessor) Current() *session.Session {
	return a.Session
}

// State is SignedIn when a session is set
func (a *Accessor) State() session.State {
	if a.Session == nil {
		return session.StateSignedOut
	}
	return session.StateSignedIn
}

// SignedIn returns an accessor holding a fresh session for a random user.
// Requests through gate.Require must present AccessToken.
func SignedIn() (*Accessor, uuid.UUID) {
	id := uuid.New()
	now := time.Now()
	return &Accessor{Session: &session.Session{
		ID:   uuid.NewString(),
		User: session.Identity{UserID: id.String(), Email: id.String()[:8] + "@example.com"},
		Credential: session.Credential{
			AccessToken:  AccessToken,
			RefreshToken: "refresh",
			ExpiresAt:    now.Add(time.Hour),
		},
		IssuedAt: now,
	}}, id
}
