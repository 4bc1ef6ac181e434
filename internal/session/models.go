package session

import "time"

// Identity is the signed-in user as seen by gated views
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Credential is the opaque token pair issued by the auth backend
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Session represents the current authentication state of the process.
// A nil *Session means signed out. Values are never mutated after they are
// published; every change produces a new Session.
type Session struct {
	// ID names the sign-in. Token refreshes keep it; a new sign-in replaces it.
	ID         string     `json:"id"`
	User       Identity   `json:"user"`
	Credential Credential `json:"credential"`
	IssuedAt   time.Time  `json:"issued_at"`
}

// Expired reports whether the access token is no longer valid at now
func (s *Session) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.Credential.ExpiresAt)
}

// State is the Session Manager lifecycle state
type State int

const (
	// StateUnresolved means persisted credentials have not been checked yet
	StateUnresolved State = iota
	// StateSignedOut means no user is signed in
	StateSignedOut
	// StateSignedIn means a Session is live
	StateSignedIn
)

func (s State) String() string {
	switch s {
	case StateSignedOut:
		return "signed_out"
	case StateSignedIn:
		return "signed_in"
	default:
		return "unresolved"
	}
}

// EventType names a transition emitted by the auth backend
type EventType string

const (
	EventSignedIn       EventType = "signed_in"
	EventSignedOut      EventType = "signed_out"
	EventTokenRefreshed EventType = "token_refreshed"
	EventRefreshFailed  EventType = "refresh_failed"
)

// Event is a single backend transition. Session is nil for sign-out and
// refresh failure.
type Event struct {
	Type    EventType
	Session *Session
}

var timeNow = time.Now
