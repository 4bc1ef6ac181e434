package auth

import (
	"time"

	"multiactivity/internal/session"
)

// User represents a registered account
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Confirmed reports whether the email address has been confirmed
func (u *User) Confirmed() bool {
	return u.ConfirmedAt != nil
}

// CredentialsRequest is the payload for sign-in and sign-up
type CredentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// DeleteAccountRequest re-authenticates the user before deletion
type DeleteAccountRequest struct {
	Password string `json:"password" binding:"required"`
}

// SessionResponse describes the current session. AccessToken is set only
// when the response hands a new token to the user it was issued for; the
// refresh token is never exposed.
type SessionResponse struct {
	State       string            `json:"state"`
	SignedIn    bool              `json:"signed_in"`
	User        *session.Identity `json:"user,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	AccessToken string            `json:"access_token,omitempty"`
}

// SignUpResponse tells the client whether a confirmation email was sent
type SignUpResponse struct {
	Message              string           `json:"message"`
	ConfirmationRequired bool             `json:"confirmation_required"`
	Session              *SessionResponse `json:"session,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

func newSessionResponse(state session.State, s *session.Session) *SessionResponse {
	resp := &SessionResponse{State: state.String()}
	if s == nil {
		return resp
	}
	user := s.User
	expires := s.Credential.ExpiresAt
	resp.SignedIn = true
	resp.User = &user
	resp.ExpiresAt = &expires
	return resp
}

func newCredentialResponse(s *session.Session) *SessionResponse {
	resp := newSessionResponse(session.StateSignedIn, s)
	resp.AccessToken = s.Credential.AccessToken
	return resp
}
