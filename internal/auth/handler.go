package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"multiactivity/internal/gate"
	"multiactivity/internal/session"

	"github.com/gin-gonic/gin"
)

// streamBuffer is how many undelivered transitions an SSE client may lag
// behind before its stream is closed
const streamBuffer = 16

// AccountDeleter deletes the signed-in user's account
type AccountDeleter interface {
	DeleteAccount(ctx context.Context, userID, secret string) error
}

// Confirmer confirms an account from an emailed token
type Confirmer interface {
	Confirm(ctx context.Context, token string) error
	RequiresConfirmation() bool
}

// Handler handles authentication-related HTTP requests
type Handler struct {
	sessions  *session.Manager
	confirmer Confirmer
	deleter   AccountDeleter
	logger    *slog.Logger
}

// NewHandler creates a new authentication handler
func NewHandler(sessions *session.Manager, confirmer Confirmer, deleter AccountDeleter, logger *slog.Logger) *Handler {
	return &Handler{
		sessions:  sessions,
		confirmer: confirmer,
		deleter:   deleter,
		logger:    logger,
	}
}

// RegisterRoutes mounts the /auth routes. guard, normally gate.Require,
// protects the routes that act on the caller's own session.
func (h *Handler) RegisterRoutes(r gin.IRouter, guard gin.HandlerFunc) {
	g := r.Group("/auth")
	{
		g.POST("/signin", h.SignIn)
		g.POST("/signup", h.SignUp)
		g.GET("/confirm", h.Confirm)
	}
	own := g.Group("", guard)
	{
		own.POST("/signout", h.SignOut)
		own.GET("/session", h.Session)
		own.GET("/session/events", h.Events)
	}
}

// SignIn handles POST /auth/signin
func (h *Handler) SignIn(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "email and password are required",
			Code:    "INVALID_REQUEST",
		})
		return
	}

	if err := h.sessions.SignIn(c.Request.Context(), req.Email, req.Password); err != nil {
		h.writeAuthError(c, err)
		return
	}

	s := h.issuedTo(req.Email)
	if s == nil {
		c.JSON(http.StatusAccepted, newSessionResponse(session.StateSignedOut, nil))
		return
	}
	gate.SetCredential(c, s)
	c.JSON(http.StatusAccepted, newCredentialResponse(s))
}

// SignUp handles POST /auth/signup
func (h *Handler) SignUp(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "email and password are required",
			Code:    "INVALID_REQUEST",
		})
		return
	}

	if err := h.sessions.SignUp(c.Request.Context(), req.Email, req.Password); err != nil {
		h.writeAuthError(c, err)
		return
	}

	if h.confirmer.RequiresConfirmation() {
		c.JSON(http.StatusCreated, SignUpResponse{
			Message:              "Check your email for the confirmation link",
			ConfirmationRequired: true,
		})
		return
	}

	resp := SignUpResponse{
		Message: "Account created",
		Session: newSessionResponse(session.StateSignedOut, nil),
	}
	if s := h.issuedTo(req.Email); s != nil {
		gate.SetCredential(c, s)
		resp.Session = newCredentialResponse(s)
	}
	c.JSON(http.StatusCreated, resp)
}

// issuedTo returns the current session if it belongs to identifier. A
// concurrent sign-in may already have replaced the one just created.
func (h *Handler) issuedTo(identifier string) *session.Session {
	email, err := normalizeEmail(identifier)
	if err != nil {
		return nil
	}
	s := h.sessions.Current()
	if s == nil || s.User.Email != email {
		return nil
	}
	return s
}

// SignOut handles POST /auth/signout. It must be mounted behind
// gate.Require.
func (h *Handler) SignOut(c *gin.Context) {
	if err := h.sessions.SignOut(c.Request.Context()); err != nil {
		h.writeAuthError(c, err)
		return
	}
	gate.ClearCredential(c)
	c.JSON(http.StatusOK, gin.H{"message": "signed out"})
}

// Confirm handles GET /auth/confirm?token=
func (h *Handler) Confirm(c *gin.Context) {
	if err := h.confirmer.Confirm(c.Request.Context(), c.Query("token")); err != nil {
		h.writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "email confirmed, you can sign in now"})
}

// Session handles GET /auth/session. It must be mounted behind
// gate.Require.
func (h *Handler) Session(c *gin.Context) {
	s, ok := gate.GetSession(c)
	if !ok {
		c.JSON(http.StatusOK, newSessionResponse(session.StateSignedOut, nil))
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(session.StateSignedIn, s))
}

type streamEvent struct {
	resp *SessionResponse
	last bool
}

// Events handles GET /auth/session/events and must be mounted behind
// gate.Require. Each transition of the caller's sign-in is sent as a
// "session" server-sent event, carrying the new access token after a
// refresh. When the sign-in ends or another user signs in, a final
// signed-out event is sent and the stream closes. A client that falls
// behind is disconnected and picks up the current value when it
// reconnects.
func (h *Handler) Events(c *gin.Context) {
	bound, ok := gate.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Success: false,
			Error:   "Unauthorized: sign in required",
			Code:    "SIGNED_OUT",
		})
		return
	}
	presented := gate.Token(c)

	updates := make(chan streamEvent, streamBuffer)
	overflow := make(chan struct{})
	var ended bool

	sub := h.sessions.Subscribe(func(s *session.Session) {
		if ended {
			return
		}
		ev := streamEvent{resp: newSessionResponse(session.StateSignedOut, nil), last: true}
		if s != nil && s.ID == bound.ID && s.User.UserID == bound.User.UserID {
			ev = streamEvent{resp: newSessionResponse(session.StateSignedIn, s)}
			if s.Credential.AccessToken != presented {
				ev.resp.AccessToken = s.Credential.AccessToken
			}
		}
		select {
		case updates <- ev:
			ended = ev.last
		default:
			ended = true
			close(overflow)
		}
	})
	defer sub.Release()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-overflow:
			h.logger.Warn("Session event stream fell behind, closing")
			return false
		case ev := <-updates:
			c.SSEvent("session", ev.resp)
			return !ev.last
		}
	})
}

// DeleteAccount handles DELETE /api/account. It must be mounted behind
// gate.Require.
func (h *Handler) DeleteAccount(c *gin.Context) {
	userID, ok := gate.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Success: false,
			Error:   "Unauthorized: sign in required",
			Code:    "SIGNED_OUT",
		})
		return
	}

	var req DeleteAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "password is required",
			Code:    "INVALID_REQUEST",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if err := h.deleter.DeleteAccount(ctx, userID.String(), req.Password); err != nil {
		h.writeAuthError(c, err)
		return
	}
	gate.ClearCredential(c)

	c.JSON(http.StatusOK, gin.H{"message": "account deleted"})
}

func (h *Handler) writeAuthError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		status, code = http.StatusUnauthorized, "INVALID_CREDENTIALS"
	case errors.Is(err, session.ErrDuplicateAccount):
		status, code = http.StatusConflict, "DUPLICATE_ACCOUNT"
	case errors.Is(err, session.ErrUnconfirmed):
		status, code = http.StatusForbidden, "EMAIL_NOT_CONFIRMED"
	case errors.Is(err, session.ErrInvalidInput):
		status, code = http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, session.ErrTransport):
		status, code = http.StatusServiceUnavailable, "AUTH_UNAVAILABLE"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Auth request failed", "path", c.FullPath(), "error", err)
	} else {
		h.logger.Info("Auth request rejected", "path", c.FullPath(), "code", code)
	}

	c.JSON(status, ErrorResponse{
		Success: false,
		Error:   publicMessage(err),
		Code:    code,
	})
}

// publicMessage returns the kind message plus the validation detail for
// invalid input. Other causes stay in the logs.
func publicMessage(err error) string {
	var authErr *session.AuthError
	if !errors.As(err, &authErr) {
		return "internal error"
	}
	if errors.Is(authErr.Kind, session.ErrInvalidInput) && authErr.Err != nil {
		return authErr.Err.Error()
	}
	return authErr.Kind.Error()
}
