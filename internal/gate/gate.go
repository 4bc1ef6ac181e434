// Package gate guards routes that need a signed-in user.
package gate

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"multiactivity/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LoginPath is where HTML clients are sent when no one is signed in
const LoginPath = "/login"

// CookieName is the HttpOnly cookie carrying the access token
const CookieName = "access_token"

// TokenHeader carries the current access token when the request presented
// an older token of the same sign-in
const TokenHeader = "X-Access-Token"

const (
	userIDKey  = "user_id"
	emailKey   = "email"
	sessionKey = "session"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// Verifier checks an access token and returns the user and sign-in it was
// issued for
type Verifier interface {
	VerifyAccessToken(token string) (userID, sessionID string, err error)
}

var now = time.Now

// Require rejects the request unless the current Session is live and the
// request presents its access token, as a Bearer header or the
// access_token cookie. A token from an earlier refresh of the same sign-in
// is accepted when verifier confirms it, and the current token is handed
// back. A nil verifier accepts only the current token.
//
// The Session is read from accessor on every request, so a sign-out or a
// sign-in by someone else takes effect on the next request.
func Require(accessor session.Accessor, verifier Verifier, logger *slog.Logger) gin.HandlerFunc {
	logger = logger.With("component", "gate")

	return func(c *gin.Context) {
		sess := accessor.Current()
		if sess == nil || sess.Expired(now()) {
			reject(c, stateCode(accessor.State()))
			return
		}

		token := Token(c)
		if token == "" {
			reject(c, "SIGNED_OUT")
			return
		}
		if token != sess.Credential.AccessToken {
			if !sameSignIn(verifier, token, sess) {
				logger.Info("Access token does not match the current session",
					"path", c.FullPath(),
					"request_id", c.GetString("request_id"))
				reject(c, "INVALID_TOKEN")
				return
			}
			SetCredential(c, sess)
		}

		userID, err := uuid.Parse(sess.User.UserID)
		if err != nil {
			logger.Error("Session carries invalid user id",
				"user_id", sess.User.UserID,
				"request_id", c.GetString("request_id"))
			reject(c, stateCode(accessor.State()))
			return
		}

		c.Set(userIDKey, userID)
		c.Set(emailKey, sess.User.Email)
		c.Set(sessionKey, sess)

		c.Next()
	}
}

func sameSignIn(verifier Verifier, token string, sess *session.Session) bool {
	if verifier == nil || sess.ID == "" {
		return false
	}
	userID, sessionID, err := verifier.VerifyAccessToken(token)
	if err != nil {
		return false
	}
	return userID == sess.User.UserID && sessionID == sess.ID
}

// Token returns the Bearer token of the request, or the access_token
// cookie when there is no Authorization header
func Token(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return ""
		}
		return strings.TrimSpace(token)
	}
	cookie, err := c.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie
}

// SetCredential hands the access token of s to the client as an HttpOnly
// cookie and in TokenHeader
func SetCredential(c *gin.Context, s *session.Session) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, s.Credential.AccessToken, 0, "/", "", c.Request.TLS != nil, true)
	c.Header(TokenHeader, s.Credential.AccessToken)
}

// ClearCredential expires the access token cookie
func ClearCredential(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", c.Request.TLS != nil, true)
}

func stateCode(state session.State) string {
	if state == session.StateUnresolved {
		return "SESSION_UNRESOLVED"
	}
	return "SIGNED_OUT"
}

func reject(c *gin.Context, code string) {
	if wantsHTML(c.Request) {
		c.Redirect(http.StatusSeeOther, LoginPath)
		c.Abort()
		return
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
		Success: false,
		Error:   "Unauthorized: sign in required",
		Code:    code,
	})
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}

// GetUserID is a helper to extract user_id from context
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get(userIDKey)
	if !exists {
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	return userID, ok
}

// GetSession returns the Session placed in the context by Require
func GetSession(c *gin.Context) (*session.Session, bool) {
	value, exists := c.Get(sessionKey)
	if !exists {
		return nil, false
	}
	sess, ok := value.(*session.Session)
	return sess, ok
}
