package auth

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"multiactivity/internal/config"
	"multiactivity/internal/gate"
	"multiactivity/internal/session"

	"github.com/gin-gonic/gin"
)

type handlerFixture struct {
	*fixture
	manager *session.Manager
	router  *gin.Engine

	// cookie is replayed on every request, the way a browser would
	cookie *http.Cookie
}

func newHandlerFixture(t *testing.T, mutate func(*config.AuthConfig)) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newFixture(mutate)
	mgr := session.NewManager(f.backend, discardLogger())
	mgr.Start(context.Background())
	t.Cleanup(mgr.Close)

	h := NewHandler(mgr, f.backend, f.backend, discardLogger())
	router := gin.New()
	guard := gate.Require(mgr, f.backend, discardLogger())
	h.RegisterRoutes(router, guard)
	api := router.Group("/api", guard)
	api.DELETE("/account", h.DeleteAccount)

	return &handlerFixture{fixture: f, manager: mgr, router: router}
}

func (hf *handlerFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if hf.cookie != nil {
		req.AddCookie(hf.cookie)
	}
	w := httptest.NewRecorder()
	hf.router.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.Name != gate.CookieName {
			continue
		}
		hf.cookie = c
		if c.MaxAge < 0 {
			hf.cookie = nil
		}
	}
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal error response: %v", err)
	}
	return resp
}

func TestHandler_SignIn(t *testing.T) {
	hf := newHandlerFixture(t, nil)
	hf.users.addUser("user@example.com", "secret1", true)
	hf.users.addUser("pending@example.com", "secret1", false)

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"missing fields", map[string]string{"email": "user@example.com"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad email", CredentialsRequest{Email: "nope", Password: "secret1"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"wrong password", CredentialsRequest{Email: "user@example.com", Password: "wrong!!"}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"unconfirmed", CredentialsRequest{Email: "pending@example.com", Password: "secret1"}, http.StatusForbidden, "EMAIL_NOT_CONFIRMED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := hf.do(http.MethodPost, "/auth/signin", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if got := decodeError(t, w).Code; got != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, got)
			}
		})
	}

	t.Run("success", func(t *testing.T) {
		w := hf.do(http.MethodPost, "/auth/signin", CredentialsRequest{Email: "user@example.com", Password: "secret1"})
		if w.Code != http.StatusAccepted {
			t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
		}
		var resp SessionResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if !resp.SignedIn || resp.State != "signed_in" || resp.User == nil || resp.User.Email != "user@example.com" {
			t.Errorf("Unexpected session response %+v", resp)
		}
		if resp.AccessToken == "" || resp.AccessToken != hf.manager.Current().Credential.AccessToken {
			t.Error("Expected the access token of the new session")
		}
		if strings.Contains(w.Body.String(), "refresh_token") {
			t.Error("Refresh token must not be exposed")
		}
		if hf.cookie == nil || hf.cookie.Value != resp.AccessToken || !hf.cookie.HttpOnly {
			t.Errorf("Expected HttpOnly access token cookie, got %+v", hf.cookie)
		}
	})
}

func TestHandler_SignUp(t *testing.T) {
	t.Run("confirmation required", func(t *testing.T) {
		hf := newHandlerFixture(t, nil)
		w := hf.do(http.MethodPost, "/auth/signup", CredentialsRequest{Email: "new@example.com", Password: "secret1"})
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
		}
		var resp SignUpResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if !resp.ConfirmationRequired || resp.Session != nil {
			t.Errorf("Unexpected response %+v", resp)
		}
		if hf.manager.Current() != nil {
			t.Error("Expected no session before confirmation")
		}

		w = hf.do(http.MethodPost, "/auth/signup", CredentialsRequest{Email: "new@example.com", Password: "secret1"})
		if w.Code != http.StatusConflict {
			t.Errorf("Expected status 409 for duplicate, got %d", w.Code)
		}
	})

	t.Run("auto confirm", func(t *testing.T) {
		hf := newHandlerFixture(t, func(c *config.AuthConfig) { c.AutoConfirm = true })
		w := hf.do(http.MethodPost, "/auth/signup", CredentialsRequest{Email: "new@example.com", Password: "secret1"})
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
		}
		var resp SignUpResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.ConfirmationRequired || resp.Session == nil || !resp.Session.SignedIn || resp.Session.AccessToken == "" {
			t.Errorf("Unexpected response %+v", resp)
		}
	})

	t.Run("short password", func(t *testing.T) {
		hf := newHandlerFixture(t, nil)
		w := hf.do(http.MethodPost, "/auth/signup", CredentialsRequest{Email: "new@example.com", Password: "123"})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("Expected status 400, got %d", w.Code)
		}
		if msg := decodeError(t, w).Error; !strings.Contains(msg, "at least") {
			t.Errorf("Expected validation detail, got %q", msg)
		}
	})

	t.Run("store unavailable", func(t *testing.T) {
		hf := newHandlerFixture(t, nil)
		hf.users.err = errBoom
		w := hf.do(http.MethodPost, "/auth/signup", CredentialsRequest{Email: "new@example.com", Password: "secret1"})
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("Expected status 503, got %d", w.Code)
		}
		if msg := decodeError(t, w).Error; strings.Contains(msg, "boom") {
			t.Errorf("Internal error leaked: %q", msg)
		}
	})
}

func TestHandler_ConfirmThenSignIn(t *testing.T) {
	hf := newHandlerFixture(t, nil)
	hf.do(http.MethodPost, "/auth/signup", CredentialsRequest{Email: "new@example.com", Password: "secret1"})

	link := hf.notifier.confirmations["new@example.com"]
	path := link[strings.Index(link, "/auth/confirm"):]

	if w := hf.do(http.MethodGet, "/auth/confirm?token=bogus", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bogus token, got %d", w.Code)
	}
	if w := hf.do(http.MethodGet, path, nil); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := hf.do(http.MethodPost, "/auth/signin", CredentialsRequest{Email: "new@example.com", Password: "secret1"}); w.Code != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d", w.Code)
	}
}

func TestHandler_SessionAndSignOut(t *testing.T) {
	hf := newHandlerFixture(t, nil)
	hf.users.addUser("user@example.com", "secret1", true)

	w := hf.do(http.MethodGet, "/auth/session", nil)
	if w.Code != http.StatusUnauthorized || decodeError(t, w).Code != "SIGNED_OUT" {
		t.Fatalf("Expected 401 SIGNED_OUT, got %d %s", w.Code, w.Body.String())
	}

	hf.do(http.MethodPost, "/auth/signin", CredentialsRequest{Email: "user@example.com", Password: "secret1"})

	w = hf.do(http.MethodGet, "/auth/session", nil)
	var resp SessionResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.SignedIn || resp.ExpiresAt == nil {
		t.Fatalf("Expected signed_in with expiry, got %+v", resp)
	}
	if resp.AccessToken != "" {
		t.Error("Expected no token when the current one was presented")
	}

	if w := hf.do(http.MethodPost, "/auth/signout", nil); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if hf.manager.Current() != nil {
		t.Error("Expected session cleared")
	}
	if hf.cookie != nil {
		t.Error("Expected access token cookie cleared")
	}
	if w := hf.do(http.MethodPost, "/auth/signout", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected repeated sign out to be rejected, got %d", w.Code)
	}
}

func TestHandler_SignOutNeedsTheSignedInUsersToken(t *testing.T) {
	hf := newHandlerFixture(t, nil)
	hf.users.addUser("alice@example.com", "secret1", true)
	hf.users.addUser("bob@example.com", "secret1", true)

	hf.do(http.MethodPost, "/auth/signin", CredentialsRequest{Email: "alice@example.com", Password: "secret1"})
	alice := hf.cookie
	hf.cookie = nil
	hf.do(http.MethodPost, "/auth/signin", CredentialsRequest{Email: "bob@example.com", Password: "secret1"})
	bob := hf.cookie

	hf.cookie = alice
	if w := hf.do(http.MethodPost, "/auth/signout", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401 for alice's stale token, got %d", w.Code)
	}
	hf.cookie = nil
	if w := hf.do(http.MethodPost, "/auth/signout", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401 without a token, got %d", w.Code)
	}
	if s := hf.manager.Current(); s == nil || s.User.Email != "bob@example.com" {
		t.Fatalf("Expected bob to stay signed in, got %+v", s)
	}

	hf.cookie = bob
	if w := hf.do(http.MethodPost, "/auth/signout", nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for bob, got %d", w.Code)
	}
}

func TestHandler_RefreshedTokenStillAccepted(t *testing.T) {
	hf := newHandlerFixture(t, nil)
	hf.users.addUser("user@example.com", "secret1", true)
	hf.do(http.MethodPost, "/auth/signin", CredentialsRequest{Email: "user@example.com", Password: "secret1"})
	old := hf.cookie.Value

	later := time.Now().Add(2 * time.Second)
	hf.backend.now = func() time.Time { return later }
	hf.backend.refresh(context.Background(), hf.manager.Current())
	current := hf.manager.Current().Credential.AccessToken
	if current == old {
		t.Fatal("Expected refresh to issue a new access token")
	}

	w := hf.do(http.MethodGet, "/auth/session", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for a token of the same sign-in, got %d", w.Code)
	}
	if got := w.Header().Get(gate.TokenHeader); got != current {
		t.Errorf("Expected current token handed back, got %q", got)
	}
	if hf.cookie == nil || hf.cookie.Value != current {
		t.Errorf("Expected cookie updated to the current token, got %+v", hf.cookie)
	}
}

func TestHandler_DeleteAccount(t *testing.T) {
	hf := newHandlerFixture(t, nil)
	hf.users.addUser("user@example.com", "secret1", true)

	if w := hf.do(http.MethodDelete, "/api/account", DeleteAccountRequest{Password: "secret1"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401 while signed out, got %d", w.Code)
	}

	hf.do(http.MethodPost, "/auth/signin", CredentialsRequest{Email: "user@example.com", Password: "secret1"})

	if w := hf.do(http.MethodDelete, "/api/account", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without password, got %d", w.Code)
	}
	if w := hf.do(http.MethodDelete, "/api/account", DeleteAccountRequest{Password: "wrong!!"}); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for wrong password, got %d", w.Code)
	}

	w := hf.do(http.MethodDelete, "/api/account", DeleteAccountRequest{Password: "secret1"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if hf.manager.Current() != nil {
		t.Error("Expected signed out after deletion")
	}
	if len(hf.notifier.deleted) != 1 {
		t.Errorf("Expected deletion email, got %v", hf.notifier.deleted)
	}
}

// readSessionEvent reads the next "session" event from an SSE stream
func readSessionEvent(t *testing.T, r *bufio.Reader) SessionResponse {
	t.Helper()
	var event string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("Stream ended: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:") && event == "session":
			var resp SessionResponse
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &resp); err != nil {
				t.Fatalf("Bad event payload %q: %v", line, err)
			}
			return resp
		}
	}
}

// openStream signs in email and opens its session event stream
func openStream(t *testing.T, hf *handlerFixture, srv *httptest.Server, email string) (*bufio.Reader, func()) {
	t.Helper()
	hf.cookie = nil
	w := hf.do(http.MethodPost, "/auth/signin", CredentialsRequest{Email: email, Password: "secret1"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", w.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/auth/session/events", nil)
	req.Header.Set("Authorization", "Bearer "+hf.cookie.Value)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("Failed to open stream: %v", err)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Expected text/event-stream, got %s", ct)
	}
	return bufio.NewReader(resp.Body), func() {
		resp.Body.Close()
		cancel()
	}
}

func expectStreamClosed(t *testing.T, r *bufio.Reader) {
	t.Helper()
	if _, err := io.ReadAll(r); err != nil {
		t.Errorf("Expected stream to close cleanly, got %v", err)
	}
}

func TestHandler_Events(t *testing.T) {
	hf := newHandlerFixture(t, nil)
	hf.users.addUser("user@example.com", "secret1", true)

	srv := httptest.NewServer(hf.router)
	defer srv.Close()

	r, closeStream := openStream(t, hf, srv, "user@example.com")
	defer closeStream()

	if first := readSessionEvent(t, r); !first.SignedIn || first.User.Email != "user@example.com" {
		t.Fatalf("Expected initial signed_in event, got %+v", first)
	}
	later := time.Now().Add(2 * time.Second)
	hf.backend.now = func() time.Time { return later }
	hf.backend.refresh(context.Background(), hf.manager.Current())
	ev := readSessionEvent(t, r)
	if !ev.SignedIn || ev.AccessToken != hf.manager.Current().Credential.AccessToken {
		t.Fatalf("Expected refreshed event with the new token, got %+v", ev)
	}

	if err := hf.manager.SignOut(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ev := readSessionEvent(t, r); ev.SignedIn {
		t.Fatalf("Expected signed_out event, got %+v", ev)
	}
	expectStreamClosed(t, r)
}

func TestHandler_EventsEndWhenAnotherUserSignsIn(t *testing.T) {
	hf := newHandlerFixture(t, nil)
	hf.users.addUser("alice@example.com", "secret1", true)
	hf.users.addUser("bob@example.com", "secret1", true)

	srv := httptest.NewServer(hf.router)
	defer srv.Close()

	r, closeStream := openStream(t, hf, srv, "alice@example.com")
	defer closeStream()
	if first := readSessionEvent(t, r); !first.SignedIn {
		t.Fatalf("Expected initial signed_in event, got %+v", first)
	}

	if err := hf.manager.SignIn(context.Background(), "bob@example.com", "secret1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	ev := readSessionEvent(t, r)
	if ev.SignedIn || ev.User != nil || ev.AccessToken != "" {
		t.Fatalf("Expected a bare signed_out event, got %+v", ev)
	}
	expectStreamClosed(t, r)
}

func TestPublicMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain error", errBoom, "internal error"},
		{"transport hides cause", session.NewAuthError("op", session.ErrTransport, errBoom), session.ErrTransport.Error()},
		{"invalid input shows detail", session.NewAuthError("op", session.ErrInvalidInput, errBoom), "boom"},
		{"credentials", session.NewAuthError("op", session.ErrInvalidCredentials, nil), session.ErrInvalidCredentials.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := publicMessage(tt.err); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
