// Package auth implements the password auth backend behind the Session
// Manager: accounts in Postgres, bcrypt password hashes, JWT access tokens
// and Redis-held refresh tokens, plus the HTTP routes that drive it.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"multiactivity/internal/config"
	"multiactivity/internal/session"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted secret
const MinPasswordLength = 6

const (
	currentKey    = "auth:current"
	refreshPrefix = "refresh:"
	confirmPrefix = "confirm:"
)

var errRefreshRevoked = errors.New("refresh token revoked")

// Notifier sends account emails
type Notifier interface {
	SendConfirmation(ctx context.Context, recipient, confirmURL string) error
	SendAccountDeleted(ctx context.Context, recipient string) error
}

// CleanupFunc removes data owned by a deleted user outside Postgres
type CleanupFunc func(ctx context.Context, userID string) error

// Backend implements session.Backend
type Backend struct {
	users    UserRepository
	store    session.Store
	tokens   *TokenIssuer
	notifier Notifier
	cfg      config.AuthConfig
	logger   *slog.Logger
	now      func() time.Time

	// emitMu serializes persistence and emission so listeners observe
	// transitions in the order they were committed
	emitMu sync.Mutex

	listenersMu sync.Mutex
	listeners   map[uint64]func(session.Event)
	nextID      uint64

	mu      sync.Mutex
	current *session.Session
	cleanup []CleanupFunc

	wake chan struct{}
}

// NewBackend creates the auth backend
func NewBackend(users UserRepository, store session.Store, notifier Notifier, cfg config.AuthConfig, logger *slog.Logger) *Backend {
	return &Backend{
		users:     users,
		store:     store,
		tokens:    NewTokenIssuer(cfg.JWTSecret, cfg.Issuer, cfg.AccessTTL),
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With("component", "auth"),
		now:       time.Now,
		listeners: make(map[uint64]func(session.Event)),
		wake:      make(chan struct{}, 1),
	}
}

// OnAccountDeleted registers fn to run after an account is deleted
func (b *Backend) OnAccountDeleted(fn CleanupFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanup = append(b.cleanup, fn)
}

// RequiresConfirmation reports whether sign-up waits for email confirmation
func (b *Backend) RequiresConfirmation() bool {
	return !b.cfg.AutoConfirm
}

// OnChange registers listener for transitions. Listeners are called in
// registration order, one event at a time.
func (b *Backend) OnChange(listener func(session.Event)) func() {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.nextID++
	id := b.nextID
	b.listeners[id] = listener
	return func() {
		b.listenersMu.Lock()
		defer b.listenersMu.Unlock()
		delete(b.listeners, id)
	}
}

// emit must be called with emitMu held
func (b *Backend) emit(ev session.Event) {
	b.listenersMu.Lock()
	ids := make([]uint64, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	listeners := make([]func(session.Event), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, b.listeners[id])
	}
	b.listenersMu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

// GetCurrentSession loads the persisted credential. An expired access token
// is refreshed; a revoked or unreadable credential resolves to nil.
func (b *Backend) GetCurrentSession(ctx context.Context) (*session.Session, error) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	raw, err := b.store.Get(ctx, currentKey)
	if errors.Is(err, session.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, session.NewAuthError("get session", session.ErrTransport, err)
	}

	var s session.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		b.logger.Warn("Discarding unreadable persisted session", "error", err)
		_ = b.store.Delete(ctx, currentKey)
		return nil, nil
	}

	if s.Expired(b.now()) {
		refreshed, err := b.rotate(ctx, &s)
		if err != nil {
			if errors.Is(err, errRefreshRevoked) {
				b.logger.Info("Persisted session could not be refreshed", "user_id", s.User.UserID)
				_ = b.store.Delete(ctx, currentKey)
				return nil, nil
			}
			return nil, session.NewAuthError("get session", session.ErrTransport, err)
		}
		if err := b.persist(ctx, refreshed); err != nil {
			return nil, session.NewAuthError("get session", session.ErrTransport, err)
		}
		b.setCurrent(refreshed)
		return refreshed, nil
	}

	b.setCurrent(&s)
	return &s, nil
}

// PasswordSignIn verifies the credentials and emits SignedIn
func (b *Backend) PasswordSignIn(ctx context.Context, identifier, secret string) error {
	const op = "sign in"

	email, err := normalizeEmail(identifier)
	if err != nil {
		return session.NewAuthError(op, session.ErrInvalidInput, err)
	}
	if secret == "" {
		return session.NewAuthError(op, session.ErrInvalidInput, errors.New("password is required"))
	}

	user, err := b.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return session.NewAuthError(op, session.ErrInvalidCredentials, nil)
	}
	if err != nil {
		return session.NewAuthError(op, session.ErrTransport, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(secret)); err != nil {
		return session.NewAuthError(op, session.ErrInvalidCredentials, nil)
	}
	if !user.Confirmed() {
		return session.NewAuthError(op, session.ErrUnconfirmed, nil)
	}

	if err := b.signIn(ctx, user); err != nil {
		return session.NewAuthError(op, session.ErrTransport, err)
	}
	return nil
}

// PasswordSignUp creates the account. With auto-confirm the user is signed
// in immediately; otherwise a confirmation email is sent.
func (b *Backend) PasswordSignUp(ctx context.Context, identifier, secret string) error {
	const op = "sign up"

	email, err := normalizeEmail(identifier)
	if err != nil {
		return session.NewAuthError(op, session.ErrInvalidInput, err)
	}
	if len(secret) < MinPasswordLength {
		return session.NewAuthError(op, session.ErrInvalidInput,
			fmt.Errorf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), b.cfg.BcryptCost)
	if err != nil {
		// bcrypt rejects secrets over 72 bytes
		return session.NewAuthError(op, session.ErrInvalidInput, err)
	}

	user, err := b.users.Create(ctx, email, string(hash), b.cfg.AutoConfirm)
	if errors.Is(err, ErrEmailExists) {
		return session.NewAuthError(op, session.ErrDuplicateAccount, nil)
	}
	if err != nil {
		return session.NewAuthError(op, session.ErrTransport, err)
	}

	if b.cfg.AutoConfirm {
		if err := b.signIn(ctx, user); err != nil {
			return session.NewAuthError(op, session.ErrTransport, err)
		}
		return nil
	}

	token := uuid.NewString()
	if err := b.store.Set(ctx, confirmPrefix+token, user.ID, b.cfg.ConfirmTTL); err != nil {
		return session.NewAuthError(op, session.ErrTransport, err)
	}
	if err := b.notifier.SendConfirmation(ctx, user.Email, b.confirmURL(token)); err != nil {
		b.logger.Error("Failed to send confirmation email", "user_id", user.ID, "error", err)
	}
	return nil
}

// Confirm marks the account behind token as confirmed
func (b *Backend) Confirm(ctx context.Context, token string) error {
	const op = "confirm"

	if strings.TrimSpace(token) == "" {
		return session.NewAuthError(op, session.ErrInvalidInput, errors.New("token is required"))
	}

	userID, err := b.store.Get(ctx, confirmPrefix+token)
	if errors.Is(err, session.ErrKeyNotFound) {
		return session.NewAuthError(op, session.ErrInvalidInput, errors.New("invalid or expired confirmation token"))
	}
	if err != nil {
		return session.NewAuthError(op, session.ErrTransport, err)
	}

	if err := b.users.Confirm(ctx, userID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return session.NewAuthError(op, session.ErrInvalidInput, errors.New("account no longer exists"))
		}
		return session.NewAuthError(op, session.ErrTransport, err)
	}

	if err := b.store.Delete(ctx, confirmPrefix+token); err != nil {
		b.logger.Warn("Failed to delete used confirmation token", "error", err)
	}
	b.logger.Info("Account confirmed", "user_id", userID)
	return nil
}

// SignOut revokes the current credential and emits SignedOut. When the
// store cannot be reached the local session is still cleared and the
// transport error is returned.
func (b *Backend) SignOut(ctx context.Context) error {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	current := b.current
	b.mu.Unlock()

	var keys []string
	keys = append(keys, currentKey)
	if current != nil {
		keys = append(keys, refreshPrefix+current.Credential.RefreshToken)
	}
	err := b.store.Delete(ctx, keys...)

	if current != nil {
		b.setCurrent(nil)
		b.emit(session.Event{Type: session.EventSignedOut})
	}

	if err != nil {
		return session.NewAuthError("sign out", session.ErrTransport, err)
	}
	return nil
}

// DeleteAccount re-verifies secret, deletes the user and everything they
// own, revokes their tokens and emits SignedOut.
func (b *Backend) DeleteAccount(ctx context.Context, userID, secret string) error {
	const op = "delete account"

	user, err := b.users.GetByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return session.NewAuthError(op, session.ErrInvalidCredentials, nil)
	}
	if err != nil {
		return session.NewAuthError(op, session.ErrTransport, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(secret)); err != nil {
		return session.NewAuthError(op, session.ErrInvalidCredentials, nil)
	}

	if err := b.users.Delete(ctx, user.ID); err != nil {
		return session.NewAuthError(op, session.ErrTransport, err)
	}

	b.mu.Lock()
	cleanup := append([]CleanupFunc(nil), b.cleanup...)
	b.mu.Unlock()
	for _, fn := range cleanup {
		if err := fn(ctx, user.ID); err != nil {
			b.logger.Error("Account cleanup failed", "user_id", user.ID, "error", err)
		}
	}

	if err := b.notifier.SendAccountDeleted(ctx, user.Email); err != nil {
		b.logger.Error("Failed to send account deletion email", "user_id", user.ID, "error", err)
	}

	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	current := b.current
	b.mu.Unlock()
	if current == nil || current.User.UserID != user.ID {
		return nil
	}

	if err := b.store.Delete(ctx, currentKey, refreshPrefix+current.Credential.RefreshToken); err != nil {
		b.logger.Error("Failed to revoke tokens of deleted account", "user_id", user.ID, "error", err)
	}
	b.setCurrent(nil)
	b.emit(session.Event{Type: session.EventSignedOut})
	return nil
}

// Run refreshes the current access token RefreshMargin before it expires
// until ctx is cancelled. A failed refresh emits RefreshFailed.
func (b *Backend) Run(ctx context.Context) {
	for {
		b.mu.Lock()
		current := b.current
		b.mu.Unlock()

		var timer *time.Timer
		var fire <-chan time.Time
		if current != nil {
			wait := current.Credential.ExpiresAt.Sub(b.now()) - b.cfg.RefreshMargin
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-b.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-fire:
			b.refresh(ctx, current)
		}
	}
}

// refresh rotates the token pair of s if it is still the current session
func (b *Backend) refresh(ctx context.Context, s *session.Session) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	still := b.current == s
	b.mu.Unlock()
	if !still {
		return
	}

	refreshed, err := b.rotate(ctx, s)
	if err == nil {
		err = b.persist(ctx, refreshed)
	}
	if err != nil {
		b.logger.Warn("Token refresh failed", "user_id", s.User.UserID, "error", err)
		_ = b.store.Delete(ctx, currentKey, refreshPrefix+s.Credential.RefreshToken)
		b.setCurrent(nil)
		b.emit(session.Event{Type: session.EventRefreshFailed})
		return
	}

	b.setCurrent(refreshed)
	b.emit(session.Event{Type: session.EventTokenRefreshed, Session: refreshed})
}

// signIn issues and persists a new session for user and emits SignedIn
func (b *Backend) signIn(ctx context.Context, user *User) error {
	s, err := b.issue(ctx, session.Identity{UserID: user.ID, Email: user.Email}, uuid.NewString())
	if err != nil {
		return err
	}

	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	if err := b.persist(ctx, s); err != nil {
		_ = b.store.Delete(ctx, refreshPrefix+s.Credential.RefreshToken)
		return err
	}

	b.mu.Lock()
	previous := b.current
	b.mu.Unlock()
	if previous != nil {
		if err := b.store.Delete(ctx, refreshPrefix+previous.Credential.RefreshToken); err != nil {
			b.logger.Warn("Failed to revoke previous refresh token", "error", err)
		}
	}

	b.setCurrent(s)
	b.emit(session.Event{Type: session.EventSignedIn, Session: s})
	return nil
}

// issue creates a token pair for the sign-in sessionID and stores the
// refresh token
func (b *Backend) issue(ctx context.Context, identity session.Identity, sessionID string) (*session.Session, error) {
	now := b.now()
	access, expiresAt, err := b.tokens.Issue(identity.UserID, identity.Email, sessionID, now)
	if err != nil {
		return nil, err
	}

	refresh := uuid.NewString()
	if err := b.store.Set(ctx, refreshPrefix+refresh, identity.UserID, b.cfg.RefreshTTL); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &session.Session{
		ID:   sessionID,
		User: identity,
		Credential: session.Credential{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresAt:    expiresAt,
		},
		IssuedAt: now,
	}, nil
}

// rotate exchanges the refresh token of s for a new session of the same
// sign-in. The old refresh token is single-use.
func (b *Backend) rotate(ctx context.Context, s *session.Session) (*session.Session, error) {
	key := refreshPrefix + s.Credential.RefreshToken
	owner, err := b.store.Get(ctx, key)
	if errors.Is(err, session.ErrKeyNotFound) {
		return nil, errRefreshRevoked
	}
	if err != nil {
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	if owner != s.User.UserID {
		return nil, errRefreshRevoked
	}

	user, err := b.users.GetByID(ctx, owner)
	if errors.Is(err, ErrUserNotFound) {
		_ = b.store.Delete(ctx, key)
		return nil, errRefreshRevoked
	}
	if err != nil {
		return nil, err
	}

	if err := b.store.Delete(ctx, key); err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	sessionID := s.ID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return b.issue(ctx, session.Identity{UserID: user.ID, Email: user.Email}, sessionID)
}

// VerifyAccessToken checks the signature, issuer and expiry of token and
// returns the user and sign-in it was issued for
func (b *Backend) VerifyAccessToken(token string) (userID, sessionID string, err error) {
	claims, err := b.tokens.Parse(token, b.now())
	if err != nil {
		return "", "", err
	}
	return claims.Subject, claims.SessionID, nil
}

func (b *Backend) persist(ctx context.Context, s *session.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := b.store.Set(ctx, currentKey, string(raw), b.cfg.RefreshTTL); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// setCurrent records s and wakes the refresh loop
func (b *Backend) setCurrent(s *session.Session) {
	b.mu.Lock()
	b.current = s
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Backend) confirmURL(token string) string {
	u, err := url.Parse(b.cfg.ConfirmURL)
	if err != nil {
		return b.cfg.ConfirmURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func normalizeEmail(identifier string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(identifier))
	if email == "" {
		return "", errors.New("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("invalid email address %q", identifier)
	}
	return email, nil
}

var _ session.Backend = (*Backend)(nil)
