package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"multiactivity/internal/config"
	"multiactivity/internal/session"
	"multiactivity/internal/session/sessiontest"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// memoryUsers is an in-memory UserRepository
type memoryUsers struct {
	mu    sync.Mutex
	byID  map[string]*User
	err   error
	calls int
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: make(map[string]*User)}
}

func (m *memoryUsers) Create(ctx context.Context, email, passwordHash string, confirmed bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.byID {
		if u.Email == email {
			return nil, ErrEmailExists
		}
	}
	now := time.Now()
	u := &User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}
	if confirmed {
		u.ConfirmedAt = &now
	}
	m.byID[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) GetByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memoryUsers) GetByID(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) Confirm(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	now := time.Now()
	u.ConfirmedAt = &now
	return nil
}

func (m *memoryUsers) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return ErrUserNotFound
	}
	delete(m.byID, id)
	return nil
}

// addUser inserts a user with the given password directly
func (m *memoryUsers) addUser(email, password string, confirmed bool) *User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	u, err := m.Create(context.Background(), email, string(hash), confirmed)
	if err != nil {
		panic(err)
	}
	return u
}

type mockNotifier struct {
	mu            sync.Mutex
	confirmations map[string]string
	deleted       []string
	err           error
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{confirmations: make(map[string]string)}
}

func (m *mockNotifier) SendConfirmation(ctx context.Context, recipient, confirmURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmations[recipient] = confirmURL
	return m.err
}

func (m *mockNotifier) SendAccountDeleted(ctx context.Context, recipient string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, recipient)
	return m.err
}

// eventLog records backend events
type eventLog struct {
	mu     sync.Mutex
	events []session.Event
}

func (l *eventLog) record(ev session.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []session.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]session.Event(nil), l.events...)
}

type fixture struct {
	backend  *Backend
	users    *memoryUsers
	store    *sessiontest.MemoryStore
	notifier *mockNotifier
	events   *eventLog
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:     "test-secret-test-secret-test-secret",
		Issuer:        "multiactivity-test",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		RefreshMargin: time.Minute,
		ConfirmTTL:    24 * time.Hour,
		BcryptCost:    bcrypt.MinCost,
		ConfirmURL:    "http://localhost:8080/auth/confirm",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(mutate func(*config.AuthConfig)) *fixture {
	cfg := testAuthConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	f := &fixture{
		users:    newMemoryUsers(),
		store:    sessiontest.NewMemoryStore(),
		notifier: newMockNotifier(),
		events:   &eventLog{},
	}
	f.backend = NewBackend(f.users, f.store, f.notifier, cfg, discardLogger())
	f.backend.OnChange(f.events.record)
	return f
}

var errBoom = errors.New("boom")
