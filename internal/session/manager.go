// Package session owns the process-wide authentication state.
// The Manager holds a single current Session, resolves it once at startup
// from persisted credentials, follows every change reported by the auth
// backend and broadcasts each change to subscribers in emission order.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Backend is the external auth service the Manager delegates to
type Backend interface {
	// GetCurrentSession returns the persisted Session, or nil if none is live
	GetCurrentSession(ctx context.Context) (*Session, error)
	// OnChange registers a listener for backend transitions. Events must be
	// delivered one at a time in emission order. The returned func
	// unregisters the listener.
	OnChange(listener func(Event)) (unsubscribe func())
	PasswordSignIn(ctx context.Context, identifier, secret string) error
	PasswordSignUp(ctx context.Context, identifier, secret string) error
	SignOut(ctx context.Context) error
}

// Accessor is the read side of the Manager used by gated views
type Accessor interface {
	Current() *Session
	State() State
}

// Listener receives the new current Session, or nil when signed out
type Listener func(*Session)

type snapshot struct {
	state   State
	session *Session
	// version increases by one on every commit
	version uint64
}

// Manager is the single source of truth for "who is signed in"
type Manager struct {
	backend Backend
	logger  *slog.Logger

	current atomic.Pointer[snapshot]

	// deliverMu serializes commit+broadcast so subscribers observe changes
	// in the order the backend emitted them
	deliverMu sync.Mutex

	mu     sync.Mutex
	subs   []*Subscription
	nextID uint64
	closed bool

	startOnce   sync.Once
	unsubscribe func()
}

// NewManager creates a Manager in the Unresolved state and starts listening
// to backend events immediately, so nothing emitted before Start is lost.
func NewManager(backend Backend, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		backend: backend,
		logger:  logger.With("component", "session"),
	}
	m.current.Store(&snapshot{state: StateUnresolved})
	m.unsubscribe = backend.OnChange(m.handleEvent)
	return m
}

// Start resolves the startup Session from persisted credentials. It runs at
// most once. A backend failure resolves to signed out. If a backend event
// already moved the Manager out of Unresolved, the startup result is dropped.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		s, err := m.backend.GetCurrentSession(ctx)
		if err != nil {
			m.logger.Warn("Failed to resolve startup session", "error", err)
			s = nil
		}
		if s != nil && s.Expired(timeNow()) {
			s = nil
		}

		m.deliverMu.Lock()
		defer m.deliverMu.Unlock()
		if m.current.Load().state != StateUnresolved {
			m.logger.Debug("Startup session superseded by backend event")
			return
		}
		m.commitAndBroadcast(s)
	})
}

// Current returns the current Session, or nil when signed out or unresolved.
// It never blocks on I/O.
func (m *Manager) Current() *Session {
	return m.current.Load().session
}

// State returns the lifecycle state
func (m *Manager) State() State {
	return m.current.Load().state
}

// SignIn asks the backend to sign in. The current Session changes only when
// the backend reports the transition.
func (m *Manager) SignIn(ctx context.Context, identifier, secret string) error {
	if err := m.backend.PasswordSignIn(ctx, identifier, secret); err != nil {
		return asAuthError("sign in", err)
	}
	return nil
}

// SignUp registers a new account. The backend may or may not sign the user
// in depending on whether confirmation is required.
func (m *Manager) SignUp(ctx context.Context, identifier, secret string) error {
	if err := m.backend.PasswordSignUp(ctx, identifier, secret); err != nil {
		return asAuthError("sign up", err)
	}
	return nil
}

// SignOut ends the current Session. It is a no-op when already signed out.
func (m *Manager) SignOut(ctx context.Context) error {
	if m.State() == StateSignedOut {
		return nil
	}
	if err := m.backend.SignOut(ctx); err != nil {
		return asAuthError("sign out", err)
	}
	return nil
}

// Subscribe registers fn for every subsequent change. If the Manager is
// already resolved, fn is first called with the current value, or with a
// newer one if a change lands while Subscribe runs; otherwise its first
// call is the startup resolution. Calls to one listener never overlap and
// never go backwards.
//
// The initial call runs outside event delivery, so it may sign in or out.
// Calls caused by a backend event run while that event is being emitted
// and must not call Subscribe, SignIn, SignUp or SignOut. Current and
// Release are always safe.
func (m *Manager) Subscribe(fn Listener) *Subscription {
	m.deliverMu.Lock()
	m.mu.Lock()
	m.nextID++
	sub := &Subscription{id: m.nextID, manager: m, fn: fn}
	if m.closed {
		sub.released.Store(true)
		m.mu.Unlock()
		m.deliverMu.Unlock()
		return sub
	}
	m.subs = append(m.subs, sub)
	m.mu.Unlock()
	snap := m.current.Load()
	m.deliverMu.Unlock()

	if snap.state != StateUnresolved {
		m.deliver(sub, snap)
	}
	return sub
}

// Close stops following the backend and releases every subscription
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()

	for _, sub := range subs {
		sub.released.Store(true)
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// SubscriberCount returns the number of live subscriptions
func (m *Manager) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Manager) handleEvent(ev Event) {
	next := ev.Session
	switch ev.Type {
	case EventSignedOut:
		next = nil
	case EventRefreshFailed:
		m.logger.Warn("Token refresh failed, signing out")
		next = nil
	case EventSignedIn, EventTokenRefreshed:
	default:
		m.logger.Warn("Ignoring unknown auth event", "type", ev.Type)
		return
	}

	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()
	m.commitAndBroadcast(next)
}

// commitAndBroadcast must be called with deliverMu held. The slot is
// updated before any listener runs.
func (m *Manager) commitAndBroadcast(s *Session) {
	state := StateSignedOut
	if s != nil {
		state = StateSignedIn
	}
	snap := &snapshot{state: state, session: s, version: m.current.Load().version + 1}
	m.current.Store(snap)

	attrs := []any{"state", state.String()}
	if s != nil {
		attrs = append(attrs, "user_id", s.User.UserID)
	}
	m.logger.Info("Session changed", attrs...)

	m.mu.Lock()
	subs := make([]*Subscription, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, sub := range subs {
		m.deliver(sub, snap)
	}
}

// deliver queues snap for sub and drains the queue unless another call is
// already draining it. Values older than the last one queued are dropped.
func (m *Manager) deliver(sub *Subscription, snap *snapshot) {
	sub.mu.Lock()
	if snap.version <= sub.queued {
		sub.mu.Unlock()
		return
	}
	sub.queued = snap.version
	sub.pending = append(sub.pending, snap.session)
	if sub.draining {
		sub.mu.Unlock()
		return
	}
	sub.draining = true
	for len(sub.pending) > 0 {
		s := sub.pending[0]
		sub.pending = sub.pending[1:]
		sub.mu.Unlock()
		m.call(sub, s)
		sub.mu.Lock()
	}
	sub.draining = false
	sub.mu.Unlock()
}

func (m *Manager) call(sub *Subscription, s *Session) {
	if sub.released.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Session listener panicked", "subscription", sub.id, "panic", r)
		}
	}()
	sub.fn(s)
}

func (m *Manager) remove(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subs {
		if sub.id == id {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return
		}
	}
}

// Subscription is the handle returned by Subscribe
type Subscription struct {
	id       uint64
	manager  *Manager
	fn       Listener
	released atomic.Bool

	mu       sync.Mutex
	pending  []*Session
	queued   uint64
	draining bool
}

// Release stops further deliveries. Calling it more than once is a no-op.
func (s *Subscription) Release() {
	if s.released.Swap(true) {
		return
	}
	s.manager.remove(s.id)
}
