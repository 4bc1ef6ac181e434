package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// Mock backend for testing
type mockBackend struct {
	mu        sync.Mutex
	listeners map[int]func(Event)
	nextID    int

	getFunc     func(ctx context.Context) (*Session, error)
	signInFunc  func(ctx context.Context, identifier, secret string) error
	signUpFunc  func(ctx context.Context, identifier, secret string) error
	signOutFunc func(ctx context.Context) error

	signOutCalls int
}

func newMockBackend() *mockBackend {
	return &mockBackend{listeners: make(map[int]func(Event))}
}

func (b *mockBackend) GetCurrentSession(ctx context.Context) (*Session, error) {
	if b.getFunc != nil {
		return b.getFunc(ctx)
	}
	return nil, nil
}

func (b *mockBackend) OnChange(listener func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = listener
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

func (b *mockBackend) PasswordSignIn(ctx context.Context, identifier, secret string) error {
	if b.signInFunc != nil {
		return b.signInFunc(ctx, identifier, secret)
	}
	return nil
}

func (b *mockBackend) PasswordSignUp(ctx context.Context, identifier, secret string) error {
	if b.signUpFunc != nil {
		return b.signUpFunc(ctx, identifier, secret)
	}
	return nil
}

func (b *mockBackend) SignOut(ctx context.Context) error {
	b.mu.Lock()
	b.signOutCalls++
	b.mu.Unlock()
	if b.signOutFunc != nil {
		return b.signOutFunc(ctx)
	}
	b.emit(Event{Type: EventSignedOut})
	return nil
}

func (b *mockBackend) emit(ev Event) {
	b.mu.Lock()
	listeners := make([]func(Event), 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()
	for _, l := range listeners {
		l(ev)
	}
}

func (b *mockBackend) listenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func testSession(userID string) *Session {
	return &Session{
		User: Identity{UserID: userID, Email: userID + "@example.com"},
		Credential: Credential{
			AccessToken:  "access-" + userID,
			RefreshToken: "refresh-" + userID,
			ExpiresAt:    time.Now().Add(time.Hour),
		},
		IssuedAt: time.Now(),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder collects listener deliveries
type recorder struct {
	mu   sync.Mutex
	seen []*Session
}

func (r *recorder) listen(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
}

func (r *recorder) values() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, len(r.seen))
	copy(out, r.seen)
	return out
}

func TestManager_StartsUnresolved(t *testing.T) {
	mgr := NewManager(newMockBackend(), testLogger())
	defer mgr.Close()

	if mgr.State() != StateUnresolved {
		t.Errorf("Expected unresolved state, got %s", mgr.State())
	}
	if mgr.Current() != nil {
		t.Error("Expected no session before startup resolution")
	}
}

func TestManager_StartResolvesPersistedSession(t *testing.T) {
	backend := newMockBackend()
	persisted := testSession("u1")
	backend.getFunc = func(ctx context.Context) (*Session, error) {
		return persisted, nil
	}
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()

	rec := &recorder{}
	mgr.Subscribe(rec.listen)
	if len(rec.values()) != 0 {
		t.Fatalf("Expected no delivery while unresolved, got %d", len(rec.values()))
	}

	mgr.Start(context.Background())

	if mgr.Current() != persisted {
		t.Errorf("Expected persisted session, got %+v", mgr.Current())
	}
	if mgr.State() != StateSignedIn {
		t.Errorf("Expected signed_in, got %s", mgr.State())
	}
	got := rec.values()
	if len(got) != 1 || got[0] != persisted {
		t.Errorf("Expected single delivery of persisted session, got %v", got)
	}
}

func TestManager_StartErrorResolvesSignedOut(t *testing.T) {
	backend := newMockBackend()
	backend.getFunc = func(ctx context.Context) (*Session, error) {
		return nil, errors.New("connection refused")
	}
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()

	rec := &recorder{}
	mgr.Subscribe(rec.listen)
	mgr.Start(context.Background())

	if mgr.State() != StateSignedOut {
		t.Errorf("Expected signed_out, got %s", mgr.State())
	}
	got := rec.values()
	if len(got) != 1 || got[0] != nil {
		t.Errorf("Expected single nil delivery, got %v", got)
	}
}

func TestManager_StartDropsExpiredSession(t *testing.T) {
	backend := newMockBackend()
	expired := testSession("u1")
	expired.Credential.ExpiresAt = time.Now().Add(-time.Minute)
	backend.getFunc = func(ctx context.Context) (*Session, error) {
		return expired, nil
	}
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()

	mgr.Start(context.Background())

	if mgr.Current() != nil {
		t.Error("Expected expired session to resolve to signed out")
	}
}

func TestManager_EventBeforeStartupWins(t *testing.T) {
	backend := newMockBackend()
	fresh := testSession("fresh")
	stale := testSession("stale")
	backend.getFunc = func(ctx context.Context) (*Session, error) {
		// a sign-in lands while the startup lookup is in flight
		backend.emit(Event{Type: EventSignedIn, Session: fresh})
		return stale, nil
	}
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()

	rec := &recorder{}
	mgr.Subscribe(rec.listen)
	mgr.Start(context.Background())

	if mgr.Current() != fresh {
		t.Errorf("Expected event session to win, got %+v", mgr.Current())
	}
	got := rec.values()
	if len(got) != 1 || got[0] != fresh {
		t.Errorf("Expected only the event delivery, got %v", got)
	}
}

func TestManager_StartRunsOnce(t *testing.T) {
	backend := newMockBackend()
	calls := 0
	backend.getFunc = func(ctx context.Context) (*Session, error) {
		calls++
		return nil, nil
	}
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()

	mgr.Start(context.Background())
	mgr.Start(context.Background())

	if calls != 1 {
		t.Errorf("Expected 1 startup lookup, got %d", calls)
	}
}

func TestManager_SubscribeAfterResolutionGetsCurrent(t *testing.T) {
	backend := newMockBackend()
	s := testSession("u1")
	backend.getFunc = func(ctx context.Context) (*Session, error) { return s, nil }
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()
	mgr.Start(context.Background())

	rec := &recorder{}
	mgr.Subscribe(rec.listen)

	got := rec.values()
	if len(got) != 1 || got[0] != s {
		t.Fatalf("Expected immediate delivery of current session, got %v", got)
	}
	if mgr.Current() != got[0] {
		t.Error("Expected Current to match the delivered value")
	}
}

func TestManager_BroadcastsInEmissionOrder(t *testing.T) {
	backend := newMockBackend()
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()
	mgr.Start(context.Background())

	rec1, rec2 := &recorder{}, &recorder{}
	mgr.Subscribe(rec1.listen)
	mgr.Subscribe(rec2.listen)

	a := testSession("a")
	refreshed := testSession("a")
	backend.emit(Event{Type: EventSignedIn, Session: a})
	backend.emit(Event{Type: EventTokenRefreshed, Session: refreshed})
	backend.emit(Event{Type: EventSignedOut})

	want := []*Session{nil, a, refreshed, nil}
	for i, rec := range []*recorder{rec1, rec2} {
		got := rec.values()
		if len(got) != len(want) {
			t.Fatalf("subscriber %d: expected %d deliveries, got %d", i, len(want), len(got))
		}
		for j := range want {
			if got[j] != want[j] {
				t.Errorf("subscriber %d delivery %d: expected %v, got %v", i, j, want[j], got[j])
			}
		}
	}
	if mgr.Current() != nil {
		t.Error("Expected last event to win")
	}
}

func TestManager_CommitsBeforeBroadcast(t *testing.T) {
	backend := newMockBackend()
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()
	mgr.Start(context.Background())

	var observed *Session
	mgr.Subscribe(func(s *Session) {
		observed = mgr.Current()
	})

	s := testSession("u1")
	backend.emit(Event{Type: EventSignedIn, Session: s})

	if observed != s {
		t.Errorf("Expected Current inside listener to equal delivered value, got %+v", observed)
	}
}

func TestManager_RefreshFailureForcesSignedOut(t *testing.T) {
	backend := newMockBackend()
	s := testSession("u1")
	backend.getFunc = func(ctx context.Context) (*Session, error) { return s, nil }
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()
	mgr.Start(context.Background())

	rec := &recorder{}
	mgr.Subscribe(rec.listen)

	// a stale session on a failure event must never be republished
	backend.emit(Event{Type: EventRefreshFailed, Session: s})

	if mgr.Current() != nil {
		t.Error("Expected signed out after refresh failure")
	}
	got := rec.values()
	if len(got) != 2 || got[1] != nil {
		t.Errorf("Expected nil delivery after refresh failure, got %v", got)
	}
}

func TestManager_SignedInWithoutSessionFailsClosed(t *testing.T) {
	backend := newMockBackend()
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()
	mgr.Start(context.Background())

	backend.emit(Event{Type: EventSignedIn})

	if mgr.State() != StateSignedOut {
		t.Errorf("Expected signed_out, got %s", mgr.State())
	}
}

func TestManager_UnknownEventIgnored(t *testing.T) {
	backend := newMockBackend()
	s := testSession("u1")
	backend.getFunc = func(ctx context.Context) (*Session, error) { return s, nil }
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()
	mgr.Start(context.Background())

	backend.emit(Event{Type: "password_recovery"})

	if mgr.Current() != s {
		t.Error("Expected unknown event to leave session untouched")
	}
}

func TestManager_ReleaseStopsDelivery(t *testing.T) {
	backend := newMockBackend()
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()
	mgr.Start(context.Background())

	rec := &recorder{}
	sub := mgr.Subscribe(rec.listen)
	sub.Release()
	sub.Release()

	backend.emit(Event{Type: EventSignedIn, Session: testSession("u1")})

	if len(rec.values()) != 1 {
		t.Errorf("Expected only the initial delivery, got %d", len(rec.values()))
	}
	if mgr.SubscriberCount() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", mgr.SubscriberCount())
	}
}

func TestManager_ReleaseInsideListener(t *testing.T) {
	backend := newMockBackend()
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()
	mgr.Start(context.Background())

	calls := 0
	var sub *Subscription
	sub = mgr.Subscribe(func(s *Session) {
		calls++
		if s != nil {
			sub.Release()
		}
	})
	backend.emit(Event{Type: EventSignedIn, Session: testSession("u1")})
	backend.emit(Event{Type: EventSignedOut})

	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestManager_ListenerPanicDoesNotStopBroadcast(t *testing.T) {
	backend := newMockBackend()
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()
	mgr.Start(context.Background())

	mgr.Subscribe(func(s *Session) {
		if s != nil {
			panic("boom")
		}
	})
	rec := &recorder{}
	mgr.Subscribe(rec.listen)

	s := testSession("u1")
	backend.emit(Event{Type: EventSignedIn, Session: s})

	got := rec.values()
	if len(got) != 2 || got[1] != s {
		t.Errorf("Expected second subscriber to receive session, got %v", got)
	}
}

func TestManager_SignInFailureLeavesStateUnchanged(t *testing.T) {
	backend := newMockBackend()
	backend.signInFunc = func(ctx context.Context, identifier, secret string) error {
		return NewAuthError("sign in", ErrInvalidCredentials, nil)
	}
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()
	mgr.Start(context.Background())

	rec := &recorder{}
	mgr.Subscribe(rec.listen)

	err := mgr.SignIn(context.Background(), "a@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if len(rec.values()) != 1 {
		t.Errorf("Expected no notification after failed sign in, got %d", len(rec.values()))
	}
	if mgr.Current() != nil {
		t.Error("Expected still signed out")
	}
}

func TestManager_SignInSuccessUpdatesViaEvent(t *testing.T) {
	backend := newMockBackend()
	s := testSession("u1")
	backend.signInFunc = func(ctx context.Context, identifier, secret string) error {
		backend.emit(Event{Type: EventSignedIn, Session: s})
		return nil
	}
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()
	mgr.Start(context.Background())

	if err := mgr.SignIn(context.Background(), "u1@example.com", "secret1"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if mgr.Current() != s {
		t.Error("Expected session from sign-in event")
	}
}

func TestManager_TransportErrorsAreClassified(t *testing.T) {
	backend := newMockBackend()
	backend.signUpFunc = func(ctx context.Context, identifier, secret string) error {
		return errors.New("dial tcp: connection refused")
	}
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()

	err := mgr.SignUp(context.Background(), "a@example.com", "secret1")
	if !errors.Is(err, ErrTransport) {
		t.Errorf("Expected ErrTransport, got %v", err)
	}
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Op != "sign up" {
		t.Errorf("Expected AuthError with op 'sign up', got %v", err)
	}
}

func TestManager_SignOutNotifiesOnce(t *testing.T) {
	backend := newMockBackend()
	backend.getFunc = func(ctx context.Context) (*Session, error) { return testSession("u1"), nil }
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()
	mgr.Start(context.Background())

	rec := &recorder{}
	mgr.Subscribe(rec.listen)

	if err := mgr.SignOut(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := mgr.SignOut(context.Background()); err != nil {
		t.Fatalf("Expected second sign out to be a no-op, got %v", err)
	}

	got := rec.values()
	if len(got) != 2 || got[1] != nil {
		t.Errorf("Expected exactly one nil notification, got %v", got)
	}
	if backend.signOutCalls != 1 {
		t.Errorf("Expected 1 backend sign out, got %d", backend.signOutCalls)
	}
}

func TestManager_CloseReleasesEverything(t *testing.T) {
	backend := newMockBackend()
	mgr := NewManager(backend, testLogger())
	mgr.Start(context.Background())

	rec := &recorder{}
	sub := mgr.Subscribe(rec.listen)
	mgr.Close()
	mgr.Close()

	if backend.listenerCount() != 0 {
		t.Errorf("Expected backend listener removed, got %d", backend.listenerCount())
	}
	backend.emit(Event{Type: EventSignedIn, Session: testSession("u1")})
	if len(rec.values()) != 1 {
		t.Errorf("Expected no delivery after Close, got %d", len(rec.values()))
	}
	sub.Release()

	late := &recorder{}
	mgr.Subscribe(late.listen)
	if len(late.values()) != 0 {
		t.Error("Expected subscribe after Close to be inert")
	}
}

func TestManager_ConcurrentReadersDuringEvents(t *testing.T) {
	backend := newMockBackend()
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()
	mgr.Start(context.Background())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					s := mgr.Current()
					if s != nil && s.User.UserID == "" {
						t.Error("Observed a partially built session")
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 100; i++ {
		backend.emit(Event{Type: EventSignedIn, Session: testSession("u1")})
		backend.emit(Event{Type: EventSignedOut})
	}
	close(stop)
	wg.Wait()
}

func TestManager_SignOutFromInitialDelivery(t *testing.T) {
	backend := newMockBackend()
	s := testSession("u1")
	backend.getFunc = func(ctx context.Context) (*Session, error) { return s, nil }
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()
	mgr.Start(context.Background())

	rec := &recorder{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		mgr.Subscribe(func(got *Session) {
			rec.listen(got)
			if got != nil {
				if err := mgr.SignOut(context.Background()); err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
			}
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Subscribe deadlocked when the listener signed out")
	}

	got := rec.values()
	if len(got) != 2 || got[0] != s || got[1] != nil {
		t.Errorf("Expected session then nil, got %v", got)
	}
	if mgr.Current() != nil {
		t.Error("Expected signed out")
	}
}

func TestManager_SubscribeDuringEventsEndsOnCurrent(t *testing.T) {
	backend := newMockBackend()
	mgr := NewManager(backend, testLogger())
	defer mgr.Close()
	mgr.Start(context.Background())

	for i := 0; i < 50; i++ {
		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					backend.emit(Event{Type: EventSignedIn, Session: testSession("u1")})
					backend.emit(Event{Type: EventSignedOut})
				}
			}
		}()

		var mu sync.Mutex
		var inside, overlapped bool
		var last *Session
		var calls int
		sub := mgr.Subscribe(func(s *Session) {
			mu.Lock()
			if inside {
				overlapped = true
			}
			inside = true
			mu.Unlock()

			time.Sleep(time.Microsecond)

			mu.Lock()
			inside = false
			last = s
			calls++
			mu.Unlock()
		})
		close(stop)
		wg.Wait()

		mu.Lock()
		if overlapped {
			t.Fatalf("round %d: listener calls overlapped", i)
		}
		if calls == 0 || last != mgr.Current() {
			t.Fatalf("round %d: expected last delivery to equal Current, got %v want %v", i, last, mgr.Current())
		}
		mu.Unlock()
		sub.Release()
	}
}
