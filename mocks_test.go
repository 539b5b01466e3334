package authstate_test

import (
	"context"
	"sync"

	authstate "github.com/goliatone/go-auth-state"
	"github.com/stretchr/testify/mock"
)

// MockIdentityStore implements authstate.IdentityStore
type MockIdentityStore struct {
	mock.Mock
}

func (m *MockIdentityStore) FindUserBySubjectID(ctx context.Context, subjectID string) (authstate.Account, error) {
	args := m.Called(ctx, subjectID)
	account, _ := args.Get(0).(authstate.Account)
	return account, args.Error(1)
}

func (m *MockIdentityStore) SupportsSecurityStamp() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockIdentityStore) GetSecurityStamp(ctx context.Context, account authstate.Account) (string, error) {
	args := m.Called(ctx, account)
	return args.String(0), args.Error(1)
}

func (m *MockIdentityStore) GetRoles(ctx context.Context, account authstate.Account) ([]string, error) {
	args := m.Called(ctx, account)
	roles, _ := args.Get(0).([]string)
	return roles, args.Error(1)
}

// stubScopes hands out scopes over one store and counts them
type stubScopes struct {
	mu     sync.Mutex
	store  authstate.IdentityStore
	err    error
	opened int
	closed int
}

func (s *stubScopes) CreateScope(context.Context) (authstate.Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.opened++
	return &stubScope{parent: s}, nil
}

func (s *stubScopes) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.closed
}

type stubScope struct {
	parent *stubScopes
}

func (s *stubScope) IdentityStore() authstate.IdentityStore {
	return s.parent.store
}

func (s *stubScope) Close() error {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	s.parent.closed++
	return nil
}

type testAccount struct {
	id, userName, email, firstName, lastName string
}

func (a testAccount) ID() string        { return a.id }
func (a testAccount) UserName() string  { return a.userName }
func (a testAccount) Email() string     { return a.email }
func (a testAccount) FirstName() string { return a.firstName }
func (a testAccount) LastName() string  { return a.lastName }

// activityRecorder collects activity events
type activityRecorder struct {
	mu     sync.Mutex
	events []authstate.ActivityEvent
}

func (r *activityRecorder) Record(_ context.Context, event authstate.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *activityRecorder) types() []authstate.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]authstate.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

// recordingRegistrar captures writes without a persisting window
type recordingRegistrar struct {
	callbacks []authstate.PersistingCallback
	writes    map[string]any
	err       error
}

func newRecordingRegistrar() *recordingRegistrar {
	return &recordingRegistrar{writes: map[string]any{}}
}

func (r *recordingRegistrar) RegisterOnPersisting(cb authstate.PersistingCallback) authstate.PersistingSubscription {
	r.callbacks = append(r.callbacks, cb)
	return noopSubscription{}
}

func (r *recordingRegistrar) PersistAsJSON(key string, value any) error {
	if r.err != nil {
		return r.err
	}
	r.writes[key] = value
	return nil
}

func (r *recordingRegistrar) persist(ctx context.Context) error {
	for _, cb := range r.callbacks {
		if err := cb(ctx); err != nil {
			return err
		}
	}
	return nil
}

type noopSubscription struct{}

func (noopSubscription) Close() {}

func principalWith(authType string, claims ...authstate.Claim) *authstate.Principal {
	return authstate.NewPrincipal(authstate.NewClaimsIdentity(authType, claims...))
}

func aliceClaims(stamp string) []authstate.Claim {
	types := authstate.DefaultClaimTypes()
	claims := []authstate.Claim{
		types.Claim(authstate.ClaimSubjectID, "u1"),
		types.Claim(authstate.ClaimUserName, "alice"),
		types.Claim(authstate.ClaimEmail, "a@x.io"),
	}
	if stamp != "" {
		claims = append(claims, types.Claim(authstate.ClaimSecurityStamp, stamp))
	}
	return claims
}

func alice() testAccount {
	return testAccount{id: "u1", userName: "alice", email: "a@x.io", firstName: "Alice", lastName: "Liddell"}
}
