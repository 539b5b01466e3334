package authstate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	authstate "github.com/goliatone/go-auth-state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newServerProvider(t *testing.T, store authstate.IdentityStore, opts ...authstate.ServerOption) (*authstate.ServerStateProvider, *stubScopes, *authstate.PersistentState) {
	t.Helper()
	scopes := &stubScopes{store: store}
	persistence := authstate.NewPersistentState()
	provider := authstate.NewServerStateProvider(scopes, persistence, opts...)
	t.Cleanup(func() { _ = provider.Close() })
	return provider, scopes, persistence
}

func TestServerStateProvider_Revalidate(t *testing.T) {
	tests := []struct {
		name     string
		claims   []authstate.Claim
		setup    func(store *MockIdentityStore)
		expected bool
	}{
		{
			name:   "matching stamp is valid",
			claims: aliceClaims("stamp-1"),
			setup: func(store *MockIdentityStore) {
				store.On("FindUserBySubjectID", mock.Anything, "u1").Return(alice(), nil)
				store.On("SupportsSecurityStamp").Return(true)
				store.On("GetSecurityStamp", mock.Anything, alice()).Return("stamp-1", nil)
			},
			expected: true,
		},
		{
			name:   "stale stamp is invalid",
			claims: aliceClaims("stamp-1"),
			setup: func(store *MockIdentityStore) {
				store.On("FindUserBySubjectID", mock.Anything, "u1").Return(alice(), nil)
				store.On("SupportsSecurityStamp").Return(true)
				store.On("GetSecurityStamp", mock.Anything, alice()).Return("stamp-2", nil)
			},
			expected: false,
		},
		{
			name:   "no stamp support is always valid",
			claims: aliceClaims("anything"),
			setup: func(store *MockIdentityStore) {
				store.On("FindUserBySubjectID", mock.Anything, "u1").Return(alice(), nil)
				store.On("SupportsSecurityStamp").Return(false)
			},
			expected: true,
		},
		{
			name:   "no stamp support ignores missing stamp claim",
			claims: aliceClaims(""),
			setup: func(store *MockIdentityStore) {
				store.On("FindUserBySubjectID", mock.Anything, "u1").Return(alice(), nil)
				store.On("SupportsSecurityStamp").Return(false)
			},
			expected: true,
		},
		{
			name:   "unknown user is invalid",
			claims: aliceClaims("stamp-1"),
			setup: func(store *MockIdentityStore) {
				store.On("FindUserBySubjectID", mock.Anything, "u1").Return(nil, authstate.ErrUserNotFound)
			},
			expected: false,
		},
		{
			name:   "missing stamp claim is invalid",
			claims: aliceClaims(""),
			setup: func(store *MockIdentityStore) {
				store.On("FindUserBySubjectID", mock.Anything, "u1").Return(alice(), nil)
				store.On("SupportsSecurityStamp").Return(true)
			},
			expected: false,
		},
		{
			name:     "missing subject claim is invalid",
			claims:   []authstate.Claim{{Type: "name", Value: "alice"}},
			setup:    func(store *MockIdentityStore) {},
			expected: false,
		},
		{
			name:   "store failure is invalid",
			claims: aliceClaims("stamp-1"),
			setup: func(store *MockIdentityStore) {
				store.On("FindUserBySubjectID", mock.Anything, "u1").Return(nil, errors.New("db down"))
			},
			expected: false,
		},
		{
			name:   "stamp lookup failure is invalid",
			claims: aliceClaims("stamp-1"),
			setup: func(store *MockIdentityStore) {
				store.On("FindUserBySubjectID", mock.Anything, "u1").Return(alice(), nil)
				store.On("SupportsSecurityStamp").Return(true)
				store.On("GetSecurityStamp", mock.Anything, alice()).Return("", errors.New("db down"))
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockIdentityStore{}
			tt.setup(store)

			provider, scopes, _ := newServerProvider(t, store)
			state := authstate.AuthenticationState{Principal: principalWith("session", tt.claims...)}

			assert.Equal(t, tt.expected, provider.Revalidate(context.Background(), state))
			store.AssertExpectations(t)

			opened, closed := scopes.counts()
			assert.Equal(t, 1, opened)
			assert.Equal(t, 1, closed)
		})
	}
}

func TestServerStateProvider_RevalidateUsesFreshScope(t *testing.T) {
	store := &MockIdentityStore{}
	store.On("FindUserBySubjectID", mock.Anything, "u1").Return(alice(), nil)
	store.On("SupportsSecurityStamp").Return(false)

	provider, scopes, _ := newServerProvider(t, store)
	state := authstate.AuthenticationState{Principal: principalWith("session", aliceClaims("")...)}

	for i := 0; i < 3; i++ {
		require.True(t, provider.Revalidate(context.Background(), state))
	}

	opened, closed := scopes.counts()
	assert.Equal(t, 3, opened)
	assert.Equal(t, 3, closed)
}

func TestServerStateProvider_RevalidateScopeFailure(t *testing.T) {
	recorder := &activityRecorder{}
	scopes := &stubScopes{err: errors.New("pool exhausted")}
	provider := authstate.NewServerStateProvider(scopes, authstate.NewPersistentState(),
		authstate.WithServerActivitySink(recorder),
	)
	defer provider.Close()

	state := authstate.AuthenticationState{Principal: principalWith("session", aliceClaims("s")...)}
	assert.False(t, provider.Revalidate(context.Background(), state))
	assert.Equal(t, []authstate.ActivityEventType{authstate.ActivityEventRevalidationError}, recorder.types())
}

func TestServerStateProvider_RevalidateRecordsRejection(t *testing.T) {
	store := &MockIdentityStore{}
	store.On("FindUserBySubjectID", mock.Anything, "u1").Return(alice(), nil)
	store.On("SupportsSecurityStamp").Return(true)
	store.On("GetSecurityStamp", mock.Anything, alice()).Return("new", nil)

	recorder := &activityRecorder{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	provider, _, _ := newServerProvider(t, store,
		authstate.WithServerActivitySink(recorder),
		authstate.WithServerClock(func() time.Time { return now }),
	)

	state := authstate.AuthenticationState{Principal: principalWith("session", aliceClaims("old")...)}
	require.False(t, provider.Revalidate(context.Background(), state))

	require.Len(t, recorder.events, 1)
	event := recorder.events[0]
	assert.Equal(t, authstate.ActivityEventRevalidationRejected, event.EventType)
	assert.Equal(t, "u1", event.SubjectID)
	assert.Equal(t, "security_stamp_mismatch", event.Reason)
	assert.Equal(t, now, event.OccurredAt)
}

func TestServerStateProvider_PersistBeforeStatePanics(t *testing.T) {
	_, _, persistence := newServerProvider(t, &MockIdentityStore{})

	assert.PanicsWithValue(t, authstate.ErrStateNotProduced, func() {
		_, _ = persistence.Persist(context.Background())
	})
}

func TestServerStateProvider_PersistAnonymousWritesNothing(t *testing.T) {
	store := &MockIdentityStore{}
	provider, scopes, persistence := newServerProvider(t, store)

	provider.SetAuthenticationState(authstate.CompletedState(authstate.AnonymousState()))

	payload, err := persistence.Persist(context.Background())
	require.NoError(t, err)
	assert.Empty(t, payload)

	restored, err := authstate.RestorePersistentState(payload)
	require.NoError(t, err)

	var snapshot authstate.UserSnapshot
	found, err := restored.TryTakeFromJSON(authstate.SnapshotKey, &snapshot)
	require.NoError(t, err)
	assert.False(t, found)

	opened, _ := scopes.counts()
	assert.Zero(t, opened)
	store.AssertNotCalled(t, "FindUserBySubjectID", mock.Anything, mock.Anything)
}

func TestServerStateProvider_PersistWritesSnapshot(t *testing.T) {
	store := &MockIdentityStore{}
	store.On("FindUserBySubjectID", mock.Anything, "u1").Return(alice(), nil)
	store.On("GetRoles", mock.Anything, alice()).Return([]string{"Admin", "Editor"}, nil)

	recorder := &activityRecorder{}
	registrar := newRecordingRegistrar()
	provider := authstate.NewServerStateProvider(&stubScopes{store: store}, registrar,
		authstate.WithServerActivitySink(recorder),
	)
	defer provider.Close()

	provider.SetAuthenticationState(authstate.CompletedState(authstate.AuthenticationState{
		Principal: principalWith("session", aliceClaims("stamp")...),
	}))

	require.NoError(t, registrar.persist(context.Background()))

	written, ok := registrar.writes[authstate.SnapshotKey].(*authstate.UserSnapshot)
	require.True(t, ok)
	assert.Equal(t, &authstate.UserSnapshot{
		ID:        "u1",
		UserName:  "alice",
		Email:     "a@x.io",
		FirstName: "Alice",
		LastName:  "Liddell",
		Roles:     []string{"Admin", "Editor"},
	}, written)
	assert.Equal(t, []authstate.ActivityEventType{authstate.ActivityEventSnapshotPersisted}, recorder.types())
}

func TestServerStateProvider_PersistUsesLatestState(t *testing.T) {
	store := &MockIdentityStore{}
	store.On("FindUserBySubjectID", mock.Anything, "u1").Return(alice(), nil)
	store.On("GetRoles", mock.Anything, alice()).Return([]string(nil), nil)

	registrar := newRecordingRegistrar()
	provider := authstate.NewServerStateProvider(&stubScopes{store: store}, registrar)
	defer provider.Close()

	provider.SetAuthenticationState(authstate.CompletedState(authstate.AnonymousState()))
	provider.SetAuthenticationState(authstate.CompletedState(authstate.AuthenticationState{
		Principal: principalWith("session", aliceClaims("")...),
	}))

	require.NoError(t, registrar.persist(context.Background()))

	written := registrar.writes[authstate.SnapshotKey].(*authstate.UserSnapshot)
	assert.Equal(t, "u1", written.ID)
	assert.Nil(t, written.Roles)
}

func TestServerStateProvider_PersistAwaitsPendingState(t *testing.T) {
	store := &MockIdentityStore{}
	store.On("FindUserBySubjectID", mock.Anything, "u1").Return(alice(), nil)
	store.On("GetRoles", mock.Anything, alice()).Return([]string{"Admin"}, nil)

	registrar := newRecordingRegistrar()
	provider := authstate.NewServerStateProvider(&stubScopes{store: store}, registrar)
	defer provider.Close()

	task := authstate.NewStateTask()
	provider.SetAuthenticationState(task)

	go func() {
		time.Sleep(10 * time.Millisecond)
		task.Resolve(authstate.AuthenticationState{Principal: principalWith("session", aliceClaims("")...)}, nil)
	}()

	require.NoError(t, registrar.persist(context.Background()))
	assert.Contains(t, registrar.writes, authstate.SnapshotKey)
}

func TestServerStateProvider_PersistSoftFailures(t *testing.T) {
	types := authstate.DefaultClaimTypes()

	tests := []struct {
		name   string
		claims []authstate.Claim
		setup  func(store *MockIdentityStore)
	}{
		{
			name: "missing email claim",
			claims: []authstate.Claim{
				types.Claim(authstate.ClaimSubjectID, "u1"),
				types.Claim(authstate.ClaimUserName, "alice"),
			},
			setup: func(store *MockIdentityStore) {},
		},
		{
			name: "missing subject claim",
			claims: []authstate.Claim{
				types.Claim(authstate.ClaimUserName, "alice"),
				types.Claim(authstate.ClaimEmail, "a@x.io"),
			},
			setup: func(store *MockIdentityStore) {},
		},
		{
			name:   "user removed since sign in",
			claims: aliceClaims(""),
			setup: func(store *MockIdentityStore) {
				store.On("FindUserBySubjectID", mock.Anything, "u1").Return(nil, authstate.ErrUserNotFound)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockIdentityStore{}
			tt.setup(store)

			recorder := &activityRecorder{}
			provider, _, persistence := newServerProvider(t, store, authstate.WithServerActivitySink(recorder))
			provider.SetAuthenticationState(authstate.CompletedState(authstate.AuthenticationState{
				Principal: principalWith("session", tt.claims...),
			}))

			payload, err := persistence.Persist(context.Background())
			require.NoError(t, err)
			assert.Empty(t, payload)
			assert.Equal(t, []authstate.ActivityEventType{authstate.ActivityEventSnapshotSkipped}, recorder.types())
			store.AssertExpectations(t)
		})
	}
}

func TestServerStateProvider_PersistHardFailurePropagates(t *testing.T) {
	storeErr := errors.New("roles table missing")
	store := &MockIdentityStore{}
	store.On("FindUserBySubjectID", mock.Anything, "u1").Return(alice(), nil)
	store.On("GetRoles", mock.Anything, alice()).Return(nil, storeErr)

	recorder := &activityRecorder{}
	provider, _, persistence := newServerProvider(t, store, authstate.WithServerActivitySink(recorder))
	provider.SetAuthenticationState(authstate.CompletedState(authstate.AuthenticationState{
		Principal: principalWith("session", aliceClaims("")...),
	}))

	_, err := persistence.Persist(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.False(t, authstate.IsSoftPersistError(err))
	assert.Equal(t, []authstate.ActivityEventType{authstate.ActivityEventSnapshotFailed}, recorder.types())
}

func TestServerStateProvider_PersistTransportFailurePropagates(t *testing.T) {
	store := &MockIdentityStore{}
	store.On("FindUserBySubjectID", mock.Anything, "u1").Return(alice(), nil)
	store.On("GetRoles", mock.Anything, alice()).Return([]string{"Admin"}, nil)

	registrar := newRecordingRegistrar()
	registrar.err = authstate.ErrDuplicateStateKey
	provider := authstate.NewServerStateProvider(&stubScopes{store: store}, registrar)
	defer provider.Close()

	provider.SetAuthenticationState(authstate.CompletedState(authstate.AuthenticationState{
		Principal: principalWith("session", aliceClaims("")...),
	}))

	err := registrar.persist(context.Background())
	assert.ErrorIs(t, err, authstate.ErrDuplicateStateKey)
}

func TestServerStateProvider_CloseIsIdempotent(t *testing.T) {
	persistence := authstate.NewPersistentState()
	provider := authstate.NewServerStateProvider(&stubScopes{}, persistence)
	require.Equal(t, 1, persistence.Callbacks())

	assert.NotPanics(t, func() {
		assert.NoError(t, provider.Close())
		assert.NoError(t, provider.Close())
	})
	assert.Zero(t, persistence.Callbacks())

	other := persistence.RegisterOnPersisting(func(context.Context) error { return nil })
	defer other.Close()
	require.NoError(t, provider.Close())
	assert.Equal(t, 1, persistence.Callbacks())
}

func TestServerStateProvider_CloseStopsTrackingState(t *testing.T) {
	provider := authstate.NewServerStateProvider(&stubScopes{}, authstate.NewPersistentState())
	signedIn := authstate.AuthenticationState{Principal: principalWith("session", aliceClaims("")...)}

	provider.SetAuthenticationState(authstate.CompletedState(signedIn))
	require.NoError(t, provider.Close())
	provider.SetAuthenticationState(authstate.CompletedState(authstate.AnonymousState()))

	state, err := provider.GetAuthenticationState(context.Background())
	require.NoError(t, err)
	assert.True(t, state.IsAuthenticated())
}

func TestServerStateProvider_GetAuthenticationState(t *testing.T) {
	provider, _, _ := newServerProvider(t, &MockIdentityStore{})

	_, err := provider.GetAuthenticationState(context.Background())
	assert.ErrorIs(t, err, authstate.ErrStateNotProduced)

	var observed []bool
	unsubscribe := provider.OnAuthenticationStateChanged(func(task *authstate.StateTask) {
		state, _ := task.Await(context.Background())
		observed = append(observed, state.IsAuthenticated())
	})
	defer unsubscribe()

	provider.SetAuthenticationState(authstate.CompletedState(authstate.AuthenticationState{
		Principal: principalWith("session", aliceClaims("")...),
	}))
	provider.SetAuthenticationState(nil)

	state, err := provider.GetAuthenticationState(context.Background())
	require.NoError(t, err)
	assert.False(t, state.IsAuthenticated())
	assert.Equal(t, []bool{true, false}, observed)
}

func TestServerStateProvider_Options(t *testing.T) {
	provider, _, _ := newServerProvider(t, &MockIdentityStore{},
		authstate.WithRevalidationInterval(time.Minute),
		authstate.WithClaimTypes(authstate.ClaimTypes{SubjectID: "uid"}),
	)

	assert.Equal(t, time.Minute, provider.RevalidationInterval())
	assert.Equal(t, "uid", provider.ClaimTypes().SubjectID)
	assert.Equal(t, authstate.DefaultEmailClaimType, provider.ClaimTypes().Email)

	defaults, _, _ := newServerProvider(t, &MockIdentityStore{}, authstate.WithRevalidationInterval(0))
	assert.Equal(t, authstate.DefaultRevalidationInterval, defaults.RevalidationInterval())
}
