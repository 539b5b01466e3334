package authstate

import (
	"context"
	"time"
)

// ClientStateProvider exposes the principal rebuilt from the snapshot the
// server render persisted. It never revalidates.
type ClientStateProvider struct {
	state      AuthenticationState
	task       *StateTask
	claimTypes ClaimTypes
	activity   ActivitySink
	now        func() time.Time
	logger     Logger
	provider   LoggerProvider
}

// ClientOption customizes a ClientStateProvider
type ClientOption func(*ClientStateProvider)

// WithClientClaimTypes sets the claim type table
func WithClientClaimTypes(types ClaimTypes) ClientOption {
	return func(c *ClientStateProvider) {
		c.claimTypes = types.WithDefaults()
	}
}

// WithClientLogger sets the logger
func WithClientLogger(logger Logger) ClientOption {
	return func(c *ClientStateProvider) {
		c.provider, c.logger = ResolveLogger("authstate.client", c.provider, logger)
	}
}

// WithClientLoggerProvider sets the logger provider
func WithClientLoggerProvider(provider LoggerProvider) ClientOption {
	return func(c *ClientStateProvider) {
		c.provider, c.logger = ResolveLogger("authstate.client", provider, c.logger)
	}
}

// WithClientActivitySink sets the sink notified when a snapshot is restored
func WithClientActivitySink(sink ActivitySink) ClientOption {
	return func(c *ClientStateProvider) {
		c.activity = normalizeActivitySink(sink)
	}
}

var anonymousClientState = AnonymousState()

// NewClientStateProvider takes the persisted snapshot from source, if any,
// and builds the principal from it. A missing or unreadable snapshot
// yields the anonymous state.
func NewClientStateProvider(source SnapshotSource, opts ...ClientOption) *ClientStateProvider {
	provider, logger := ResolveLogger("authstate.client", nil, nil)
	c := &ClientStateProvider{
		state:      anonymousClientState,
		claimTypes: DefaultClaimTypes(),
		activity:   noopActivitySink{},
		now:        time.Now,
		logger:     logger,
		provider:   provider,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if snapshot, ok := c.takeSnapshot(source); ok {
		c.state = AuthenticationState{Principal: snapshot.Principal(c.claimTypes)}
		recordActivity(context.Background(), c.activity, c.logger, c.now, ActivityEvent{
			EventType: ActivityEventSnapshotRestored,
			SubjectID: snapshot.ID,
			Metadata:  map[string]any{"roles": len(snapshot.Roles)},
		})
	}

	c.task = CompletedState(c.state)
	return c
}

func (c *ClientStateProvider) takeSnapshot(source SnapshotSource) (*UserSnapshot, bool) {
	if source == nil {
		return nil, false
	}

	snapshot := &UserSnapshot{}
	found, err := source.TryTakeFromJSON(SnapshotKey, snapshot)
	if err != nil {
		c.logger.Warn("failed to read persisted user snapshot", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	// decoded values are used as is, the writer validated them
	return snapshot, true
}

// GetAuthenticationState returns the state built at construction
func (c *ClientStateProvider) GetAuthenticationState(ctx context.Context) (AuthenticationState, error) {
	return c.task.Await(ctx)
}

// Principal returns the client principal
func (c *ClientStateProvider) Principal() *Principal {
	return c.state.Principal
}

// State returns the authentication state without waiting
func (c *ClientStateProvider) State() AuthenticationState {
	return c.state
}
