package authstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultRevalidationInterval is how often a signed in principal is checked
const DefaultRevalidationInterval = 30 * time.Minute

// ServerStateProvider supplies the server side authentication state,
// revalidates it against the identity store and persists a user
// snapshot for the client render.
type ServerStateProvider struct {
	scopes      ScopeFactory
	persistence PersistenceRegistrar
	claimTypes  ClaimTypes
	interval    time.Duration
	now         func() time.Time

	notifier     *StateNotifier
	mailbox      Mailbox[*StateTask]
	unsubscribe  func()
	subscription PersistingSubscription
	closeOnce    sync.Once

	activity ActivitySink
	logger   Logger
	provider LoggerProvider
}

// ServerOption customizes a ServerStateProvider
type ServerOption func(*ServerStateProvider)

// WithClaimTypes sets the claim type table
func WithClaimTypes(types ClaimTypes) ServerOption {
	return func(p *ServerStateProvider) {
		p.claimTypes = types.WithDefaults()
	}
}

// WithRevalidationInterval overrides DefaultRevalidationInterval
func WithRevalidationInterval(interval time.Duration) ServerOption {
	return func(p *ServerStateProvider) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithServerLogger sets the logger
func WithServerLogger(logger Logger) ServerOption {
	return func(p *ServerStateProvider) {
		p.provider, p.logger = ResolveLogger("authstate.server", p.provider, logger)
	}
}

// WithServerLoggerProvider sets the logger provider
func WithServerLoggerProvider(provider LoggerProvider) ServerOption {
	return func(p *ServerStateProvider) {
		p.provider, p.logger = ResolveLogger("authstate.server", provider, p.logger)
	}
}

// WithServerActivitySink sets the sink for revalidation and persistence events
func WithServerActivitySink(sink ActivitySink) ServerOption {
	return func(p *ServerStateProvider) {
		p.activity = normalizeActivitySink(sink)
	}
}

// WithServerClock injects a clock, useful for tests
func WithServerClock(now func() time.Time) ServerOption {
	return func(p *ServerStateProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// NewServerStateProvider subscribes to its own state changes and registers
// the persisting callback on persistence. Call Close to remove both.
func NewServerStateProvider(scopes ScopeFactory, persistence PersistenceRegistrar, opts ...ServerOption) *ServerStateProvider {
	provider, logger := ResolveLogger("authstate.server", nil, nil)
	p := &ServerStateProvider{
		scopes:      scopes,
		persistence: persistence,
		claimTypes:  DefaultClaimTypes(),
		interval:    DefaultRevalidationInterval,
		now:         time.Now,
		notifier:    NewStateNotifier(),
		activity:    noopActivitySink{},
		logger:      logger,
		provider:    provider,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	p.unsubscribe = p.notifier.Subscribe(p.onAuthenticationStateChanged)
	if persistence != nil {
		p.subscription = persistence.RegisterOnPersisting(p.onPersisting)
	}

	return p
}

// RevalidationInterval returns the interval used by RunRevalidation
func (p *ServerStateProvider) RevalidationInterval() time.Duration {
	return p.interval
}

// ClaimTypes returns the claim type table in use
func (p *ServerStateProvider) ClaimTypes() ClaimTypes {
	return p.claimTypes
}

// SetAuthenticationState publishes a new state to every subscriber
func (p *ServerStateProvider) SetAuthenticationState(task *StateTask) {
	if task == nil {
		task = CompletedState(AnonymousState())
	}
	p.notifier.Publish(task)
}

// OnAuthenticationStateChanged subscribes fn to state changes
func (p *ServerStateProvider) OnAuthenticationStateChanged(fn StateChangedHandler) func() {
	return p.notifier.Subscribe(fn)
}

// GetAuthenticationState awaits the latest published state
func (p *ServerStateProvider) GetAuthenticationState(ctx context.Context) (AuthenticationState, error) {
	task, ok := p.mailbox.Peek()
	if !ok {
		return AuthenticationState{}, ErrStateNotProduced
	}
	return task.Await(ctx)
}

func (p *ServerStateProvider) onAuthenticationStateChanged(task *StateTask) {
	p.mailbox.Post(task)
}

// Revalidate reports whether state is still valid. Every call uses a new
// scope. Failures are reported as false, never as errors.
func (p *ServerStateProvider) Revalidate(ctx context.Context, state AuthenticationState) bool {
	subject, _ := p.claimTypes.SubjectIDOf(state.Principal)

	scope, err := p.scopes.CreateScope(ctx)
	if err != nil {
		p.logger.Error("revalidation create scope", "error", err)
		p.record(ctx, ActivityEvent{
			EventType: ActivityEventRevalidationError,
			SubjectID: subject,
			Reason:    "scope",
			Err:       err,
		})
		return false
	}
	defer p.closeScope(scope)

	valid, reason, err := p.validateSecurityStamp(ctx, scope.IdentityStore(), state.Principal)
	switch {
	case err != nil:
		p.logger.Error("revalidation identity lookup", "error", err, "subject", subject)
		p.record(ctx, ActivityEvent{
			EventType: ActivityEventRevalidationError,
			SubjectID: subject,
			Reason:    reason,
			Err:       err,
		})
	case !valid:
		p.logger.Info("revalidation rejected authentication state", "subject", subject, "reason", reason)
		p.record(ctx, ActivityEvent{
			EventType: ActivityEventRevalidationRejected,
			SubjectID: subject,
			Reason:    reason,
		})
	}

	return valid
}

func (p *ServerStateProvider) validateSecurityStamp(ctx context.Context, store IdentityStore, principal *Principal) (bool, string, error) {
	subject, ok := p.claimTypes.SubjectIDOf(principal)
	if !ok || subject == "" {
		return false, "missing_subject", nil
	}

	account, err := store.FindUserBySubjectID(ctx, subject)
	if err != nil {
		if goerrors.Is(err, ErrUserNotFound) {
			return false, "user_not_found", nil
		}
		return false, "find_user", err
	}

	if account == nil {
		return false, "user_not_found", nil
	}

	if !store.SupportsSecurityStamp() {
		return true, "", nil
	}

	principalStamp, ok := p.claimTypes.SecurityStampOf(principal)
	if !ok {
		return false, "missing_security_stamp", nil
	}

	userStamp, err := store.GetSecurityStamp(ctx, account)
	if err != nil {
		return false, "security_stamp", err
	}

	if principalStamp != userStamp {
		return false, "security_stamp_mismatch", nil
	}

	return true, "", nil
}

// onPersisting writes the user snapshot. Missing claims and users that
// are gone skip persistence, every other failure is logged, recorded and
// returned to the transport.
func (p *ServerStateProvider) onPersisting(ctx context.Context) error {
	task, ok := p.mailbox.Peek()
	if !ok {
		panic(ErrStateNotProduced)
	}

	state, err := task.Await(ctx)
	if err != nil {
		return p.persistFailed(ctx, "", goerrors.Wrap(err, goerrors.CategoryOperation, "failed to await authentication state"))
	}

	if !state.IsAuthenticated() {
		p.logger.Debug("persisting skipped for anonymous principal")
		return nil
	}

	snapshot, err := p.buildSnapshot(ctx, state.Principal)
	if err != nil {
		subject, _ := p.claimTypes.SubjectIDOf(state.Principal)
		if IsSoftPersistError(err) {
			p.logger.Warn("persisting skipped", "error", err, "subject", subject)
			p.record(ctx, ActivityEvent{
				EventType: ActivityEventSnapshotSkipped,
				SubjectID: subject,
				Reason:    err.Error(),
			})
			return nil
		}
		return p.persistFailed(ctx, subject, err)
	}

	if err := p.persistence.PersistAsJSON(SnapshotKey, snapshot); err != nil {
		return p.persistFailed(ctx, snapshot.ID, err)
	}

	p.record(ctx, ActivityEvent{
		EventType: ActivityEventSnapshotPersisted,
		SubjectID: snapshot.ID,
		Metadata:  map[string]any{"roles": len(snapshot.Roles)},
	})

	return nil
}

func (p *ServerStateProvider) buildSnapshot(ctx context.Context, principal *Principal) (*UserSnapshot, error) {
	values, err := p.claimTypes.Require(principal, ClaimSubjectID, ClaimUserName, ClaimEmail)
	if err != nil {
		return nil, err
	}

	snapshot := &UserSnapshot{
		ID:       values[0],
		UserName: values[1],
		Email:    values[2],
	}

	scope, err := p.scopes.CreateScope(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create identity scope")
	}
	defer p.closeScope(scope)

	store := scope.IdentityStore()
	account, err := store.FindUserBySubjectID(ctx, snapshot.ID)
	if err != nil {
		if goerrors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, snapshot.ID)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve user for snapshot")
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, snapshot.ID)
	}

	snapshot.FirstName = account.FirstName()
	snapshot.LastName = account.LastName()

	roles, err := store.GetRoles(ctx, account)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve user roles for snapshot")
	}
	if len(roles) > 0 {
		snapshot.Roles = append([]string(nil), roles...)
	}

	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	return snapshot, nil
}

func (p *ServerStateProvider) persistFailed(ctx context.Context, subject string, err error) error {
	p.logger.Error("persisting user snapshot", "error", err, "subject", subject)
	p.record(ctx, ActivityEvent{
		EventType: ActivityEventSnapshotFailed,
		SubjectID: subject,
		Err:       err,
	})
	return err
}

func (p *ServerStateProvider) closeScope(scope Scope) {
	if err := scope.Close(); err != nil {
		p.logger.Warn("close identity scope", "error", err)
	}
}

func (p *ServerStateProvider) record(ctx context.Context, event ActivityEvent) {
	recordActivity(ctx, p.activity, p.logger, p.now, event)
}

// Close removes the state changed subscription and the persisting
// callback. Calls after the first are no-ops.
func (p *ServerStateProvider) Close() error {
	p.closeOnce.Do(func() {
		if p.unsubscribe != nil {
			p.unsubscribe()
		}
		if p.subscription != nil {
			p.subscription.Close()
		}
	})
	return nil
}
