package store

import (
	"context"
	"sync"

	authstate "github.com/goliatone/go-auth-state"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// ScopeFactory opens one dedicated connection per scope, so reads never
// come from a handle shared with a previous revalidation.
type ScopeFactory struct {
	db            *bun.DB
	users         Users
	stampsEnabled bool
	logger        authstate.Logger
	provider      authstate.LoggerProvider
}

var _ authstate.ScopeFactory = (*ScopeFactory)(nil)

func NewScopeFactory(db *bun.DB, users Users) *ScopeFactory {
	if users == nil {
		users = NewUsersRepository(db)
	}
	provider, logger := authstate.ResolveLogger("authstate.store", nil, nil)
	return &ScopeFactory{
		db:            db,
		users:         users,
		stampsEnabled: true,
		logger:        logger,
		provider:      provider,
	}
}

// WithSecurityStampSupport is applied to the UserManager of every scope
func (f *ScopeFactory) WithSecurityStampSupport(enabled bool) *ScopeFactory {
	f.stampsEnabled = enabled
	return f
}

func (f *ScopeFactory) WithLogger(logger authstate.Logger) *ScopeFactory {
	f.provider, f.logger = authstate.ResolveLogger("authstate.store", f.provider, logger)
	return f
}

func (f *ScopeFactory) WithLoggerProvider(provider authstate.LoggerProvider) *ScopeFactory {
	f.provider, f.logger = authstate.ResolveLogger("authstate.store", provider, f.logger)
	return f
}

func (f *ScopeFactory) CreateScope(ctx context.Context) (authstate.Scope, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	conn, err := f.db.Conn(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to acquire identity store connection")
	}

	s := &scope{conn: conn}
	s.store = NewUserManager(&s.conn, f.users).
		WithSecurityStampSupport(f.stampsEnabled).
		WithLoggerProvider(f.provider)

	return s, nil
}

type scope struct {
	conn  bun.Conn
	store *UserManager
	once  sync.Once
	err   error
}

func (s *scope) IdentityStore() authstate.IdentityStore {
	return s.store
}

func (s *scope) Close() error {
	s.once.Do(func() {
		s.err = s.conn.Close()
	})
	return s.err
}
