package store

import (
	"context"
	"fmt"

	authstate "github.com/goliatone/go-auth-state"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserManager implements authstate.IdentityStore on top of the Users
// repository. Every query runs on db, which is usually a scope connection.
type UserManager struct {
	db            bun.IDB
	users         Users
	stampsEnabled bool
	logger        authstate.Logger
	provider      authstate.LoggerProvider
}

var _ authstate.IdentityStore = (*UserManager)(nil)

// NewUserManager returns a manager with security stamp support enabled
func NewUserManager(db bun.IDB, users Users) *UserManager {
	provider, logger := authstate.ResolveLogger("authstate.store", nil, nil)
	return &UserManager{
		db:            db,
		users:         users,
		stampsEnabled: true,
		logger:        logger,
		provider:      provider,
	}
}

// WithSecurityStampSupport toggles security stamp validation
func (m *UserManager) WithSecurityStampSupport(enabled bool) *UserManager {
	m.stampsEnabled = enabled
	return m
}

func (m *UserManager) WithLogger(logger authstate.Logger) *UserManager {
	m.provider, m.logger = authstate.ResolveLogger("authstate.store", m.provider, logger)
	return m
}

func (m *UserManager) WithLoggerProvider(provider authstate.LoggerProvider) *UserManager {
	m.provider, m.logger = authstate.ResolveLogger("authstate.store", provider, m.logger)
	return m
}

// FindUserBySubjectID returns authstate.ErrUserNotFound when subjectID is
// not a user id or no such user exists
func (m *UserManager) FindUserBySubjectID(ctx context.Context, subjectID string) (authstate.Account, error) {
	id, err := uuid.Parse(subjectID)
	if err != nil {
		m.logger.Debug("subject is not a user id", "subject", subjectID)
		return nil, fmt.Errorf("%w: %s", authstate.ErrUserNotFound, subjectID)
	}

	user, err := m.users.FindByIDTx(ctx, m.db, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, fmt.Errorf("%w: %s", authstate.ErrUserNotFound, subjectID)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to find user by subject").
			WithMetadata(map[string]any{"subject": subjectID})
	}

	return NewAccountFromUser(user), nil
}

func (m *UserManager) SupportsSecurityStamp() bool {
	return m.stampsEnabled
}

// GetSecurityStamp returns the stamp loaded with account, or reads it
// when account was not loaded by this store
func (m *UserManager) GetSecurityStamp(ctx context.Context, account authstate.Account) (string, error) {
	user, err := m.resolveUser(ctx, account)
	if err != nil {
		return "", err
	}
	return user.SecurityStamp, nil
}

func (m *UserManager) GetRoles(ctx context.Context, account authstate.Account) ([]string, error) {
	id, err := accountID(account)
	if err != nil {
		return nil, err
	}

	roles, err := m.users.RolesTx(ctx, m.db, id)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user roles").
			WithMetadata(map[string]any{"user_id": id.String()})
	}
	return roles, nil
}

func (m *UserManager) resolveUser(ctx context.Context, account authstate.Account) (*User, error) {
	if ua, ok := account.(UserAccount); ok && ua.user != nil {
		return ua.user, nil
	}

	id, err := accountID(account)
	if err != nil {
		return nil, err
	}

	user, err := m.users.FindByIDTx(ctx, m.db, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, fmt.Errorf("%w: %s", authstate.ErrUserNotFound, id)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user")
	}
	return user, nil
}

func accountID(account authstate.Account) (uuid.UUID, error) {
	if account == nil {
		return uuid.Nil, goerrors.New("account is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	id, err := uuid.Parse(account.ID())
	if err != nil {
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "account id is not a valid uuid")
	}
	return id, nil
}
