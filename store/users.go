package store

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the user repository. Lookups take a bun.IDB so they can run on
// a scope connection or inside a transaction.
type Users interface {
	repository.Repository[*User]

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error)
	GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	UpdateProfileTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)

	RotateSecurityStamp(ctx context.Context, id uuid.UUID) (string, error)
	RotateSecurityStampTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (string, error)

	RolesTx(ctx context.Context, tx bun.IDB, id uuid.UUID) ([]string, error)
	SetRolesTx(ctx context.Context, tx bun.IDB, id uuid.UUID, roles []string) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.CreateTx(ctx, tx, user)
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

// GetByIdentifierTx resolves identifier as an id, an email or a username,
// in that order
func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	options := resolveUserIdentifier(identifier)

	for _, opt := range options {
		record := &User{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *users) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id.String(),
				})
		}
		return nil, err
	}
	return record, nil
}

// UpdateProfileTx updates the non empty profile fields of record
func (a *users) UpdateProfileTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	now := time.Now().UTC()
	update := &User{
		ID:        record.ID,
		Username:  record.Username,
		Email:     record.Email,
		FirstName: record.FirstName,
		LastName:  record.LastName,
		UpdatedAt: &now,
	}
	return a.Repository.UpdateTx(ctx, tx, update,
		repository.UpdateByID(record.ID.String()),
		repository.UpdateSkipZeroValues(),
	)
}

func (a *users) RotateSecurityStamp(ctx context.Context, id uuid.UUID) (string, error) {
	return a.RotateSecurityStampTx(ctx, a.db, id)
}

// RotateSecurityStampTx stores a new stamp, invalidating every session
// that carries the old one
func (a *users) RotateSecurityStampTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (string, error) {
	stamp := NewSecurityStamp()
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("security_stamp = ?", stamp).
		Set("updated_at = ?", time.Now().UTC()).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return "", err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return stamp, nil
}

func (a *users) RolesTx(ctx context.Context, tx bun.IDB, id uuid.UUID) ([]string, error) {
	var rows []UserRole
	err := tx.NewSelect().
		Model(&rows).
		Where("?TableAlias.user_id = ?", id).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	if len(rows) == 0 {
		return nil, nil
	}

	roles := make([]string, 0, len(rows))
	for _, r := range rows {
		roles = append(roles, r.Role)
	}
	return roles, nil
}

// SetRolesTx replaces the role assignments of the user
func (a *users) SetRolesTx(ctx context.Context, tx bun.IDB, id uuid.UUID, roles []string) error {
	_, err := tx.NewDelete().
		Model((*UserRole)(nil)).
		Where("user_id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if len(roles) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]UserRole, 0, len(roles))
	for i, role := range roles {
		rows = append(rows, UserRole{
			UserID:    id,
			Position:  i,
			Role:      role,
			CreatedAt: &now,
		})
	}

	_, err = tx.NewInsert().Model(&rows).Exec(ctx)
	return err
}

type identifierOption struct {
	column string
	value  string
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  trimmed,
		})
	}

	options = append(options, identifierOption{
		column: "username",
		value:  trimmed,
	})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
