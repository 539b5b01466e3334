package store

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// SeedUsersMessage upserts users by email. Existing users keep their id
// and security stamp, profile fields and roles are replaced.
type SeedUsersMessage struct {
	Users []RegisterUserMessage `json:"users" yaml:"users"`
}

func (e SeedUsersMessage) Type() string { return "user.seed" }

func (e SeedUsersMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Users, validation.Required),
	)
}

// SeedResult counts what a seed run did
type SeedResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

type SeedUsersHandler struct {
	repo RepositoryManager
}

func NewSeedUsersHandler(repo RepositoryManager) *SeedUsersHandler {
	return &SeedUsersHandler{repo: repo}
}

func (h *SeedUsersHandler) Execute(ctx context.Context, event SeedUsersMessage) error {
	_, err := h.Seed(ctx, event)
	return err
}

func (h *SeedUsersHandler) Seed(ctx context.Context, event SeedUsersMessage) (SeedResult, error) {
	result := SeedResult{}

	if err := event.Validate(); err != nil {
		return result, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid user seed").
			WithCode(goerrors.CodeBadRequest)
	}

	for i, msg := range event.Users {
		if err := msg.Validate(); err != nil {
			return result, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid seed entry").
				WithCode(goerrors.CodeBadRequest).
				WithMetadata(map[string]any{"index": i, "email": msg.Email})
		}
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, msg := range event.Users {
			created, err := h.upsert(ctx, tx, msg)
			if err != nil {
				return err
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}
		return nil
	})

	if err != nil {
		return SeedResult{}, wrapUserCommandError(err, "", "failed to seed users")
	}

	return result, nil
}

func (h *SeedUsersHandler) upsert(ctx context.Context, tx bun.IDB, msg RegisterUserMessage) (bool, error) {
	email := strings.TrimSpace(msg.Email)
	users := h.repo.Users()

	existing, err := users.GetByIdentifierTx(ctx, tx, email)
	switch {
	case repository.IsRecordNotFound(err):
		user := &User{
			Email:         email,
			FirstName:     msg.FirstName,
			LastName:      msg.LastName,
			Username:      getUsername(msg.Username, email),
			SecurityStamp: NewSecurityStamp(),
		}
		if msg.UseHashid {
			if id, err := hashid.NewUUID(email); err == nil {
				user.ID = id
			}
		}
		if user, err = users.CreateTx(ctx, tx, user); err != nil {
			return false, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user").
				WithMetadata(map[string]any{"email": email})
		}
		return true, users.SetRolesTx(ctx, tx, user.ID, NormalizeRoles(msg.Roles))
	case err != nil:
		return false, err
	}

	update := &User{
		ID:        existing.ID,
		FirstName: msg.FirstName,
		LastName:  msg.LastName,
	}
	if msg.Username != "" {
		update.Username = msg.Username
	}
	if _, err := users.UpdateProfileTx(ctx, tx, update); err != nil {
		return false, err
	}

	return false, users.SetRolesTx(ctx, tx, existing.ID, NormalizeRoles(msg.Roles))
}
