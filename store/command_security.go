package store

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RotateSecurityStampMessage requests a new security stamp for a user,
// which signs out every session issued with the previous one
type RotateSecurityStampMessage struct {
	Identifier string `json:"identifier"`
}

func (e RotateSecurityStampMessage) Type() string { return "user.security_stamp.rotate" }

func (e RotateSecurityStampMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Identifier, validation.Required),
	)
}

type RotateSecurityStampHandler struct {
	repo RepositoryManager
}

func NewRotateSecurityStampHandler(repo RepositoryManager) *RotateSecurityStampHandler {
	return &RotateSecurityStampHandler{repo: repo}
}

func (h *RotateSecurityStampHandler) Execute(ctx context.Context, event RotateSecurityStampMessage) error {
	_, err := h.Rotate(ctx, event)
	return err
}

// Rotate returns the new stamp
func (h *RotateSecurityStampHandler) Rotate(ctx context.Context, event RotateSecurityStampMessage) (string, error) {
	select {
	case <-ctx.Done():
		return "", goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during security stamp rotation")
	default:
	}

	if err := event.Validate(); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid security stamp rotation").
			WithCode(goerrors.CodeBadRequest)
	}

	var stamp string
	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByIdentifierTx(ctx, tx, event.Identifier)
		if err != nil {
			return err
		}
		stamp, err = h.repo.Users().RotateSecurityStampTx(ctx, tx, user.ID)
		return err
	})

	if err != nil {
		return "", wrapUserCommandError(err, event.Identifier, "failed to rotate security stamp")
	}

	return stamp, nil
}

// SetRolesMessage replaces the roles of a user
type SetRolesMessage struct {
	Identifier string   `json:"identifier"`
	Roles      []string `json:"roles"`
}

func (e SetRolesMessage) Type() string { return "user.roles.set" }

func (e SetRolesMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Identifier, validation.Required),
	)
}

type SetRolesHandler struct {
	repo RepositoryManager
}

func NewSetRolesHandler(repo RepositoryManager) *SetRolesHandler {
	return &SetRolesHandler{repo: repo}
}

func (h *SetRolesHandler) Execute(ctx context.Context, event SetRolesMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled while setting roles")
	default:
	}

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid role assignment").
			WithCode(goerrors.CodeBadRequest)
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByIdentifierTx(ctx, tx, event.Identifier)
		if err != nil {
			return err
		}
		return h.repo.Users().SetRolesTx(ctx, tx, user.ID, NormalizeRoles(event.Roles))
	})

	if err != nil {
		return wrapUserCommandError(err, event.Identifier, "failed to set user roles")
	}

	return nil
}

func wrapUserCommandError(err error, identifier, message string) error {
	if repository.IsRecordNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryNotFound, "user not found").
			WithMetadata(map[string]any{"identifier": identifier})
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, message)
}
