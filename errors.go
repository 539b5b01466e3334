package authstate

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeUserNotFound        = "USER_NOT_FOUND"
	textCodeMissingClaim        = "MISSING_CLAIM"
	textCodeStateNotProduced    = "AUTH_STATE_NOT_PRODUCED"
	textCodePersistWindowClosed = "PERSIST_WINDOW_CLOSED"
	textCodeDuplicateStateKey   = "DUPLICATE_STATE_KEY"
	textCodeAlreadyPersisted    = "STATE_ALREADY_PERSISTED"
	textCodeInvalidSnapshot     = "INVALID_SNAPSHOT"
	textCodeInvalidPayload      = "INVALID_STATE_PAYLOAD"
)

// ErrUserNotFound is returned by identity stores when no user matches a subject
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(textCodeUserNotFound)

// ErrMissingClaim means an authenticated principal lacks a claim we need
var ErrMissingClaim = goerrors.New("principal is missing a required claim", goerrors.CategoryBadInput).
	WithTextCode(textCodeMissingClaim)

// ErrStateNotProduced signals that persistence ran before any authentication
// state was published. It is raised as a panic, it is never a soft error.
var ErrStateNotProduced = goerrors.New("authentication state not set before persisting", goerrors.CategoryInternal).
	WithTextCode(textCodeStateNotProduced)

// ErrPersistWindowClosed is returned when writing outside of Persist
var ErrPersistWindowClosed = goerrors.New("persisting window is closed", goerrors.CategoryOperation).
	WithTextCode(textCodePersistWindowClosed)

// ErrDuplicateStateKey is returned when a key is written twice in one window
var ErrDuplicateStateKey = goerrors.New("state key already persisted", goerrors.CategoryConflict).
	WithTextCode(textCodeDuplicateStateKey)

// ErrAlreadyPersisted is returned when Persist runs a second time
var ErrAlreadyPersisted = goerrors.New("state already persisted", goerrors.CategoryOperation).
	WithTextCode(textCodeAlreadyPersisted)

// ErrInvalidSnapshot is returned for snapshots missing identity fields
var ErrInvalidSnapshot = goerrors.New("invalid user snapshot", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidSnapshot)

// ErrInvalidStatePayload is returned when a transferred payload can't be decoded
var ErrInvalidStatePayload = goerrors.New("invalid persisted state payload", goerrors.CategoryBadInput).
	WithTextCode(textCodeInvalidPayload)

// IsSoftPersistError reports conditions that suppress persistence
// without being failures: missing claims and users that no longer exist.
func IsSoftPersistError(err error) bool {
	if err == nil {
		return false
	}
	return goerrors.Is(err, ErrMissingClaim) || goerrors.Is(err, ErrUserNotFound)
}
