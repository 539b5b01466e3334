package authstate

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
)

// SnapshotKey is the persisted state key shared by the server writer
// and the client reader
const SnapshotKey = "authstate.user"

// SnapshotAuthenticationType tags principals rebuilt from a snapshot
const SnapshotAuthenticationType = "authstate.snapshot"

// UserSnapshot is the user record handed from the server render to the client
type UserSnapshot struct {
	ID        string   `json:"id"`
	UserName  string   `json:"username"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Roles     []string `json:"roles,omitempty"`
}

// Validate checks the fields an authenticated snapshot always carries.
// The server runs it before writing; the client does not re-check.
func (s UserSnapshot) Validate() error {
	err := validation.ValidateStruct(&s,
		validation.Field(&s.ID, validation.Required),
		validation.Field(&s.UserName, validation.Required),
		validation.Field(&s.Email, validation.Required),
	)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSnapshot, err.Error())
	}
	return nil
}

// Principal rebuilds a principal from the snapshot. Values are used as is,
// roles keep their order and duplicates.
func (s UserSnapshot) Principal(types ClaimTypes) *Principal {
	claims := make([]Claim, 0, 5+len(s.Roles))
	claims = append(claims,
		types.Claim(ClaimSubjectID, s.ID),
		types.Claim(ClaimUserName, s.UserName),
		types.Claim(ClaimEmail, s.Email),
		types.Claim(ClaimFirstName, s.FirstName),
		types.Claim(ClaimLastName, s.LastName),
	)
	for _, role := range s.Roles {
		claims = append(claims, types.Claim(ClaimRole, role))
	}
	return NewPrincipal(NewClaimsIdentity(SnapshotAuthenticationType, claims...))
}
