package authstate

import "fmt"

// ClaimKind enumerates the claims this package reads or writes
type ClaimKind int

const (
	ClaimSubjectID ClaimKind = iota
	ClaimUserName
	ClaimEmail
	ClaimFirstName
	ClaimLastName
	ClaimRole
	ClaimSecurityStamp
)

const (
	// FirstNameClaimType is the fixed claim type for the user first name
	FirstNameClaimType = "firstname"
	// LastNameClaimType is the fixed claim type for the user last name
	LastNameClaimType = "lastname"
	// RoleClaimType is the fixed claim type for role names
	RoleClaimType = "role"
)

const (
	DefaultSubjectIDClaimType     = "sub"
	DefaultUserNameClaimType      = "name"
	DefaultEmailClaimType         = "email"
	DefaultSecurityStampClaimType = "security_stamp"
)

func (k ClaimKind) String() string {
	switch k {
	case ClaimSubjectID:
		return "subject_id"
	case ClaimUserName:
		return "user_name"
	case ClaimEmail:
		return "email"
	case ClaimFirstName:
		return "first_name"
	case ClaimLastName:
		return "last_name"
	case ClaimRole:
		return "role"
	case ClaimSecurityStamp:
		return "security_stamp"
	default:
		return fmt.Sprintf("claim_kind(%d)", int(k))
	}
}

// ClaimTypes maps claim kinds to claim type strings. The identity claim
// types are configurable, first name, last name and role are fixed.
type ClaimTypes struct {
	SubjectID     string `json:"subject_id" koanf:"subject_id"`
	UserName      string `json:"user_name" koanf:"user_name"`
	Email         string `json:"email" koanf:"email"`
	SecurityStamp string `json:"security_stamp" koanf:"security_stamp"`
}

// DefaultClaimTypes returns the default claim type table
func DefaultClaimTypes() ClaimTypes {
	return ClaimTypes{
		SubjectID:     DefaultSubjectIDClaimType,
		UserName:      DefaultUserNameClaimType,
		Email:         DefaultEmailClaimType,
		SecurityStamp: DefaultSecurityStampClaimType,
	}
}

// WithDefaults fills empty entries with the default claim types
func (c ClaimTypes) WithDefaults() ClaimTypes {
	def := DefaultClaimTypes()
	if c.SubjectID == "" {
		c.SubjectID = def.SubjectID
	}
	if c.UserName == "" {
		c.UserName = def.UserName
	}
	if c.Email == "" {
		c.Email = def.Email
	}
	if c.SecurityStamp == "" {
		c.SecurityStamp = def.SecurityStamp
	}
	return c
}

// TypeOf returns the claim type string for kind
func (c ClaimTypes) TypeOf(kind ClaimKind) string {
	c = c.WithDefaults()
	switch kind {
	case ClaimSubjectID:
		return c.SubjectID
	case ClaimUserName:
		return c.UserName
	case ClaimEmail:
		return c.Email
	case ClaimSecurityStamp:
		return c.SecurityStamp
	case ClaimFirstName:
		return FirstNameClaimType
	case ClaimLastName:
		return LastNameClaimType
	case ClaimRole:
		return RoleClaimType
	default:
		return ""
	}
}

// Claim builds a claim of the given kind
func (c ClaimTypes) Claim(kind ClaimKind, value string) Claim {
	return Claim{Type: c.TypeOf(kind), Value: value}
}

// Value returns the first claim value of kind
func (c ClaimTypes) Value(p *Principal, kind ClaimKind) (string, bool) {
	return p.FindFirst(c.TypeOf(kind))
}

// Values returns every claim value of kind
func (c ClaimTypes) Values(p *Principal, kind ClaimKind) []string {
	return p.FindAll(c.TypeOf(kind))
}

func (c ClaimTypes) SubjectIDOf(p *Principal) (string, bool) {
	return c.Value(p, ClaimSubjectID)
}

func (c ClaimTypes) UserNameOf(p *Principal) (string, bool) {
	return c.Value(p, ClaimUserName)
}

func (c ClaimTypes) EmailOf(p *Principal) (string, bool) {
	return c.Value(p, ClaimEmail)
}

func (c ClaimTypes) FirstNameOf(p *Principal) (string, bool) {
	return c.Value(p, ClaimFirstName)
}

func (c ClaimTypes) LastNameOf(p *Principal) (string, bool) {
	return c.Value(p, ClaimLastName)
}

func (c ClaimTypes) SecurityStampOf(p *Principal) (string, bool) {
	return c.Value(p, ClaimSecurityStamp)
}

func (c ClaimTypes) Roles(p *Principal) []string {
	return c.Values(p, ClaimRole)
}

// Require returns the values of kinds in order, or ErrMissingClaim
// naming the first kind that is absent or empty
func (c ClaimTypes) Require(p *Principal, kinds ...ClaimKind) ([]string, error) {
	values := make([]string, len(kinds))
	for i, kind := range kinds {
		v, ok := c.Value(p, kind)
		if !ok || v == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingClaim, kind)
		}
		values[i] = v
	}
	return values, nil
}
