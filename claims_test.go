package authstate_test

import (
	"encoding/json"
	"testing"

	authstate "github.com/goliatone/go-auth-state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipal_Anonymous(t *testing.T) {
	p := authstate.AnonymousPrincipal()

	assert.False(t, p.IsAuthenticated())
	assert.Empty(t, p.AuthenticationType())
	assert.Empty(t, p.Claims())

	_, ok := p.FindFirst("sub")
	assert.False(t, ok)

	var nilPrincipal *authstate.Principal
	assert.False(t, nilPrincipal.IsAuthenticated())
	assert.Nil(t, nilPrincipal.FindAll("role"))
}

func TestPrincipal_ClaimsAreCopied(t *testing.T) {
	claims := []authstate.Claim{{Type: "sub", Value: "u1"}}
	p := principalWith("session", claims...)

	claims[0].Value = "mutated"
	got := p.Claims()
	got[0].Value = "mutated again"

	value, ok := p.FindFirst("sub")
	require.True(t, ok)
	assert.Equal(t, "u1", value)
}

func TestPrincipal_FindAllKeepsOrder(t *testing.T) {
	p := principalWith("session",
		authstate.Claim{Type: "role", Value: "b"},
		authstate.Claim{Type: "sub", Value: "u1"},
		authstate.Claim{Type: "role", Value: "a"},
		authstate.Claim{Type: "role", Value: "b"},
	)

	assert.Equal(t, []string{"b", "a", "b"}, p.FindAll("role"))
	first, _ := p.FindFirst("role")
	assert.Equal(t, "b", first)
}

func TestClaimTypes_TypeOf(t *testing.T) {
	types := authstate.ClaimTypes{SubjectID: "uid"}

	tests := []struct {
		kind     authstate.ClaimKind
		expected string
	}{
		{authstate.ClaimSubjectID, "uid"},
		{authstate.ClaimUserName, "name"},
		{authstate.ClaimEmail, "email"},
		{authstate.ClaimSecurityStamp, "security_stamp"},
		{authstate.ClaimFirstName, "firstname"},
		{authstate.ClaimLastName, "lastname"},
		{authstate.ClaimRole, "role"},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, types.TypeOf(tt.kind))
		})
	}

	assert.Empty(t, types.TypeOf(authstate.ClaimKind(99)))
	assert.Equal(t, "claim_kind(99)", authstate.ClaimKind(99).String())
}

func TestClaimTypes_Require(t *testing.T) {
	types := authstate.DefaultClaimTypes()
	p := principalWith("session",
		types.Claim(authstate.ClaimSubjectID, "u1"),
		types.Claim(authstate.ClaimUserName, ""),
	)

	values, err := types.Require(p, authstate.ClaimSubjectID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, values)

	_, err = types.Require(p, authstate.ClaimSubjectID, authstate.ClaimUserName)
	require.Error(t, err)
	assert.ErrorIs(t, err, authstate.ErrMissingClaim)
	assert.Contains(t, err.Error(), "user_name")
	assert.True(t, authstate.IsSoftPersistError(err))
}

func TestClaimTypes_Accessors(t *testing.T) {
	types := authstate.DefaultClaimTypes()
	p := principalWith("session", append(aliceClaims("s1"),
		types.Claim(authstate.ClaimRole, "Admin"),
		types.Claim(authstate.ClaimRole, "Editor"),
	)...)

	sub, _ := types.SubjectIDOf(p)
	name, _ := types.UserNameOf(p)
	email, _ := types.EmailOf(p)
	stamp, _ := types.SecurityStampOf(p)
	_, hasFirst := types.FirstNameOf(p)

	assert.Equal(t, "u1", sub)
	assert.Equal(t, "alice", name)
	assert.Equal(t, "a@x.io", email)
	assert.Equal(t, "s1", stamp)
	assert.False(t, hasFirst)
	assert.Equal(t, []string{"Admin", "Editor"}, types.Roles(p))
}

func TestClaimTypes_JSON(t *testing.T) {
	var types authstate.ClaimTypes
	require.NoError(t, json.Unmarshal([]byte(`{"subject_id":"oid","email":"upn"}`), &types))

	types = types.WithDefaults()
	assert.Equal(t, "oid", types.SubjectID)
	assert.Equal(t, "upn", types.Email)
	assert.Equal(t, authstate.DefaultUserNameClaimType, types.UserName)
}
