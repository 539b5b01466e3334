package web

import (
	"slices"
	"strings"

	authstate "github.com/goliatone/go-auth-state"
)

var TemplateUserKey = "current_user"

// TemplateHelpers returns view data for the client principal: the user
// under TemplateUserKey plus helper functions.
//
// In templates:
//
//	{% if is_authenticated %}
//	{{ current_user.display_name }}
//	{% if has_role("Admin") %}
//	{{ claim("email") }}
func TemplateHelpers(p *authstate.Principal, types authstate.ClaimTypes) map[string]any {
	helpers := map[string]any{
		"is_authenticated": p.IsAuthenticated(),
		"has_role": func(role string) bool {
			return slices.Contains(types.Roles(p), role)
		},
		"claim": func(claimType string) string {
			value, _ := p.FindFirst(claimType)
			return value
		},
	}

	if p.IsAuthenticated() {
		helpers[TemplateUserKey] = templateUser(p, types)
	}

	return helpers
}

func templateUser(p *authstate.Principal, types authstate.ClaimTypes) map[string]any {
	id, _ := types.SubjectIDOf(p)
	username, _ := types.UserNameOf(p)
	email, _ := types.EmailOf(p)
	first, _ := types.FirstNameOf(p)
	last, _ := types.LastNameOf(p)

	display := strings.TrimSpace(first + " " + last)
	if display == "" {
		display = username
	}

	return map[string]any{
		"id":           id,
		"username":     username,
		"email":        email,
		"first_name":   first,
		"last_name":    last,
		"display_name": display,
		"roles":        types.Roles(p),
	}
}
