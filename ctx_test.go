package authstate_test

import (
	"context"
	"testing"

	authstate "github.com/goliatone/go-auth-state"
	"github.com/stretchr/testify/assert"
)

func TestPrincipalFromContext(t *testing.T) {
	tests := []struct {
		name     string
		setupCtx func() context.Context
		wantOK   bool
	}{
		{
			name: "should return principal when present in context",
			setupCtx: func() context.Context {
				return authstate.WithPrincipal(context.Background(), principalWith("session", aliceClaims("")...))
			},
			wantOK: true,
		},
		{
			name:     "should return false when no principal in context",
			setupCtx: context.Background,
		},
		{
			name: "should return false for a nil principal",
			setupCtx: func() context.Context {
				return authstate.WithPrincipal(context.Background(), nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := authstate.PrincipalFromContext(tt.setupCtx())
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, p.IsAuthenticated())
			}
		})
	}
}

func TestPrincipalOrAnonymous(t *testing.T) {
	assert.False(t, authstate.PrincipalOrAnonymous(context.Background()).IsAuthenticated())

	ctx := authstate.WithPrincipal(context.Background(), principalWith("session", aliceClaims("")...))
	assert.True(t, authstate.PrincipalOrAnonymous(ctx).IsAuthenticated())
}
