package web_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	authstate "github.com/goliatone/go-auth-state"
	"github.com/goliatone/go-auth-state/web"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T) *web.PrincipalResolver {
	t.Helper()
	validator, err := web.NewSessionValidator(web.StaticConfig{SigningKey: testSigningKey})
	require.NoError(t, err)
	return web.NewPrincipalResolver(validator, authstate.ClaimTypes{}, nil)
}

func mockRequest(header, cookie string) *router.MockContext {
	ctx := router.NewMockContext()
	ctx.On("GetString", "Authorization", "").Return(header).Maybe()
	ctx.On("Cookies", "session").Return(cookie).Maybe()
	ctx.On("OriginalURL").Return("/").Maybe()
	ctx.On("Context").Return(context.Background()).Maybe()
	ctx.On("SetContext", mock.Anything).Return().Maybe()
	return ctx
}

func TestPrincipalMiddleware(t *testing.T) {
	token := signToken(t, testSigningKey, web.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name:  "alice",
		Email: "alice@example.com",
	})

	tests := []struct {
		name          string
		header        string
		cookie        string
		authenticated bool
	}{
		{name: "bearer header", header: "Bearer " + token, authenticated: true},
		{name: "session cookie", cookie: token, authenticated: true},
		{name: "invalid token", header: "Bearer not.a.token"},
		{name: "no token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := web.PrincipalMiddleware(newResolver(t),
				web.FromAuthHeader("Bearer"),
				web.FromCookie("session"),
			)

			var resolved *authstate.Principal
			ctx := mockRequest(tt.header, tt.cookie)
			ctx.On("Locals", web.PrincipalLocalsKey, mock.AnythingOfType("*authstate.Principal")).
				Run(func(args mock.Arguments) {
					resolved = args.Get(1).(*authstate.Principal)
				}).
				Return(nil)

			handler := mw(func(ctx router.Context) error { return nil })
			require.NoError(t, handler(ctx))

			assert.True(t, ctx.NextCalled)
			require.NotNil(t, resolved)
			assert.Equal(t, tt.authenticated, resolved.IsAuthenticated())
		})
	}
}
