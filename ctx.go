package authstate

import "context"

var principalCtxKey = &contextKey{"principal"}

type contextKey struct {
	name string
}

// WithPrincipal sets the principal in the given context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext finds the principal in the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	raw, ok := ctx.Value(principalCtxKey).(*Principal)
	return raw, ok && raw != nil
}

// PrincipalOrAnonymous returns the context principal or an anonymous one
func PrincipalOrAnonymous(ctx context.Context) *Principal {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p
	}
	return AnonymousPrincipal()
}
