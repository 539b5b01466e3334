package web

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	authstate "github.com/goliatone/go-auth-state"
	"github.com/goliatone/go-router"
)

// PrincipalLocalsKey is where the middleware stores the request principal
const PrincipalLocalsKey = "authstate.principal"

// TokenExtractor pulls a raw token out of a request
type TokenExtractor func(ctx router.Context) string

// FromCookie reads the token from the named cookie
func FromCookie(name string) TokenExtractor {
	return func(ctx router.Context) string {
		return ctx.Cookies(name)
	}
}

// FromAuthHeader reads a "<scheme> <token>" Authorization header
func FromAuthHeader(scheme string) TokenExtractor {
	return func(ctx router.Context) string {
		return tokenFromAuthorization(ctx.GetString(router.HeaderAuthorization, ""), scheme)
	}
}

// PrincipalResolver turns session tokens into principals. Missing and
// invalid tokens resolve to the anonymous principal.
type PrincipalResolver struct {
	validator *SessionValidator
	types     authstate.ClaimTypes
	logger    authstate.Logger
}

func NewPrincipalResolver(validator *SessionValidator, types authstate.ClaimTypes, logger authstate.Logger) *PrincipalResolver {
	if logger == nil {
		_, logger = authstate.ResolveLogger("authstate.web", nil, nil)
	}
	return &PrincipalResolver{
		validator: validator,
		types:     types.WithDefaults(),
		logger:    logger,
	}
}

// Resolve returns the principal for the first non empty token
func (r *PrincipalResolver) Resolve(path string, tokens ...string) *authstate.Principal {
	for _, token := range tokens {
		if token == "" {
			continue
		}
		claims, err := r.validator.Validate(token)
		if err != nil {
			r.logger.Debug("session token rejected", "error", err, "path", path)
			return authstate.AnonymousPrincipal()
		}
		return claims.Principal(r.types)
	}
	return authstate.AnonymousPrincipal()
}

// PrincipalMiddleware resolves the request principal. Requests without a
// valid token continue as anonymous, authorization is left to handlers.
func PrincipalMiddleware(resolver *PrincipalResolver, extractors ...TokenExtractor) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			tokens := make([]string, 0, len(extractors))
			for _, extract := range extractors {
				tokens = append(tokens, extract(ctx))
			}

			principal := resolver.Resolve(ctx.OriginalURL(), tokens...)

			ctx.Locals(PrincipalLocalsKey, principal)
			ctx.SetContext(authstate.WithPrincipal(ctx.Context(), principal))

			return ctx.Next()
		}
	}
}

// FiberPrincipalMiddleware is PrincipalMiddleware for handlers mounted on
// the wrapped fiber app, reading the bearer header and the session cookie.
func FiberPrincipalMiddleware(resolver *PrincipalResolver, cookieName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal := resolver.Resolve(c.OriginalURL(),
			tokenFromAuthorization(c.Get(fiber.HeaderAuthorization), "Bearer"),
			c.Cookies(cookieName),
		)

		c.Locals(PrincipalLocalsKey, principal)
		c.SetUserContext(authstate.WithPrincipal(c.UserContext(), principal))

		return c.Next()
	}
}

// PrincipalFromCtx returns the principal resolved by PrincipalMiddleware
func PrincipalFromCtx(ctx router.Context) *authstate.Principal {
	if p, ok := ctx.Locals(PrincipalLocalsKey).(*authstate.Principal); ok && p != nil {
		return p
	}
	return authstate.PrincipalOrAnonymous(ctx.Context())
}

// PrincipalFromFiber returns the principal resolved by FiberPrincipalMiddleware
func PrincipalFromFiber(c *fiber.Ctx) *authstate.Principal {
	if p, ok := c.Locals(PrincipalLocalsKey).(*authstate.Principal); ok && p != nil {
		return p
	}
	return authstate.PrincipalOrAnonymous(c.UserContext())
}

func tokenFromAuthorization(header, scheme string) string {
	l := len(scheme)
	if len(header) > l+1 && strings.EqualFold(header[:l], scheme) && header[l] == ' ' {
		return strings.TrimSpace(header[l+1:])
	}
	return ""
}
