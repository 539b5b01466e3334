package web

import (
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	authstate "github.com/goliatone/go-auth-state"
	goerrors "github.com/goliatone/go-errors"
)

// SessionAuthenticationType tags principals built from a session token
const SessionAuthenticationType = "session"

// ErrInvalidSession is returned for missing, malformed or expired tokens
var ErrInvalidSession = goerrors.New("invalid session token", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode("INVALID_SESSION")

// SessionClaims are the claims carried by the session cookie
type SessionClaims struct {
	jwt.RegisteredClaims
	Name          string   `json:"name,omitempty"`
	Email         string   `json:"email,omitempty"`
	SecurityStamp string   `json:"security_stamp,omitempty"`
	Roles         []string `json:"roles,omitempty"`
}

// Principal maps the token claims onto the claim type table
func (c *SessionClaims) Principal(types authstate.ClaimTypes) *authstate.Principal {
	if c == nil || c.Subject == "" {
		return authstate.AnonymousPrincipal()
	}

	claims := []authstate.Claim{types.Claim(authstate.ClaimSubjectID, c.Subject)}
	if c.Name != "" {
		claims = append(claims, types.Claim(authstate.ClaimUserName, c.Name))
	}
	if c.Email != "" {
		claims = append(claims, types.Claim(authstate.ClaimEmail, c.Email))
	}
	if c.SecurityStamp != "" {
		claims = append(claims, types.Claim(authstate.ClaimSecurityStamp, c.SecurityStamp))
	}
	for _, role := range c.Roles {
		claims = append(claims, types.Claim(authstate.ClaimRole, role))
	}

	return authstate.NewPrincipal(authstate.NewClaimsIdentity(SessionAuthenticationType, claims...))
}

// SessionValidator parses and verifies session tokens
type SessionValidator struct {
	keyFunc jwt.Keyfunc
	options []jwt.ParserOption
	logger  authstate.Logger
}

// ValidatorOption configures a SessionValidator
type ValidatorOption func(*SessionValidator)

// WithValidatorLogger sets the logger that receives JWKS refresh failures
func WithValidatorLogger(logger authstate.Logger) ValidatorOption {
	return func(v *SessionValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewSessionValidator uses the JWKS URL when configured, the shared
// signing key otherwise
func NewSessionValidator(cfg Config, opts ...ValidatorOption) (*SessionValidator, error) {
	_, logger := authstate.ResolveLogger("authstate.web", nil, nil)
	v := &SessionValidator{logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	var methods []string

	switch {
	case cfg.GetJWKSURL() != "":
		jwks, err := keyfunc.Get(cfg.GetJWKSURL(), keyfunc.Options{
			RefreshErrorHandler: v.refreshErrorHandler(cfg.GetJWKSURL()),
			RefreshInterval:     time.Hour,
			RefreshRateLimit:    time.Minute * 5,
			RefreshTimeout:      time.Second * 10,
			RefreshUnknownKID:   true,
		})
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load JWK set").
				WithMetadata(map[string]any{"url": cfg.GetJWKSURL()})
		}
		v.keyFunc = jwks.Keyfunc
	case cfg.GetSigningKey() != "":
		v.keyFunc = signingKeyFunc(cfg.GetSigningMethod(), []byte(cfg.GetSigningKey()))
		methods = []string{cfg.GetSigningMethod()}
	default:
		return nil, goerrors.New("a signing key or a JWKS URL is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	if len(methods) > 0 {
		v.options = append(v.options, jwt.WithValidMethods(methods))
	}
	if cfg.GetIssuer() != "" {
		v.options = append(v.options, jwt.WithIssuer(cfg.GetIssuer()))
	}

	return v, nil
}

func (v *SessionValidator) refreshErrorHandler(url string) func(err error) {
	return func(err error) {
		v.logger.Error("failed to refresh JWK set", "error", err, "url", url)
	}
}

// Validate returns the claims of a valid token
func (v *SessionValidator) Validate(token string) (*SessionClaims, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyFunc, v.options...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, err.Error())
	}
	if !parsed.Valid {
		return nil, ErrInvalidSession
	}

	return claims, nil
}

func signingKeyFunc(method string, key []byte) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected jwt signing method: expected: %q: got: %q", method, token.Header["alg"])
		}
		return key, nil
	}
}
