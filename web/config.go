package web

// Config holds what the web layer needs to validate session tokens.
// Tokens are issued elsewhere, this package only reads them.
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetJWKSURL() string
	GetIssuer() string
	GetCookieName() string
}

const (
	DefaultCookieName    = "authstate_session"
	DefaultSigningMethod = "HS256"
)

// StaticConfig is a Config backed by plain fields
type StaticConfig struct {
	SigningKey    string
	SigningMethod string
	JWKSURL       string
	Issuer        string
	CookieName    string
}

func (c StaticConfig) GetSigningKey() string { return c.SigningKey }

func (c StaticConfig) GetSigningMethod() string {
	if c.SigningMethod == "" {
		return DefaultSigningMethod
	}
	return c.SigningMethod
}

func (c StaticConfig) GetJWKSURL() string { return c.JWKSURL }
func (c StaticConfig) GetIssuer() string  { return c.Issuer }

func (c StaticConfig) GetCookieName() string {
	if c.CookieName == "" {
		return DefaultCookieName
	}
	return c.CookieName
}
