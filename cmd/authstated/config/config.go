package config

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	authstate "github.com/goliatone/go-auth-state"
	"github.com/goliatone/go-auth-state/web"
)

type Config struct {
	Name        string      `json:"name" koanf:"name"`
	Server      Server      `json:"server" koanf:"server"`
	Persistence Persistence `json:"persistence" koanf:"persistence"`
	Session     Session     `json:"session" koanf:"session"`
	Identity    Identity    `json:"identity" koanf:"identity"`
}

type Server struct {
	Addr string `json:"addr" koanf:"addr"`
}

type Persistence struct {
	Driver                string `json:"driver" koanf:"driver"`
	DSN                   string `json:"dsn" koanf:"dsn"`
	Debug                 bool   `json:"debug" koanf:"debug"`
	PingTimeoutExpression string `json:"ping_timeout" koanf:"ping_timeout"`
	OtelIdentifier        string `json:"otel_identifier" koanf:"otel_identifier"`
}

type Session struct {
	SigningKey    string `json:"signing_key" koanf:"signing_key"`
	SigningMethod string `json:"signing_method" koanf:"signing_method"`
	JWKSURL       string `json:"jwks_url" koanf:"jwks_url"`
	Issuer        string `json:"issuer" koanf:"issuer"`
	CookieName    string `json:"cookie_name" koanf:"cookie_name"`
}

type Identity struct {
	ClaimTypes                     authstate.ClaimTypes `json:"claim_types" koanf:"claim_types"`
	DisableSecurityStamp           bool                 `json:"disable_security_stamp" koanf:"disable_security_stamp"`
	RevalidationIntervalExpression string               `json:"revalidation_interval" koanf:"revalidation_interval"`
}

const (
	DefaultAddr        = ":8572"
	DefaultDriver      = "sqlite"
	DefaultDSN         = "file:authstate.db?cache=shared"
	DefaultPingTimeout = 5 * time.Second
)

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Persistence),
		validation.Field(&c.Session),
		validation.Field(&c.Identity),
	)
}

func (p Persistence) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Driver, validation.In("", DefaultDriver)),
		validation.Field(&p.PingTimeoutExpression, validation.By(validDuration)),
	)
}

func (s Session) Validate() error {
	keyRules := []validation.Rule{}
	if s.JWKSURL == "" {
		keyRules = append(keyRules, validation.Required)
	}
	return validation.ValidateStruct(&s,
		validation.Field(&s.SigningKey, keyRules...),
		validation.Field(&s.JWKSURL, is.URL),
		validation.Field(&s.SigningMethod, validation.In("", "HS256", "HS384", "HS512")),
	)
}

func (i Identity) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.RevalidationIntervalExpression, validation.By(validDuration)),
	)
}

func validDuration(value any) error {
	expr, _ := value.(string)
	if expr == "" {
		return nil
	}
	d, err := time.ParseDuration(expr)
	if err != nil {
		return errors.New("must be a duration such as 30m")
	}
	if d <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

func (c Config) GetServer() Server           { return c.Server }
func (c Config) GetPersistence() Persistence { return c.Persistence }
func (c Config) GetSession() Session         { return c.Session }
func (c Config) GetIdentity() Identity       { return c.Identity }

func (s Server) GetAddr() string {
	if s.Addr == "" {
		return DefaultAddr
	}
	return s.Addr
}

func (p Persistence) GetDSN() string {
	if p.DSN == "" {
		return DefaultDSN
	}
	return p.DSN
}

// GetServer is the connection string, named for the persistence client
func (p Persistence) GetServer() string { return p.GetDSN() }

func (p Persistence) GetDriver() string {
	if p.Driver == "" {
		return DefaultDriver
	}
	return p.Driver
}

func (p Persistence) GetDebug() bool            { return p.Debug }
func (p Persistence) GetOtelIdentifier() string { return p.OtelIdentifier }

func (p Persistence) GetPingTimeout() time.Duration {
	d, err := time.ParseDuration(p.PingTimeoutExpression)
	if err != nil || d <= 0 {
		return DefaultPingTimeout
	}
	return d
}

var _ web.Config = Session{}

func (s Session) GetSigningKey() string { return s.SigningKey }

func (s Session) GetSigningMethod() string {
	if s.SigningMethod == "" {
		return web.DefaultSigningMethod
	}
	return s.SigningMethod
}

func (s Session) GetJWKSURL() string { return s.JWKSURL }
func (s Session) GetIssuer() string  { return s.Issuer }

func (s Session) GetCookieName() string {
	if s.CookieName == "" {
		return web.DefaultCookieName
	}
	return s.CookieName
}

func (i Identity) GetClaimTypes() authstate.ClaimTypes {
	return i.ClaimTypes.WithDefaults()
}

func (i Identity) GetSecurityStampSupport() bool {
	return !i.DisableSecurityStamp
}

// GetRevalidationInterval falls back to the library default when the
// expression is empty or invalid. Validate rejects invalid expressions.
func (i Identity) GetRevalidationInterval() time.Duration {
	d, err := time.ParseDuration(i.RevalidationIntervalExpression)
	if err != nil || d <= 0 {
		return authstate.DefaultRevalidationInterval
	}
	return d
}
