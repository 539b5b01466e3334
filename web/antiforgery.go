package web

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	authstate "github.com/goliatone/go-auth-state"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

const (
	AntiforgeryLocalsKey  = "csrf_token"
	AntiforgeryFormField  = "_token"
	AntiforgeryHeaderName = "X-CSRF-Token"

	DefaultAntiforgeryExpiration = time.Hour

	antiforgeryNonceLength = 16
)

var (
	ErrAntiforgeryMissing = goerrors.New("antiforgery token missing", goerrors.CategoryAuth).
		WithCode(goerrors.CodeForbidden).
		WithTextCode("CSRF_MISSING")
	ErrAntiforgeryMismatch = goerrors.New("antiforgery token mismatch", goerrors.CategoryAuth).
		WithCode(goerrors.CodeForbidden).
		WithTextCode("CSRF_MISMATCH")
	ErrAntiforgeryExpired = goerrors.New("antiforgery token expired", goerrors.CategoryAuth).
		WithCode(goerrors.CodeForbidden).
		WithTextCode("CSRF_EXPIRED")
)

var safeMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace}

// Antiforgery issues stateless tokens bound to the request principal and
// checks them on unsafe methods. Tokens are exposed to views under
// AntiforgeryLocalsKey.
type Antiforgery struct {
	key        []byte
	expiration time.Duration
	now        func() time.Time
}

// NewAntiforgery uses key to sign tokens. An empty key gets a random one,
// tokens then do not survive a restart.
func NewAntiforgery(key []byte) (*Antiforgery, error) {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to generate antiforgery key")
		}
	}
	return &Antiforgery{
		key:        key,
		expiration: DefaultAntiforgeryExpiration,
		now:        time.Now,
	}, nil
}

// AntiforgeryKeyFromSecret derives the signing key from a shared secret
func AntiforgeryKeyFromSecret(secret string) []byte {
	if secret == "" {
		return nil
	}
	sum := sha256.Sum256([]byte("antiforgery:" + secret))
	return sum[:]
}

func (a *Antiforgery) WithExpiration(d time.Duration) *Antiforgery {
	if d > 0 {
		a.expiration = d
	}
	return a
}

func (a *Antiforgery) WithClock(now func() time.Time) *Antiforgery {
	if now != nil {
		a.now = now
	}
	return a
}

// Handler validates the token on unsafe methods and exposes a fresh one
// to the rest of the chain
func (a *Antiforgery) Handler(types authstate.ClaimTypes) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			key := sessionKey(ctx, types)
			if !slices.Contains(safeMethods, strings.ToUpper(ctx.Method())) {
				if err := a.Validate(requestToken(ctx), key); err != nil {
					return err
				}
			}

			token, err := a.Generate(key)
			if err != nil {
				return err
			}
			ctx.Locals(AntiforgeryLocalsKey, token)

			return ctx.Next()
		}
	}
}

// Generate returns a token for sessionKey
func (a *Antiforgery) Generate(sessionKey string) (string, error) {
	nonce := make([]byte, antiforgeryNonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to generate antiforgery nonce")
	}

	payload := fmt.Sprintf("%d:%s:%s", a.now().UTC().Unix(), hex.EncodeToString(nonce), hex.EncodeToString([]byte(sessionKey)))
	token := payload + ":" + hex.EncodeToString(a.sign(payload))

	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

// Validate checks token was issued by this key for sessionKey and has
// not expired
func (a *Antiforgery) Validate(token, sessionKey string) error {
	if token == "" {
		return ErrAntiforgeryMissing
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrAntiforgeryMismatch
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 4 {
		return ErrAntiforgeryMismatch
	}

	signature, err := hex.DecodeString(parts[3])
	if err != nil || !hmac.Equal(signature, a.sign(strings.Join(parts[:3], ":"))) {
		return ErrAntiforgeryMismatch
	}

	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(hex.EncodeToString([]byte(sessionKey)))) != 1 {
		return ErrAntiforgeryMismatch
	}

	issued, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ErrAntiforgeryMismatch
	}
	if a.now().UTC().After(time.Unix(issued, 0).Add(a.expiration)) {
		return ErrAntiforgeryExpired
	}

	return nil
}

func (a *Antiforgery) sign(payload string) []byte {
	mac := hmac.New(sha256.New, a.key)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

func requestToken(ctx router.Context) string {
	if token := ctx.FormValue(AntiforgeryFormField); token != "" {
		return token
	}
	return ctx.GetString(AntiforgeryHeaderName, "")
}

// sessionKey binds tokens to the principal, or to the client address for
// anonymous requests
func sessionKey(ctx router.Context, types authstate.ClaimTypes) string {
	if subject, ok := types.SubjectIDOf(PrincipalFromCtx(ctx)); ok && subject != "" {
		return "sub:" + subject
	}
	return "ip:" + ctx.IP()
}
