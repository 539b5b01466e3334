package web

import (
	"context"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	authstate "github.com/goliatone/go-auth-state"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// ErrInvalidReturnURL rejects logout redirects that leave this host
var ErrInvalidReturnURL = goerrors.New("returnUrl must be a local path", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode("INVALID_RETURN_URL")

// SessionController hands the server authentication state to the client
// side of the application. Every request gets its own persistent state and
// server provider, mirroring a single render pass.
type SessionController struct {
	scopes     authstate.ScopeFactory
	claimTypes authstate.ClaimTypes
	cookieName string
	interval   time.Duration
	heartbeat  time.Duration
	activity   authstate.ActivitySink
	logger     authstate.Logger
	provider   authstate.LoggerProvider
}

// ControllerOption configures a SessionController
type ControllerOption func(*SessionController)

func WithControllerClaimTypes(types authstate.ClaimTypes) ControllerOption {
	return func(sc *SessionController) {
		sc.claimTypes = types.WithDefaults()
	}
}

func WithControllerActivitySink(sink authstate.ActivitySink) ControllerOption {
	return func(sc *SessionController) {
		sc.activity = sink
	}
}

func WithControllerLoggerProvider(provider authstate.LoggerProvider) ControllerOption {
	return func(sc *SessionController) {
		sc.provider, sc.logger = authstate.ResolveLogger("authstate.web", provider, sc.logger)
	}
}

func NewSessionController(scopes authstate.ScopeFactory, cfg Config, opts ...ControllerOption) *SessionController {
	provider, logger := authstate.ResolveLogger("authstate.web", nil, nil)
	sc := &SessionController{
		scopes:     scopes,
		claimTypes: authstate.DefaultClaimTypes(),
		cookieName: cfg.GetCookieName(),
		interval:   authstate.DefaultRevalidationInterval,
		heartbeat:  DefaultHeartbeatInterval,
		logger:     logger,
		provider:   provider,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sc)
		}
	}

	return sc
}

// ClaimTypes returns the claim type table used for tokens and snapshots
func (sc *SessionController) ClaimTypes() authstate.ClaimTypes {
	return sc.claimTypes
}

// Index renders the page with the persisted state embedded and the
// principal the client side restores from it.
func (sc *SessionController) Index(ctx router.Context) error {
	payload, err := sc.persist(ctx.Context(), PrincipalFromCtx(ctx))
	if err != nil {
		return err
	}

	client, err := sc.restore(payload)
	if err != nil {
		return err
	}

	data := router.ViewContext{
		"title":              "Session",
		"payload":            payload,
		"claims":             client.Principal().Claims(),
		AntiforgeryLocalsKey: ctx.Locals(AntiforgeryLocalsKey),
	}
	maps.Copy(data, TemplateHelpers(client.Principal(), sc.claimTypes))

	return ctx.Render("index", data)
}

type sessionStateResponse struct {
	Payload       string            `json:"payload"`
	Authenticated bool              `json:"authenticated"`
	Claims        []authstate.Claim `json:"claims"`
}

type revalidateResponse struct {
	Valid bool `json:"valid"`
}

// State returns the persisted payload as JSON
func (sc *SessionController) State(ctx router.Context) error {
	payload, err := sc.persist(ctx.Context(), PrincipalFromCtx(ctx))
	if err != nil {
		return err
	}

	client, err := sc.restore(payload)
	if err != nil {
		return err
	}

	claims := client.Principal().Claims()
	if claims == nil {
		claims = []authstate.Claim{}
	}

	return ctx.JSON(router.StatusOK, sessionStateResponse{
		Payload:       payload,
		Authenticated: client.Principal().IsAuthenticated(),
		Claims:        claims,
	})
}

// Revalidate checks the request principal against the identity store and
// clears the session cookie when it is no longer valid.
func (sc *SessionController) Revalidate(ctx router.Context) error {
	principal := PrincipalFromCtx(ctx)
	if !principal.IsAuthenticated() {
		return ctx.JSON(router.StatusUnauthorized, revalidateResponse{Valid: false})
	}

	provider := authstate.NewServerStateProvider(sc.scopes, nil, sc.serverOptions()...)
	defer provider.Close()

	if !provider.Revalidate(ctx.Context(), authstate.AuthenticationState{Principal: principal}) {
		sc.clearSessionCookie(ctx)
		return ctx.JSON(router.StatusUnauthorized, revalidateResponse{Valid: false})
	}

	return ctx.JSON(router.StatusOK, revalidateResponse{Valid: true})
}

// Logout clears the session cookie and redirects to returnUrl, which must
// be a local path.
func (sc *SessionController) Logout(ctx router.Context) error {
	target, ok := LocalRedirectPath(ctx.FormValue("returnUrl"))
	if !ok {
		return ErrInvalidReturnURL
	}

	sc.clearSessionCookie(ctx)
	if subject, ok := sc.claimTypes.SubjectIDOf(PrincipalFromCtx(ctx)); ok {
		sc.logger.Info("signed out", "subject", subject)
	}

	return ctx.Redirect(target, http.StatusFound)
}

func (sc *SessionController) clearSessionCookie(ctx router.Context) {
	ctx.Cookie(&router.Cookie{
		Name:     sc.cookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (sc *SessionController) persist(ctx context.Context, principal *authstate.Principal) (string, error) {
	persistence := authstate.NewPersistentState().WithLoggerProvider(sc.provider)
	provider := authstate.NewServerStateProvider(sc.scopes, persistence, sc.serverOptions()...)
	defer provider.Close()

	provider.SetAuthenticationState(authstate.CompletedState(authstate.AuthenticationState{
		Principal: principal,
	}))

	payload, err := persistence.Persist(ctx)
	if err != nil {
		sc.logger.Error("persist authentication state", "error", err)
		return "", err
	}
	return payload, nil
}

func (sc *SessionController) restore(payload string) (*authstate.ClientStateProvider, error) {
	restored, err := authstate.RestorePersistentState(payload)
	if err != nil {
		return nil, err
	}

	return authstate.NewClientStateProvider(restored,
		authstate.WithClientClaimTypes(sc.claimTypes),
		authstate.WithClientLoggerProvider(sc.provider),
		authstate.WithClientActivitySink(sc.activity),
	), nil
}

func (sc *SessionController) serverOptions() []authstate.ServerOption {
	return []authstate.ServerOption{
		authstate.WithClaimTypes(sc.claimTypes),
		authstate.WithServerLoggerProvider(sc.provider),
		authstate.WithServerActivitySink(sc.activity),
	}
}

// LocalRedirectPath turns returnUrl into a path on this host. Absolute
// URLs, scheme relative URLs and backslash tricks are rejected.
func LocalRedirectPath(returnURL string) (string, bool) {
	target := "/" + strings.TrimPrefix(strings.TrimSpace(returnURL), "/")

	if strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return "", false
	}

	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}

	return target, true
}
