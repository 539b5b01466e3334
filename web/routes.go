package web

import (
	"embed"
	"errors"
	"io/fs"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/django/v3"
	authstate "github.com/goliatone/go-auth-state"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

//go:embed views
var viewsFS embed.FS

// NewViewEngine loads the embedded django templates
func NewViewEngine() (*django.Engine, error) {
	sub, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to scope embedded templates")
	}
	return django.NewFileSystem(http.FS(sub), ".django"), nil
}

// RegisterRoutes mounts the controller on app. The principal middleware
// must run before these handlers.
func RegisterRoutes[T any](app router.Router[T], sc *SessionController) {
	app.Get("/", sc.Index).SetName("session.index")
	app.Get("/session/state", sc.State).SetName("session.state")
	app.Get("/session/revalidate", sc.Revalidate).SetName("session.revalidate")
	app.Post("/Account/Logout", sc.Logout).SetName("account.logout")
}

// NewApp wires the view engine, the principal and antiforgery middleware
// and the session routes into a fiber backed server.
func NewApp(cfg Config, scopes authstate.ScopeFactory, provider authstate.LoggerProvider, opts ...ControllerOption) (router.Server[*fiber.App], error) {
	_, logger := authstate.ResolveLogger("authstate.web", provider, nil)

	validator, err := NewSessionValidator(cfg, WithValidatorLogger(logger))
	if err != nil {
		return nil, err
	}

	engine, err := NewViewEngine()
	if err != nil {
		return nil, err
	}

	antiforgery, err := NewAntiforgery(AntiforgeryKeyFromSecret(cfg.GetSigningKey()))
	if err != nil {
		return nil, err
	}

	opts = append([]ControllerOption{WithControllerLoggerProvider(provider)}, opts...)
	sc := NewSessionController(scopes, cfg, opts...)
	resolver := NewPrincipalResolver(validator, sc.ClaimTypes(), logger)

	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		app := fiber.New(fiber.Config{
			PassLocalsToViews:     true,
			Views:                 engine,
			DisableStartupMessage: true,
			ErrorHandler:          NewErrorHandler(logger),
		})
		app.Use(recover.New())
		return app
	})

	srv.Router().WithLogger(logger)

	srv.Router().Use(PrincipalMiddleware(resolver,
		FromAuthHeader("Bearer"),
		FromCookie(cfg.GetCookieName()),
	))
	srv.Router().Use(antiforgery.Handler(sc.ClaimTypes()))

	RegisterRoutes(srv.Router(), sc)

	srv.WrappedRouter().Get("/session/watch",
		FiberPrincipalMiddleware(resolver, cfg.GetCookieName()),
		sc.Watch,
	)

	return srv, nil
}

// NewErrorHandler renders errors as JSON. Server errors are logged and
// answered with a generic message.
func NewErrorHandler(logger authstate.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := ""

		var fe *fiber.Error
		var richErr *goerrors.Error
		switch {
		case errors.As(err, &fe):
			code = fe.Code
			message = fe.Message
		case errors.As(err, &richErr):
			if richErr.Code != 0 {
				code = richErr.Code
			}
			message = richErr.Message
		}

		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed", "error", err, "method", c.Method(), "path", c.Path(), "status", code)
			message = http.StatusText(code)
		}

		return c.Status(code).JSON(fiber.Map{"error": message})
	}
}
