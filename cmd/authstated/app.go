package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	authstate "github.com/goliatone/go-auth-state"
	"github.com/goliatone/go-auth-state/cmd/authstated/config"
	"github.com/goliatone/go-auth-state/store"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-print"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

type App struct {
	config      *gconfig.Container[*config.Config]
	logger      *glog.BaseLogger
	bunDB       *bun.DB
	persistence *persistence.Client
	repo        store.RepositoryManager
	printConfig bool
}

func (a *App) Config() *config.Config {
	return a.config.Raw()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func (a *App) SetDB(db *bun.DB) {
	a.bunDB = db
}

func (a *App) SetPersistence(client *persistence.Client) {
	a.persistence = client
}

func (a *App) SetRepository(repo store.RepositoryManager) {
	a.repo = repo
}

// ActivitySink logs activity events on the "activity" logger
func (a *App) ActivitySink() authstate.ActivitySink {
	logger := a.GetLogger("activity")
	return authstate.ActivitySinkFunc(func(ctx context.Context, event authstate.ActivityEvent) error {
		args := []any{"event", event.EventType, "subject", event.SubjectID}
		if event.Reason != "" {
			args = append(args, "reason", event.Reason)
		}
		if event.Err != nil {
			args = append(args, "error", event.Err)
		}
		logger.Info("activity", args...)
		return nil
	})
}

func (a *App) Close() error {
	if a.bunDB == nil {
		return nil
	}
	return a.bunDB.Close()
}

func WithLogger(app *App) {
	app.logger = glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("authstated"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
}

func WithConfig(ctx context.Context, app *App) error {
	cfg := gconfig.New(&config.Config{}).
		WithLogger(app.GetLogger("config"))

	if err := cfg.Load(ctx); err != nil {
		return err
	}

	app.config = cfg

	if app.printConfig {
		fmt.Println(print.MaybeHighlightJSON(cfg.Raw()))
	}

	return nil
}

func WithPersistence(ctx context.Context, app *App) error {
	cfg := app.Config().GetPersistence()

	db, err := sql.Open(sqliteshim.ShimName, cfg.GetDSN())
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "unable to open database").
			WithMetadata(map[string]any{"dsn": cfg.GetDSN()})
	}

	persistence.RegisterModel((*store.User)(nil))
	persistence.RegisterModel((*store.UserRole)(nil))

	client, err := persistence.New(cfg, db, sqlitedialect.New())
	if err != nil {
		_ = db.Close()
		return errors.Wrap(err, errors.CategoryInternal, "unable to create persistence client")
	}

	client.SetLogger(app.GetLogger("persistence"))

	migrationsFS, err := fs.Sub(store.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		_ = db.Close()
		return err
	}
	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel("store/data/sql/migrations"),
		persistence.WithValidationTargets("sqlite"),
	)
	if err := client.ValidateDialects(ctx); err != nil {
		_ = db.Close()
		return err
	}

	bunDB := client.DB()
	if cfg.GetDebug() {
		bunDB.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := bunDB.PingContext(ctx); err != nil {
		_ = bunDB.Close()
		return errors.Wrap(err, errors.CategoryInternal, "unable to reach database")
	}

	repo := store.NewRepositoryManager(bunDB)
	if err := repo.Validate(); err != nil {
		_ = bunDB.Close()
		return err
	}

	app.SetPersistence(client)
	app.SetDB(bunDB)
	app.SetRepository(repo)

	return nil
}

// Migrate applies the pending store migrations
func (a *App) Migrate(ctx context.Context) error {
	if err := a.persistence.Migrate(ctx); err != nil {
		return err
	}

	if report := a.persistence.Report(); report != nil && !report.IsZero() {
		a.GetLogger("migrate").Info("migrations applied", "report", report.String())
	}

	return nil
}

// ScopeFactory builds identity scopes from the identity config
func (a *App) ScopeFactory() *store.ScopeFactory {
	id := a.Config().GetIdentity()
	return store.NewScopeFactory(a.bunDB, a.repo.Users()).
		WithSecurityStampSupport(id.GetSecurityStampSupport()).
		WithLoggerProvider(a.logger)
}

func WaitExitSignal(ctx context.Context) os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	defer signal.Stop(ch)

	select {
	case sig := <-ch:
		return sig
	case <-ctx.Done():
		return nil
	}
}
