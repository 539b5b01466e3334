package authstate

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the structured logger used across the package
type Logger = glog.Logger

// LoggerProvider resolves named loggers
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// Account holds the attributes of a stored user that the
// snapshot needs besides what the principal already carries
type Account interface {
	ID() string
	UserName() string
	Email() string
	FirstName() string
	LastName() string
}

// IdentityStore is the membership store used to validate and
// enrich principals
type IdentityStore interface {
	// FindUserBySubjectID returns ErrUserNotFound when there is no user
	FindUserBySubjectID(ctx context.Context, subjectID string) (Account, error)
	SupportsSecurityStamp() bool
	GetSecurityStamp(ctx context.Context, account Account) (string, error)
	GetRoles(ctx context.Context, account Account) ([]string, error)
}

// Scope is a short lived handle to the identity store. A scope
// must not be reused across revalidations.
type Scope interface {
	IdentityStore() IdentityStore
	Close() error
}

// ScopeFactory creates fresh scopes
type ScopeFactory interface {
	CreateScope(ctx context.Context) (Scope, error)
}

// ScopeFactoryFunc adapts a function to the ScopeFactory interface.
type ScopeFactoryFunc func(ctx context.Context) (Scope, error)

// CreateScope implements ScopeFactory.
func (f ScopeFactoryFunc) CreateScope(ctx context.Context) (Scope, error) {
	return f(ctx)
}

// PersistingCallback runs while the persisting window is open
type PersistingCallback func(ctx context.Context) error

// PersistingSubscription removes a persisting callback. Close is idempotent.
type PersistingSubscription interface {
	Close()
}

// PersistenceRegistrar is the server side of the transport
type PersistenceRegistrar interface {
	RegisterOnPersisting(cb PersistingCallback) PersistingSubscription
	PersistAsJSON(key string, value any) error
}

// SnapshotSource is the client side of the transport
type SnapshotSource interface {
	TryTakeFromJSON(key string, dst any) (bool, error)
}

// ResolveLogger returns the provider and the logger registered under name.
// A nil provider falls back to one that always returns logger, and a nil
// logger falls back to the default logger.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if logger == nil {
		logger = defaultLogger(name)
	}

	if provider == nil {
		return staticProvider{logger: logger}, logger
	}

	if resolved := provider.GetLogger(name); resolved != nil {
		return provider, resolved
	}

	return staticProvider{logger: logger}, logger
}

type staticProvider struct {
	logger Logger
}

func (p staticProvider) GetLogger(string) Logger {
	return p.logger
}

type defLogger struct {
	name string
}

func defaultLogger(name string) Logger {
	return defLogger{name: name}
}

func (d defLogger) Trace(msg string, args ...any) { d.print("TRC", msg, args...) }
func (d defLogger) Debug(msg string, args ...any) { d.print("DBG", msg, args...) }
func (d defLogger) Info(msg string, args ...any)  { d.print("INF", msg, args...) }
func (d defLogger) Warn(msg string, args ...any)  { d.print("WRN", msg, args...) }
func (d defLogger) Error(msg string, args ...any) { d.print("ERR", msg, args...) }
func (d defLogger) Fatal(msg string, args ...any) { d.print("FTL", msg, args...) }

func (d defLogger) WithContext(context.Context) Logger {
	return d
}

func (d defLogger) print(level, msg string, args ...any) {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(level)
	b.WriteString("] ")
	if d.name != "" {
		b.WriteString(strings.ToUpper(d.name))
		b.WriteString(" ")
	}
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	fmt.Println(b.String())
}
