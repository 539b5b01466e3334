package store

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

var models = []any{
	(*User)(nil),
	(*UserRole)(nil),
}

// CreateSchema creates the users and user_roles tables from the models.
// Deployments apply the SQL migrations from GetMigrationsFS instead.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range models {
		_, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create table")
		}
	}
	return nil
}
