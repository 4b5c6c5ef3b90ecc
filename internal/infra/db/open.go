package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryanwahyu/compliance-pulse/internal/infra/db/mysql"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/db/postgres"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/db/sqlite"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/db/sqlstore"
)

// Open connects to driver and wraps the handle in a Store.
func Open(ctx context.Context, driver, dsn string) (*sqlstore.Store, error) {
	var (
		conn    *sql.DB
		dialect sqlstore.Dialect
		err     error
	)
	switch driver {
	case "sqlite", "":
		conn, err = sqlite.Connect(ctx, dsn)
		dialect = sqlite.Dialect{}
	case "mysql":
		conn, err = mysql.Connect(ctx, dsn)
		dialect = mysql.Dialect{}
	case "postgres":
		conn, err = postgres.Connect(ctx, dsn)
		dialect = postgres.Dialect{}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	return sqlstore.New(conn, dialect), nil
}
