package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/bryanwahyu/compliance-pulse/internal/infra/db/sqlstore"
)

type Dialect struct{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) Rebind(query string) string { return sqlstore.DollarRebind(query) }

func (Dialect) Type(logical string) string {
	switch logical {
	case sqlstore.TypeID:
		return "VARCHAR(64)"
	case sqlstore.TypeString:
		return "VARCHAR(255)"
	case sqlstore.TypeText:
		return "TEXT"
	case sqlstore.TypeTimestamp:
		return "TIMESTAMPTZ"
	case sqlstore.TypeFloat:
		return "DOUBLE PRECISION"
	case sqlstore.TypeBool:
		return "BOOLEAN"
	default:
		return "BIGINT"
	}
}

func (Dialect) CreateIndex(name, table, columns string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, table, columns)
}

// IgnoreMigrationError tolerates duplicate_table and duplicate_object.
func (Dialect) IgnoreMigrationError(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "42P07" || pe.Code == "42710"
	}
	return false
}
