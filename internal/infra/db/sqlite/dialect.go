package sqlite

import (
	"fmt"

	"github.com/bryanwahyu/compliance-pulse/internal/infra/db/sqlstore"
)

type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Rebind(query string) string { return sqlstore.QuestionRebind(query) }

func (Dialect) Type(logical string) string {
	switch logical {
	case sqlstore.TypeID, sqlstore.TypeString, sqlstore.TypeText:
		return "TEXT"
	case sqlstore.TypeTimestamp:
		return "TIMESTAMP"
	case sqlstore.TypeFloat:
		return "REAL"
	case sqlstore.TypeBool:
		return "BOOLEAN"
	default:
		return "INTEGER"
	}
}

func (Dialect) CreateIndex(name, table, columns string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, table, columns)
}

func (Dialect) IgnoreMigrationError(error) bool { return false }
