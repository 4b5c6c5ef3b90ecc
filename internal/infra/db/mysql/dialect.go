package mysql

import (
	"errors"
	"fmt"

	driver "github.com/go-sql-driver/mysql"

	"github.com/bryanwahyu/compliance-pulse/internal/infra/db/sqlstore"
)

// MySQL error numbers tolerated while migrating.
const (
	errTableExists = 1050
	errDupKeyName  = 1061
)

type Dialect struct{}

func (Dialect) Name() string { return "mysql" }

func (Dialect) Rebind(query string) string { return sqlstore.QuestionRebind(query) }

func (Dialect) Type(logical string) string {
	switch logical {
	case sqlstore.TypeID:
		return "VARCHAR(64)"
	case sqlstore.TypeString:
		return "VARCHAR(255)"
	case sqlstore.TypeText:
		return "LONGTEXT"
	case sqlstore.TypeTimestamp:
		return "DATETIME(6)"
	case sqlstore.TypeFloat:
		return "DOUBLE"
	case sqlstore.TypeBool:
		return "BOOLEAN"
	default:
		return "BIGINT"
	}
}

// CreateIndex has no IF NOT EXISTS form in MySQL; duplicates are tolerated instead.
func (Dialect) CreateIndex(name, table, columns string) string {
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", name, table, columns)
}

func (Dialect) IgnoreMigrationError(err error) bool {
	var me *driver.MySQLError
	if errors.As(err, &me) {
		return me.Number == errDupKeyName || me.Number == errTableExists
	}
	return false
}
