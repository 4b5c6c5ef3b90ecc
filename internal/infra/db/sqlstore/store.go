package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the differences between the supported SQL backends.
type Dialect interface {
	Name() string
	// Rebind rewrites ? placeholders into the driver's native form.
	Rebind(query string) string
	// Type maps a logical column type to the backend's DDL type.
	Type(logical string) string
	// CreateIndex returns the DDL for a secondary index.
	CreateIndex(name, table, columns string) string
	// IgnoreMigrationError reports whether err means the object already exists.
	IgnoreMigrationError(err error) bool
}

// Store implements every repository port on one *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Close() error { return s.db.Close() }

// Ping is used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) exec(ctx context.Context, q execer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// QuestionRebind leaves ? placeholders untouched.
func QuestionRebind(query string) string { return query }

// DollarRebind rewrites ? into $1, $2, ... outside string literals.
func DollarRebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// placeholders returns "?,?,?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type RuleRepository struct{ *Store }

type GroupRepository struct{ *Store }

type JobRepository struct{ *Store }

type ScheduleRepository struct{ *Store }

type ScanRepository struct{ *Store }

type AuditRepository struct{ *Store }

func (s *Store) Rules() *RuleRepository         { return &RuleRepository{s} }
func (s *Store) Groups() *GroupRepository       { return &GroupRepository{s} }
func (s *Store) Jobs() *JobRepository           { return &JobRepository{s} }
func (s *Store) Schedules() *ScheduleRepository { return &ScheduleRepository{s} }
func (s *Store) Scans() *ScanRepository         { return &ScanRepository{s} }
func (s *Store) Audit() *AuditRepository        { return &AuditRepository{s} }
