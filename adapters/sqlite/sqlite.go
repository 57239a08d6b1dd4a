// Package sqlite provides the SQLite execution adapter.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/scopedb/core/schema"
	"github.com/artpar/scopedb/domain/coltype"
)

// ErrSchemaMismatch is returned by EnsureSchema when the database was
// created for a different schema.
var ErrSchemaMismatch = errors.New("database schema does not match")

const schemaTable = "scopedb_schema"

// DB wraps a SQLite database connection pool.
type DB struct {
	*sqlx.DB
}

// Open creates a new SQLite database connection.
func Open(path string) (*DB, error) {
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Set pragmas for performance
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return &DB{DB: db}, nil
}

// EnsureSchema creates the tables and indexes of s in a fresh database and
// records the schema fingerprint. A database already holding s is left
// untouched; one holding a different schema fails with ErrSchemaMismatch.
func (db *DB) EnsureSchema(ctx context.Context, s *schema.Validated) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+schemaTable+` (
			name TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			definition TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema table: %w", err)
	}

	var recorded string
	err = tx.GetContext(ctx, &recorded, "SELECT fingerprint FROM "+schemaTable+" WHERE name = 'main'")
	switch {
	case err == nil:
		if recorded != s.Fingerprint() {
			return fmt.Errorf("%w: recorded %s, declared %s", ErrSchemaMismatch, recorded, s.Fingerprint())
		}
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("read schema fingerprint: %w", err)
	}

	for _, t := range s.Tables() {
		if _, err := tx.ExecContext(ctx, BuildCreateTableSQL(t)); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name(), err)
		}
		for _, stmt := range BuildIndexSQL(t) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create index on %s: %w", t.Name(), err)
			}
		}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO "+schemaTable+" (name, fingerprint, definition) VALUES ('main', ?, ?)",
		s.Fingerprint(), s.String())
	if err != nil {
		return fmt.Errorf("record schema fingerprint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// RecordedFingerprint returns the fingerprint stored by EnsureSchema, or ""
// for a database that has none.
func (db *DB) RecordedFingerprint(ctx context.Context) (string, error) {
	var exists int
	err := db.GetContext(ctx, &exists,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", schemaTable)
	if err != nil {
		return "", fmt.Errorf("inspect database: %w", err)
	}
	if exists == 0 {
		return "", nil
	}

	var fp string
	err = db.GetContext(ctx, &fp, "SELECT fingerprint FROM "+schemaTable+" WHERE name = 'main'")
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read schema fingerprint: %w", err)
	}
	return fp, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// BuildCreateTableSQL generates the CREATE TABLE statement for t.
func BuildCreateTableSQL(t *schema.Table) string {
	columns := []string{schema.KeyColumn + " INTEGER PRIMARY KEY"}
	var constraints []string

	for _, c := range t.Columns() {
		col := quote(c.Name()) + " " + sqlType(c)
		if !c.Nullable() {
			col += " NOT NULL"
		}
		columns = append(columns, col)

		if c.Unique() {
			constraints = append(constraints, fmt.Sprintf("UNIQUE(%s)", quote(c.Name())))
		}

		if target := c.Type().RefTable(); target != "" && !c.NoReference() {
			constraints = append(constraints, fmt.Sprintf(
				"FOREIGN KEY(%s) REFERENCES %s(%s)",
				quote(c.Name()), quote(target), schema.KeyColumn,
			))
		}
	}

	stmt := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s",
		quote(t.Name()),
		strings.Join(columns, ",\n  "),
	)

	if len(constraints) > 0 {
		stmt += ",\n  " + strings.Join(constraints, ",\n  ")
	}

	stmt += "\n)"

	return stmt
}

// BuildIndexSQL generates CREATE INDEX statements for indexed columns.
func BuildIndexSQL(t *schema.Table) []string {
	var stmts []string
	for _, c := range t.Columns() {
		if !c.Indexed() {
			continue
		}
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
			quote("idx_"+t.Name()+"_"+c.Name()), quote(t.Name()), quote(c.Name()),
		))
	}
	return stmts
}

func sqlType(c *schema.Column) string {
	switch c.Type().Base().Kind {
	case coltype.KindFloat64:
		return "REAL"
	case coltype.KindText:
		return "TEXT"
	case coltype.KindByteBlob:
		return "BLOB"
	default:
		return "INTEGER"
	}
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
