package sqlite

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/shrimpsizemoose/gradeinsight/internal/store"
)

type SQLiteStore struct {
	store.BaseStore
}

func NewSQLiteStore(config *store.DBConfig) (*SQLiteStore, error) {
	if config.Type != "" && config.Type != store.DBTypeSQLite {
		return nil, fmt.Errorf("sqlite store cannot open a %s database", config.Type)
	}

	db, err := sqlx.Connect("sqlite3", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	// one writer; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{BaseStore: store.BaseStore{
		DB: db,
		Converter: func(query string) string {
			return query
		},
		IsUniqueViolation: isUniqueViolation,
	}}

	if config.MigrationsDir != "" {
		if err := s.ApplyMigrations(config.MigrationsDir); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	return s, nil
}

func (s *SQLiteStore) ApplyMigrations(dir string) error {
	return s.BaseStore.ApplyMigrations(dir, translateToSQLite)
}

var sqliteReplacements = []struct{ from, to string }{
	{"BIGSERIAL PRIMARY KEY", "INTEGER PRIMARY KEY AUTOINCREMENT"},
	{"BIGINT", "INTEGER"},
	{"DOUBLE PRECISION", "REAL"},
	{"TIMESTAMPTZ", "TIMESTAMP"},
	{"now()", "CURRENT_TIMESTAMP"},
}

// translateToSQLite converts Postgres SQL to SQLite dialect
func translateToSQLite(sql string) string {
	result := sql
	for _, r := range sqliteReplacements {
		result = strings.ReplaceAll(result, r.from, r.to)
	}
	return result
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
