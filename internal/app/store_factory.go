package app

import (
	"fmt"
	"strings"

	"github.com/shrimpsizemoose/gradeinsight/internal/store"
	"github.com/shrimpsizemoose/gradeinsight/internal/store/postgres"
	"github.com/shrimpsizemoose/gradeinsight/internal/store/sqlite"
)

// NewStore picks the dialect from the DSN: postgres:// URLs go to Postgres,
// anything else is a SQLite path (an optional sqlite:// prefix is dropped).
func NewStore(dsn, migrationsDir string) (store.GradeStore, error) {
	dbType := store.DBTypeSQLite
	if strings.HasPrefix(dsn, "postgres") {
		dbType = store.DBTypePostgres
	}

	switch dbType {
	case store.DBTypePostgres:
		s, err := postgres.NewPostgresStore(dsn, migrationsDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case store.DBTypeSQLite:
		s, err := sqlite.NewSQLiteStore(&store.DBConfig{
			DSN:           strings.TrimPrefix(dsn, "sqlite://"),
			Type:          dbType,
			MigrationsDir: migrationsDir,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unable to determine database type from DSN: %s", dsn)
	}
}
