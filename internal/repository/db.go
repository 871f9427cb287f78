package repository

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/feichai0017/pdf-processor/internal/repository/migrations"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the database named by driver and dsn and applies the
// embedded migrations.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	var (
		sqlDriver string
		dialect   string
		fsys      fs.FS
		dir       string
	)

	switch driver {
	case DriverPostgres:
		sqlDriver, dialect, fsys, dir = "pgx", "postgres", migrations.Postgres, "postgres"
	case DriverSQLite:
		sqlDriver, dialect, fsys, dir = "sqlite", "sqlite3", migrations.SQLite, "sqlite"
		dsn = sqliteDSN(dsn)
		if path := sqlitePath(dsn); path != "" {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// one writer at a time; pragmas apply per connection
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := RunMigrations(ctx, db, dialect, fsys, dir); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// RunMigrations applies every pending migration found under dir in fsys.
func RunMigrations(ctx context.Context, db *sql.DB, dialect string, fsys fs.FS, dir string) error {
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	goose.SetLogger(goose.NopLogger())

	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// sqliteDSN turns a bare file path into a DSN with the pragmas the
// repository relies on: foreign keys for cascades and a sortable time format.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}
