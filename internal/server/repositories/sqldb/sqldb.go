// Package sqldb opens the deployment/computer-sync database and vends
// repository implementations for it. The default backend is a single
// embedded SQLite file (deploySync.db); a PostgreSQL manager exists for
// installs that share approval state across several servers.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/Snshadow/update-server-server-sync/internal/dbx"
	"github.com/Snshadow/update-server-server-sync/internal/server/repositories/computers"
	"github.com/Snshadow/update-server-server-sync/internal/server/repositories/deployments"
	"github.com/Snshadow/update-server-server-sync/internal/server/repositories/sqldb/migrations"
)

// RepositoryManager vends repository implementations bound to a DBTX.
type RepositoryManager interface {
	Deployments(db dbx.DBTX) deployments.Repository
	Computers(db dbx.DBTX) computers.Repository

	// RunMigrations brings the schema up to date.
	RunMigrations(ctx context.Context, db *sql.DB) error
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

func runMigrations(ctx context.Context, db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// SQLiteRepositoryManager vends SQLite-backed repositories.
type SQLiteRepositoryManager struct{}

func (SQLiteRepositoryManager) Deployments(db dbx.DBTX) deployments.Repository {
	return deployments.NewSQLiteRepository(db)
}

func (SQLiteRepositoryManager) Computers(db dbx.DBTX) computers.Repository {
	return computers.NewSQLiteRepository(db)
}

func (SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return runMigrations(ctx, db, "sqlite3")
}

// PostgresRepositoryManager vends PostgreSQL-backed repositories (pgx).
type PostgresRepositoryManager struct{}

func (PostgresRepositoryManager) Deployments(db dbx.DBTX) deployments.Repository {
	return deployments.NewPostgresRepository(db)
}

func (PostgresRepositoryManager) Computers(db dbx.DBTX) computers.Repository {
	return computers.NewPostgresRepository(db)
}

func (PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return runMigrations(ctx, db, "pgx")
}

// OpenSQLite opens (creating when absent) the embedded database at path
// with write-ahead logging enabled, and migrates its schema.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, RepositoryManager, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open deploy sync db: %w", err)
	}
	if rows, err := db.QueryContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("enable wal: %w", err)
	} else {
		rows.Close()
	}

	m := SQLiteRepositoryManager{}
	if err := m.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate deploy sync db: %w", err)
	}
	return db, m, nil
}

// OpenPostgres connects to the shared approval database and migrates its
// schema.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, RepositoryManager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open deploy sync db: %w", err)
	}

	m := PostgresRepositoryManager{}
	if err := m.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate deploy sync db: %w", err)
	}
	return db, m, nil
}
