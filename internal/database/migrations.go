package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"

	"github.com/lineage-dev/lineage/internal/types"
)

//go:embed schema.sql
var initialSchema string

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending migrations.
	Migrate(ctx context.Context) error

	// CurrentVersion returns the current schema version, 0 when no
	// migration has been applied.
	CurrentVersion(ctx context.Context) (int, error)
}

type migration struct {
	version int
	name    string
	up      string
}

type migrator struct {
	db         *DB
	migrations []migration
}

// NewMigrator creates a new database migrator.
func NewMigrator(db *DB) Migrator {
	return &migrator{
		db: db,
		migrations: []migration{
			{version: 1, name: "initial_schema", up: initialSchema},
		},
	}
}

func (m *migrator) Migrate(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return err
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if mig.version <= current {
			continue
		}
		err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.up); err != nil {
				return types.WrapError(types.DB_MIGRATION_FAILED,
					"migration "+mig.name+" failed", err)
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, CURRENT_TIMESTAMP)",
				mig.version, mig.name)
			if err != nil {
				return types.WrapError(types.DB_MIGRATION_FAILED,
					"failed to record migration "+mig.name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *migrator) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.conn.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, types.WrapError(types.DB_MIGRATION_FAILED, "failed to read schema version", err)
	}
	return version, nil
}

func (m *migrator) ensureVersionTable(ctx context.Context) error {
	_, err := m.db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return types.WrapError(types.DB_MIGRATION_FAILED, "failed to create migrations table", err)
	}
	return nil
}
