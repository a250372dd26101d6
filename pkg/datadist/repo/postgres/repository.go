// Package postgres provides a PostgreSQL-backed push registry.
//
// Expected schema:
//
//	CREATE TABLE package_version (
//	    id          UUID PRIMARY KEY,
//	    name        TEXT NOT NULL,
//	    top_hash    TEXT NOT NULL,
//	    message     TEXT,
//	    destination TEXT NOT NULL,
//	    entry_count INTEGER NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX package_version_name_idx ON package_version (name, created_at);
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datadist/dataset-distribute/pkg/datadist/bundle"
)

// DBTX allows using either a database connection pool or a transaction.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Registry implements bundle.Registry using PostgreSQL.
type Registry struct {
	db DBTX
}

// New creates a new PostgreSQL registry.
func New(db DBTX) *Registry {
	return &Registry{db: db}
}

// NewWithPool creates a new PostgreSQL registry from a connection pool.
func NewWithPool(pool *pgxpool.Pool) *Registry {
	return &Registry{db: pool}
}

func (r *Registry) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "package_version") {
				return fmt.Errorf("package version already recorded")
			}
			return fmt.Errorf("duplicate entry")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("record not found")
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// RecordVersion stores the record of a completed push.
func (r *Registry) RecordVersion(ctx context.Context, version *bundle.PackageVersion) error {
	query := `
		INSERT INTO package_version (
			id, name, top_hash, message, destination, entry_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		version.ID, version.Name, version.TopHash, version.Message,
		version.Destination, version.EntryCount, version.CreatedAt)
	if err != nil {
		return r.handlePostgresError("record version", err)
	}
	return nil
}

// ListVersions returns all recorded versions of a package, oldest first.
func (r *Registry) ListVersions(ctx context.Context, name string) ([]*bundle.PackageVersion, error) {
	query := `
		SELECT id, name, top_hash, message, destination, entry_count, created_at
		FROM package_version
		WHERE name = $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, name)
	if err != nil {
		return nil, r.handlePostgresError("list versions", err)
	}
	defer rows.Close()

	var versions []*bundle.PackageVersion
	for rows.Next() {
		var v bundle.PackageVersion
		if err := rows.Scan(&v.ID, &v.Name, &v.TopHash, &v.Message,
			&v.Destination, &v.EntryCount, &v.CreatedAt); err != nil {
			return nil, r.handlePostgresError("scan version", err)
		}
		versions = append(versions, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list versions", err)
	}
	return versions, nil
}

// LatestVersion returns the most recently recorded version of a package.
func (r *Registry) LatestVersion(ctx context.Context, name string) (*bundle.PackageVersion, error) {
	query := `
		SELECT id, name, top_hash, message, destination, entry_count, created_at
		FROM package_version
		WHERE name = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var v bundle.PackageVersion
	err := r.db.QueryRow(ctx, query, name).Scan(&v.ID, &v.Name, &v.TopHash,
		&v.Message, &v.Destination, &v.EntryCount, &v.CreatedAt)
	if err != nil {
		return nil, r.handlePostgresError("latest version", err)
	}
	return &v, nil
}
