// Package pgstore is an alternative durability backend that persists
// checkpoints, run manifests, and results as rows in PostgreSQL instead of
// files on disk (§4.E "Pluggable backend"), for operators running many
// concurrent hosts against one shared results database. It implements the
// same durability.CheckpointStore / durability.ResultsStore interfaces the
// filesystem backend does; selecting it is a config flag
// (config.PostgresConfig.Enabled), not a different execution model.
package pgstore

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver, used only to drive migrations

	"github.com/sdamache/memorybench/pkg/durability"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements durability.CheckpointStore and durability.ResultsStore
// over a shared connection pool.
type Store struct {
	pool            *pgxpool.Pool
	migrationsTable string
}

// Open connects to dsn, applies pending migrations (via embedded SQL, using
// golang-migrate/migrate/v4), and returns a ready Store.
func Open(ctx context.Context, dsn, migrationsTable string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connecting: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: pinging: %w", err)
	}

	if migrationsTable == "" {
		migrationsTable = "memorybench_schema_migrations"
	}
	if err := applyMigrations(dsn, migrationsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: applying migrations: %w", err)
	}

	return &Store{pool: pool, migrationsTable: migrationsTable}, nil
}

// applyMigrations drives golang-migrate over a plain database/sql
// connection (via the pgx stdlib adapter), the same combination teacher's
// pkg/database/client.go uses for its own ent-backed schema. This
// migration connection is separate from the pgxpool.Pool the Store uses
// for queries; it is opened, used, and closed within this call.
func applyMigrations(dsn, migrationsTable string) error {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("opening migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("creating postgres migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading embedded migrations: %w", err)
	}
	defer src.Close()

	m, err := migrate.NewWithInstance("iofs", src, "memorybench", driver)
	if err != nil {
		return fmt.Errorf("constructing migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Save upserts the checkpoint row keyed by run_id (§4.E "Checkpoint
// manager"). The stored document is the whole checkpoint as JSONB so
// Validate's invariants are enforced in Go, the same as the filesystem
// backend, rather than duplicated in SQL.
func (s *Store) Save(ctx context.Context, cp *durability.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("pgstore: marshaling checkpoint: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO memorybench_checkpoints (run_id, document, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (run_id) DO UPDATE SET document = EXCLUDED.document, updated_at = now()
	`, cp.RunID, data)
	if err != nil {
		return fmt.Errorf("pgstore: saving checkpoint: %w", err)
	}
	return nil
}

// Load reads and validates the checkpoint for runID.
func (s *Store) Load(ctx context.Context, runID string) (*durability.Checkpoint, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM memorybench_checkpoints WHERE run_id = $1`, runID).Scan(&data)
	if err != nil {
		return nil, &durability.ErrCheckpointNotFound{RunID: runID}
	}

	var cp durability.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, &durability.ErrInvalidCheckpoint{RunID: runID, Reason: err.Error()}
	}
	if err := cp.Validate(); err != nil {
		return nil, &durability.ErrInvalidCheckpoint{RunID: runID, Reason: err.Error()}
	}
	return &cp, nil
}

// ListRunIDs returns run_ids newest first by updated_at.
func (s *Store) ListRunIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT run_id FROM memorybench_checkpoints ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: listing run ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// WriteManifest inserts the run manifest row once.
func (s *Store) WriteManifest(ctx context.Context, m *durability.RunManifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("pgstore: marshaling manifest: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO memorybench_manifests (run_id, document)
		VALUES ($1, $2)
		ON CONFLICT (run_id) DO UPDATE SET document = EXCLUDED.document
	`, m.RunID, data)
	return err
}

// AppendResult inserts one result row. Unlike the filesystem backend there
// is no append-queue goroutine: Postgres serializes concurrent inserts
// itself, so every caller can write directly.
func (s *Store) AppendResult(ctx context.Context, r durability.RunCaseResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("pgstore: marshaling result: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO memorybench_results (run_id, provider_name, benchmark_name, case_id, document, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.RunID, r.ProviderName, r.BenchmarkName, r.CaseID, data, r.CompletedAt)
	return err
}

// WriteSummary inserts the metrics summary row once.
func (s *Store) WriteSummary(ctx context.Context, sum *durability.MetricsSummary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("pgstore: marshaling summary: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO memorybench_summaries (run_id, document)
		VALUES ($1, $2)
		ON CONFLICT (run_id) DO UPDATE SET document = EXCLUDED.document
	`, sum.RunID, data)
	return err
}

// ReadResults reads back all result rows for runID, ordered by completed_at,
// for tests and operator tooling.
func (s *Store) ReadResults(ctx context.Context, runID string) ([]durability.RunCaseResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT document FROM memorybench_results WHERE run_id = $1 ORDER BY completed_at ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []durability.RunCaseResult
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r durability.RunCaseResult
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
