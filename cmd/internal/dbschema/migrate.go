// Package dbschema owns pdfgate's Postgres schema and its forward-only migrations.
package dbschema

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Schema is the default schema every pdfgate store queries.
const Schema = "pdfgate"

// Migrate applies every embedded migration not yet recorded in
// <schema>.schema_migrations. Each file runs in its own transaction with
// search_path pinned to schema, so the SQL stays schema-agnostic.
func Migrate(ctx context.Context, pool *pgxpool.Pool, schema string, log *slog.Logger) (applied int, err error) {
	if pool == nil {
		return 0, errors.New("dbschema: nil pool")
	}
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(schema) == "" {
		schema = Schema
	}
	qs := pgx.Identifier{schema}.Sanitize()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+qs); err != nil {
		return 0, fmt.Errorf("create schema: %w", err)
	}
	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS `+qs+`.schema_migrations (
  id TEXT PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return 0, err
	}

	names, err := migrationNames()
	if err != nil {
		return 0, err
	}

	for _, name := range names {
		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return applied, err
		}

		id := migrationID(name, body)
		done, err := isApplied(ctx, pool, qs, id)
		if err != nil {
			return applied, err
		}
		if done {
			continue
		}

		start := time.Now()
		if err := apply(ctx, pool, qs, id, string(body)); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", name, err)
		}
		applied++
		log.Info("db.migrate.apply", "schema", schema, "name", name, "duration_ms", time.Since(start).Milliseconds())
	}

	return applied, nil
}

func migrationNames() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func migrationID(name string, body []byte) string {
	h := sha256.Sum256(body)
	return name + ":" + hex.EncodeToString(h[:])
}

func isApplied(ctx context.Context, pool *pgxpool.Pool, qs, id string) (bool, error) {
	var v string
	err := pool.QueryRow(ctx, `SELECT id FROM `+qs+`.schema_migrations WHERE id = $1`, id).Scan(&v)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, err
}

func apply(ctx context.Context, pool *pgxpool.Pool, qs, id, sqlText string) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SET LOCAL search_path TO `+qs); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, sqlText); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO `+qs+`.schema_migrations (id) VALUES ($1)`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
