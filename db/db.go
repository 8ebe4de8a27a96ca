// Package db provides the Postgres connection helper, the integrations schema and a registry
// source backed by it.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/jgaull/fstop-notifications-twitch-chat/registry"
)

// Connect opens a Postgres connection pool for dsn and checks it is reachable.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	dbx, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := dbx.PingContext(ctx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return dbx, nil
}

// Migrate applies idempotent schema changes for the integrations table.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS integrations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			settings JSONB NOT NULL DEFAULT '{}'::jsonb,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_integrations_type_active ON integrations(type, active)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// IntegrationStore lists active integrations from Postgres. It implements registry.Source.
type IntegrationStore struct {
	DB *sql.DB
}

// ListIntegrations returns the active integrations of filter.Type in insertion order.
func (s *IntegrationStore) ListIntegrations(ctx context.Context, filter registry.Filter) ([]registry.Integration, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, settings FROM integrations WHERE type=$1 AND active ORDER BY created_at, id`, filter.Type)
	if err != nil {
		return nil, fmt.Errorf("query integrations: %w", err)
	}
	defer rows.Close()

	out := []registry.Integration{}
	for rows.Next() {
		var (
			in  registry.Integration
			raw []byte
		)
		if err := rows.Scan(&in.ID, &in.UserID, &raw); err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		if err := json.Unmarshal(raw, &in.Settings); err != nil || in.Settings == nil {
			return nil, fmt.Errorf("integration %s: settings are not an object: %w", in.ID, registry.ErrMalformedIntegration)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate integrations: %w", err)
	}
	return out, nil
}

// UpsertIntegration inserts or replaces an integration row.
func (s *IntegrationStore) UpsertIntegration(ctx context.Context, typ string, in registry.Integration, active bool) error {
	settings, err := json.Marshal(in.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO integrations (id, user_id, type, settings, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET user_id=EXCLUDED.user_id, type=EXCLUDED.type,
			settings=EXCLUDED.settings, active=EXCLUDED.active, updated_at=NOW()`,
		in.ID, in.UserID, typ, settings, active)
	if err != nil {
		return fmt.Errorf("upsert integration %s: %w", in.ID, err)
	}
	return nil
}
