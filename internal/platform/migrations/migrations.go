// Package migrations applies the Postgres schema at startup. Statements are
// idempotent so repeated application is safe.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// statements are executed in order inside Apply. The unique constraint on
// unlocks (artist_id, request_id) is load-bearing: it backs the one-unlock-
// per-artist-per-request invariant independently of the service pre-check.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS artists (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'artist',
		credits       BIGINT NOT NULL DEFAULT 0 CHECK (credits >= 0),
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS clients (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		phone         TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS requests (
		id          TEXT PRIMARY KEY,
		client_id   TEXT NOT NULL REFERENCES clients(id),
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		event_date  TIMESTAMPTZ,
		quota       INT NOT NULL CHECK (quota > 0),
		state       TEXT NOT NULL DEFAULT 'open',
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS unlocks (
		artist_id  TEXT NOT NULL REFERENCES artists(id),
		request_id TEXT NOT NULL REFERENCES requests(id),
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (artist_id, request_id)
	)`,
	`CREATE TABLE IF NOT EXISTS credit_topups (
		reference  TEXT PRIMARY KEY,
		artist_id  TEXT NOT NULL REFERENCES artists(id),
		amount     BIGINT NOT NULL CHECK (amount > 0),
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_unlocks_request ON unlocks (request_id)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_state ON requests (state)`,
}

// Apply runs all schema statements against the database.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}
	}
	return nil
}
