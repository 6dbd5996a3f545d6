package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of pgxpool.Pool used for schema setup.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema creates the offer journal tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS new_offers (
		account_key     TEXT        NOT NULL,
		offer_id        TEXT        NOT NULL,
		partner_steamid TEXT        NOT NULL DEFAULT '',
		is_our_offer    BOOLEAN     NOT NULL DEFAULT FALSE,
		state           SMALLINT    NOT NULL,
		message         TEXT        NOT NULL DEFAULT '',
		items_to_give   INTEGER     NOT NULL DEFAULT 0,
		items_to_receive INTEGER    NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ,
		seen_at         TIMESTAMPTZ NOT NULL,
		instance_id     TEXT        NOT NULL DEFAULT '',
		PRIMARY KEY (account_key, offer_id)
	)`,
	`CREATE INDEX IF NOT EXISTS new_offers_seen_at_idx ON new_offers (seen_at)`,
}

// EnsureSchema applies Schema. Every statement is idempotent.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
