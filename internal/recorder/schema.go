package recorder

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the feed_messages table.
const Schema = `
CREATE TABLE IF NOT EXISTS feed_messages (
	adapter_id  TEXT        NOT NULL,
	seq         BIGINT      NOT NULL,
	received_at TIMESTAMPTZ NOT NULL,
	kind        TEXT        NOT NULL,
	payload     BYTEA       NOT NULL,
	decoded     BOOLEAN     NOT NULL,
	PRIMARY KEY (adapter_id, seq)
);
CREATE INDEX IF NOT EXISTS feed_messages_received_at_idx ON feed_messages (received_at);
`

// Execer runs a statement. Satisfied by *pgxpool.Pool and *pgx.Conn.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema creates the recorder table and index if they do not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create feed_messages: %w", err)
	}
	return nil
}
