// Package recorder persists received feed messages to PostgreSQL.
//
// Messages are buffered in memory, accumulated into batches and written
// with pgx batch inserts. Inserts are append-only and idempotent on
// (adapter_id, seq), so replaying a batch after a partial failure never
// duplicates rows.
package recorder
