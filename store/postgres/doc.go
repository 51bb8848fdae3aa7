// Package postgres implements task.Store using pgx/v5 with raw SQL.
// Features: SKIP LOCKED batch claiming, dedup-key upserts via a partial
// unique index, embedded SQL migrations.
package postgres
