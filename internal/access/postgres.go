package access

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PostgresBackend stores entries in access_entries and owners in access_owners
// (see migrations/000001_access_list.up.sql).
type PostgresBackend struct {
	db *sqlx.DB
}

// NewPostgresBackend wraps an open connection pool.
func NewPostgresBackend(db *sqlx.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

type entryRow struct {
	UserID      int64         `db:"user_id"`
	AccessLimit sql.NullInt64 `db:"access_limit"`
}

// Load reads both tables.
func (b *PostgresBackend) Load(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Users: make(map[int64]Entry)}

	var rows []entryRow
	if err := b.db.SelectContext(ctx, &rows, `SELECT user_id, access_limit FROM access_entries`); err != nil {
		return snap, fmt.Errorf("select access_entries: %w", err)
	}
	for _, r := range rows {
		e := Entry{}
		if r.AccessLimit.Valid {
			e.Limit = ptr(r.AccessLimit.Int64)
		}
		snap.Users[r.UserID] = e
	}

	if err := b.db.SelectContext(ctx, &snap.Owners, `SELECT user_id FROM access_owners ORDER BY user_id`); err != nil {
		return snap, fmt.Errorf("select access_owners: %w", err)
	}
	return snap, nil
}

// Apply persists only the row touched by ch.
func (b *PostgresBackend) Apply(ctx context.Context, snap Snapshot, ch Change) error {
	switch ch.Kind {
	case ChangeUpsert:
		e := snap.Users[ch.UserID]
		var limit sql.NullInt64
		if e.Limit != nil {
			limit = sql.NullInt64{Int64: *e.Limit, Valid: true}
		}
		_, err := b.db.ExecContext(ctx, `
			INSERT INTO access_entries (user_id, access_limit, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (user_id) DO UPDATE
			SET access_limit = EXCLUDED.access_limit, updated_at = now()`,
			ch.UserID, limit)
		if err != nil {
			return fmt.Errorf("upsert access entry %d: %w", ch.UserID, err)
		}
		return nil
	case ChangeDelete:
		if _, err := b.db.ExecContext(ctx, `DELETE FROM access_entries WHERE user_id = $1`, ch.UserID); err != nil {
			return fmt.Errorf("delete access entry %d: %w", ch.UserID, err)
		}
		return nil
	case ChangeOwners:
		return b.replaceOwners(ctx, snap.Owners)
	default:
		return fmt.Errorf("unknown change kind %d", ch.Kind)
	}
}

func (b *PostgresBackend) replaceOwners(ctx context.Context, owners []int64) (err error) {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin owners tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM access_owners`); err != nil {
		return fmt.Errorf("clear owners: %w", err)
	}
	for _, id := range owners {
		if _, err = tx.ExecContext(ctx, `INSERT INTO access_owners (user_id) VALUES ($1)`, id); err != nil {
			return fmt.Errorf("insert owner %d: %w", id, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit owners: %w", err)
	}
	return nil
}
