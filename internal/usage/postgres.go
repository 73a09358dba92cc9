package usage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresLog stores entries in the usage_log table.
type PostgresLog struct {
	db *sqlx.DB
}

// NewPostgresLog wraps an open connection pool.
func NewPostgresLog(db *sqlx.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

type entryRow struct {
	LoggedAt time.Time `db:"logged_at"`
	UserID   int64     `db:"user_id"`
	Username string    `db:"username"`
	Action   string    `db:"action"`
	Input    string    `db:"input_name"`
	Outputs  int       `db:"outputs"`
	Sent     int       `db:"sent"`
	Failed   int       `db:"failed"`
}

// Record inserts e.
func (l *PostgresLog) Record(ctx context.Context, e Entry) error {
	_, err := l.db.NamedExecContext(ctx, `
		INSERT INTO usage_log (logged_at, user_id, username, action, input_name, outputs, sent, failed)
		VALUES (:logged_at, :user_id, :username, :action, :input_name, :outputs, :sent, :failed)`,
		entryRow{
			LoggedAt: e.Time.UTC(),
			UserID:   e.UserID,
			Username: e.Username,
			Action:   e.Action,
			Input:    e.Input,
			Outputs:  e.Outputs,
			Sent:     e.Sent,
			Failed:   e.Failed,
		})
	if err != nil {
		return fmt.Errorf("usage: insert: %w", err)
	}
	return nil
}

// Export streams the table as CSV.
func (l *PostgresLog) Export(ctx context.Context, w io.Writer) error {
	rows, err := l.db.QueryxContext(ctx, `
		SELECT logged_at, user_id, username, action, input_name, outputs, sent, failed
		FROM usage_log ORDER BY id`)
	if err != nil {
		return fmt.Errorf("usage: select: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for rows.Next() {
		var r entryRow
		if err := rows.StructScan(&r); err != nil {
			return fmt.Errorf("usage: scan: %w", err)
		}
		e := Entry{
			Time:     r.LoggedAt,
			UserID:   r.UserID,
			Username: r.Username,
			Action:   r.Action,
			Input:    r.Input,
			Outputs:  r.Outputs,
			Sent:     r.Sent,
			Failed:   r.Failed,
		}
		if err := cw.Write(e.row()); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("usage: rows: %w", err)
	}
	cw.Flush()
	return cw.Error()
}
