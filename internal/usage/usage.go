// Package usage keeps an append-only record of finished conversions and
// merges, and exports it as CSV for owners.
package usage

import (
	"context"
	"io"
	"strconv"
	"time"
)

// Actions recorded in the log.
const (
	ActionConvert = "convert"
	ActionMerge   = "merge"
	ActionText    = "to_txt"
)

// Entry is one finished flow.
type Entry struct {
	Time     time.Time
	UserID   int64
	Username string
	Action   string
	Input    string
	Outputs  int
	Sent     int
	Failed   int
}

// Log stores entries.
type Log interface {
	Record(ctx context.Context, e Entry) error
	// Export writes every entry as CSV, header first, oldest first.
	Export(ctx context.Context, w io.Writer) error
}

// Header is the CSV column order shared by every backend.
var Header = []string{"timestamp", "user_id", "username", "action", "input", "outputs", "sent", "failed"}

func (e Entry) row() []string {
	return []string{
		e.Time.UTC().Format(time.RFC3339),
		strconv.FormatInt(e.UserID, 10),
		e.Username,
		e.Action,
		e.Input,
		strconv.Itoa(e.Outputs),
		strconv.Itoa(e.Sent),
		strconv.Itoa(e.Failed),
	}
}
