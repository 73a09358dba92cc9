package usage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Atoilah/vcf-confreter/core/logger"
)

// CSVLog appends entries to a CSV file, writing the header when the file is new.
type CSVLog struct {
	mu   sync.Mutex
	path string
}

// NewCSVLog returns a log stored at path.
func NewCSVLog(path string) *CSVLog {
	return &CSVLog{path: path}
}

// Record appends e.
func (l *CSVLog) Record(_ context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("usage: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("usage: open %s: %w", l.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("usage: stat %s: %w", l.path, err)
	}
	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("usage: write header: %w", err)
		}
	}
	if err := w.Write(e.row()); err != nil {
		return fmt.Errorf("usage: write entry: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("usage: flush: %w", err)
	}
	logger.USAGE.Debug("usage recorded",
		slog.String("event", "usage.record"),
		slog.Int64("user_id", e.UserID),
		slog.String("action", e.Action),
	)
	return nil
}

// Export copies the file to w; a missing file exports just the header.
func (l *CSVLog) Export(_ context.Context, w io.Writer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		cw := csv.NewWriter(w)
		if err := cw.Write(Header); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	}
	if err != nil {
		return fmt.Errorf("usage: open %s: %w", l.path, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("usage: export: %w", err)
	}
	return nil
}
