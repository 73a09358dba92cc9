package access

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/natefinch/atomic"

	"github.com/Atoilah/vcf-confreter/core/logger"
)

// OwnersKey is the reserved top-level key holding the owner list in the JSON file.
const OwnersKey = "owners"

// FileBackend keeps the access list in a single JSON document:
//
//	{
//	    "123": {"access_limit": 5},
//	    "456": {"access_limit": null},
//	    "owners": [123]
//	}
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend persisting to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

type fileEntry struct {
	AccessLimit *int64 `json:"access_limit"`
}

// Load reads the document; a missing or empty file yields an empty snapshot.
func (b *FileBackend) Load(_ context.Context) (Snapshot, error) {
	snap := Snapshot{Users: make(map[int64]Entry)}

	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("read %s: %w", b.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return snap, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return snap, fmt.Errorf("decode %s: %w", b.path, err)
	}
	for key, val := range raw {
		if key == OwnersKey {
			if err := json.Unmarshal(val, &snap.Owners); err != nil {
				return snap, fmt.Errorf("decode %s owners: %w", b.path, err)
			}
			continue
		}
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			logger.ACL.Warn("skipping malformed key",
				slog.String("event", "access.load"),
				slog.String("file", b.path),
				slog.String("payload", key),
			)
			continue
		}
		var fe fileEntry
		if err := json.Unmarshal(val, &fe); err != nil {
			return snap, fmt.Errorf("decode %s entry %s: %w", b.path, key, err)
		}
		snap.Users[id] = Entry{Limit: fe.AccessLimit}
	}
	return snap, nil
}

// Apply rewrites the whole document atomically.
func (b *FileBackend) Apply(_ context.Context, snap Snapshot, _ Change) error {
	doc := make(map[string]any, len(snap.Users)+1)
	for id, e := range snap.Users {
		doc[strconv.FormatInt(id, 10)] = fileEntry{AccessLimit: e.Limit}
	}
	owners := slices.Clone(snap.Owners)
	if owners == nil {
		owners = []int64{}
	}
	doc[OwnersKey] = owners

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", b.path, err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(b.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := atomic.WriteFile(b.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", b.path, err)
	}
	return nil
}
