package logger

import (
	"log/slog"
	"strings"
)

// statuses accepted for the "status" field. Aliases map to their canonical
// form; unknown values are kept as given.
var statuses = map[string]string{
	"ok":        "ok",
	"success":   "ok",
	"fail":      "fail",
	"failed":    "fail",
	"error":     "fail",
	"retry":     "retry",
	"skip":      "skip",
	"skipped":   "skip",
	"partial":   "partial",
	"timeout":   "timeout",
	"cancelled": "cancelled",
	"canceled":  "cancelled",
	"limited":   "rate_limited",
}

func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

func normalizeStatus(s string) string {
	key := strings.ToLower(strings.TrimSpace(s))
	if v, ok := statuses[key]; ok {
		return v
	}
	return key
}

// defaultKeyOrder puts the fields an operator scans first at the head of a
// line: who, which flow, what happened to which file. Other keys follow
// alphabetically.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"flow",
	"step",
	"cb_key",
	"duration_ms",
	"file",
	"format",
	"size",
	"files",
	"cards",
	"skipped",
	"sent",
	"failed",
	"limit",
	"attempt",
	"attempts",
	"backoff_ms",
	"retryable",
	"err",
}
