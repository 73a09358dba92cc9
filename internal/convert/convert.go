// Package convert drives a record sequence through the card formatter and
// writes the cards to one or more .vcf files.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/Atoilah/vcf-confreter/core/logger"
	"github.com/Atoilah/vcf-confreter/internal/records"
	"github.com/Atoilah/vcf-confreter/internal/vcard"
)

var (
	// ErrNoRecords is returned when no row of the input produced a card.
	ErrNoRecords = errors.New("convert: no valid contacts in input")
	// ErrInvalidOptions is returned for unusable options.
	ErrInvalidOptions = errors.New("convert: invalid options")
)

const progressEvery = 500

// Options controls one conversion.
type Options struct {
	// Pattern is the naming template handed to vcard.Format.
	Pattern string
	// PageSize > 0 splits the output into numbered files of at most PageSize cards.
	PageSize int
	// BaseName is the output name without extension; it is sanitized.
	BaseName string
	// SequenceStart is the first page number; values < 1 mean 1.
	SequenceStart int
	// Dir receives the output files.
	Dir string
	// Progress, when set, receives the running card count.
	Progress func(cards int)
}

// Skip is a dropped input row.
type Skip struct {
	Row    int
	Reason string
}

// Report is the result of a conversion. Files is the delivery manifest in
// creation order.
type Report struct {
	Files   []string
	Cards   int
	Skipped []Skip
}

// Convert formats every retained record and flushes full pages as it goes.
// Per-row failures skip the row; only I/O failures and cancellation abort.
// On error, files already written are returned in the report so the caller
// can remove them.
func Convert(ctx context.Context, seq records.Seq, opts Options) (Report, error) {
	var rep Report
	base := SanitizeBase(opts.BaseName)
	if base == "" || opts.Dir == "" || opts.PageSize < 0 {
		return rep, ErrInvalidOptions
	}
	page := opts.SequenceStart
	if page < 1 {
		page = 1
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return rep, fmt.Errorf("convert: %w", err)
	}

	start := time.Now()
	var (
		buf     strings.Builder
		inPage  int
		flushTo = func(name string) error {
			path := filepath.Join(opts.Dir, name)
			if err := atomic.WriteFile(path, strings.NewReader(buf.String())); err != nil {
				return fmt.Errorf("convert: write %s: %w", name, err)
			}
			rep.Files = append(rep.Files, path)
			logger.CONV.Debug("page flushed",
				slog.String("event", "convert.flush"),
				slog.String("file", name),
				slog.Int("cards", inPage),
			)
			buf.Reset()
			inPage = 0
			return nil
		}
	)

	for o, err := range seq {
		if err != nil {
			return rep, fmt.Errorf("convert: %w", err)
		}
		if !o.OK() {
			rep.Skipped = append(rep.Skipped, Skip{Row: o.Row, Reason: o.Skipped})
			logger.CONV.Warn("row skipped",
				slog.String("event", "convert.skip"),
				slog.Int("row", o.Row),
				slog.String("cause", o.Skipped),
			)
			continue
		}
		card, ferr := vcard.Format(o.Record.Index, o.Record.Name, o.Record.Phone, opts.Pattern)
		if ferr != nil {
			rep.Skipped = append(rep.Skipped, Skip{Row: o.Row, Reason: ferr.Error()})
			logger.CONV.Warn("row skipped",
				slog.String("event", "convert.skip"),
				slog.Int("row", o.Row),
				slog.String("err", ferr.Error()),
			)
			continue
		}
		buf.WriteString(card)
		inPage++
		rep.Cards++

		if opts.PageSize > 0 && inPage == opts.PageSize {
			if err := flushTo(PageName(base, page)); err != nil {
				return rep, err
			}
			page++
		}
		if rep.Cards%progressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			if opts.Progress != nil {
				opts.Progress(rep.Cards)
			}
		}
	}

	if inPage > 0 {
		name := base + vcard.Ext
		if opts.PageSize > 0 {
			name = PageName(base, page)
		}
		if err := flushTo(name); err != nil {
			return rep, err
		}
	}
	if rep.Cards == 0 {
		return rep, ErrNoRecords
	}

	logger.CONV.Info("conversion finished",
		slog.String("event", "convert.done"),
		slog.Int("files", len(rep.Files)),
		slog.Int("cards", rep.Cards),
		slog.Int("skipped", len(rep.Skipped)),
		slog.Int("page_size", opts.PageSize),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return rep, nil
}

// PageName is the file name of a numbered page: base and page number with no separator.
func PageName(base string, page int) string {
	return base + strconv.Itoa(page) + vcard.Ext
}

// SanitizeBase turns a user-supplied output name into a safe file name stem.
// A trailing .vcf is dropped; path separators and reserved characters become "_".
func SanitizeBase(name string) string {
	name = strings.TrimSpace(name)
	if strings.EqualFold(filepath.Ext(name), vcard.Ext) {
		name = strings.TrimSpace(name[:len(name)-len(vcard.Ext)])
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, ". ")
	if r := []rune(name); len(r) > maxBaseRunes {
		name = string(r[:maxBaseRunes])
	}
	return name
}

const maxBaseRunes = 96
