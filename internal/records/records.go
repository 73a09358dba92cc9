// Package records turns uploaded contact lists into numbered (name, phone)
// pairs. Both encodings produce the same lazy sequence of Outcomes; each
// range over a sequence starts numbering from 1 again.
package records

import (
	"errors"
	"iter"
	"path/filepath"
	"strings"
)

// Skip reasons reported on dropped rows.
const (
	SkipEmptyName  = "empty name"
	SkipEmptyPhone = "empty phone"
)

// ErrUnsupported is returned for files that are neither text nor spreadsheet.
var ErrUnsupported = errors.New("records: unsupported file type")

// Record is one retained contact. Index is 1-based and contiguous across the
// retained records of one pass.
type Record struct {
	Index int
	Name  string
	Phone string
}

// Outcome is one non-blank input row: either a Record or the reason it was skipped.
// Row is the row's position in the source (line number or sheet row).
type Outcome struct {
	Record  Record
	Row     int
	Skipped string
}

// OK reports whether the row produced a record.
func (o Outcome) OK() bool { return o.Skipped == "" }

// Seq is a lazy pass over one input file. A non-nil error ends the pass.
type Seq = iter.Seq2[Outcome, error]

// Format identifies an input encoding.
type Format int

const (
	FormatText Format = iota + 1
	FormatSheet
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "txt"
	case FormatSheet:
		return "xlsx"
	default:
		return "unknown"
	}
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string { return "." + f.String() }

// FormatOf picks the encoding from a file name's extension.
func FormatOf(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return FormatText, true
	case ".xlsx":
		return FormatSheet, true
	default:
		return 0, false
	}
}

// File returns a sequence over the file at path. The file is opened when the
// sequence is ranged over and closed when the range ends.
func File(path string) Seq {
	f, ok := FormatOf(path)
	if !ok {
		return func(yield func(Outcome, error) bool) {
			yield(Outcome{}, ErrUnsupported)
		}
	}
	if f == FormatSheet {
		return Workbook(path)
	}
	return TextFile(path)
}

// NormalizePhone trims s and prefixes "+" when missing. It returns "" when
// nothing usable remains.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "+" {
		return ""
	}
	if !strings.HasPrefix(s, "+") {
		s = "+" + s
	}
	return s
}

// numberer assigns contiguous indexes to retained rows.
type numberer struct{ next int }

func (n *numberer) outcome(row int, name, phone string) Outcome {
	name = strings.TrimSpace(name)
	if name == "" {
		return Outcome{Row: row, Skipped: SkipEmptyName}
	}
	phone = NormalizePhone(phone)
	if phone == "" {
		return Outcome{Row: row, Skipped: SkipEmptyPhone}
	}
	n.next++
	return Outcome{Row: row, Record: Record{Index: n.next, Name: name, Phone: phone}}
}
