package records

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

const maxLineBytes = 1 << 20

// Lines parses line-oriented input: one `name[,phone]` per line. The line is
// split on its first comma; a missing or blank phone reuses the name. Blank
// lines produce nothing and do not consume an index.
//
// The reader is consumed by the first range; use TextFile for a restartable pass.
func Lines(r io.Reader) Seq {
	return func(yield func(Outcome, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

		var n numberer
		row := 0
		for sc.Scan() {
			row++
			line := sc.Text()
			if row == 1 {
				line = strings.TrimPrefix(line, "\uFEFF")
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			name, phone, _ := strings.Cut(line, ",")
			// Columns after the phone are ignored.
			phone, _, _ = strings.Cut(phone, ",")
			if strings.TrimSpace(phone) == "" {
				phone = name
			}
			if !yield(n.outcome(row, name, phone), nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(Outcome{Row: row + 1}, fmt.Errorf("records: read line %d: %w", row+1, err))
		}
	}
}

// TextFile returns a sequence that opens path on every range.
func TextFile(path string) Seq {
	return func(yield func(Outcome, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(Outcome{}, fmt.Errorf("records: %w", err))
			return
		}
		defer f.Close()
		for o, err := range Lines(f) {
			if !yield(o, err) {
				return
			}
		}
	}
}
