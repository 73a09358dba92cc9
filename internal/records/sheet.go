package records

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrNoSheet is returned for workbooks without any worksheet.
var ErrNoSheet = errors.New("records: workbook has no sheets")

// RowReader is a forward-only cursor over spreadsheet rows.
type RowReader interface {
	Next() bool
	Columns() ([]string, error)
	Error() error
}

// Rows parses tabular input: column one is the name, column two the phone.
// Rows missing either are reported as skipped with their 1-based row number.
// No header detection is attempted; a header row without a usable phone is
// skipped like any other.
func Rows(rr RowReader) Seq {
	return func(yield func(Outcome, error) bool) {
		var n numberer
		row := 0
		for rr.Next() {
			row++
			cols, err := rr.Columns()
			if err != nil {
				yield(Outcome{Row: row}, fmt.Errorf("records: read row %d: %w", row, err))
				return
			}
			if blankRow(cols) {
				continue
			}
			var name, phone string
			if len(cols) > 0 {
				name = cols[0]
			}
			if len(cols) > 1 {
				phone = cols[1]
			}
			if !yield(n.outcome(row, name, phone), nil) {
				return
			}
		}
		if err := rr.Error(); err != nil {
			yield(Outcome{Row: row}, fmt.Errorf("records: read rows: %w", err))
		}
	}
}

// Workbook returns a sequence over the first worksheet of the .xlsx file at
// path. The workbook is opened on every range and streamed row by row.
func Workbook(path string) Seq {
	return func(yield func(Outcome, error) bool) {
		f, err := excelize.OpenFile(path)
		if err != nil {
			yield(Outcome{}, fmt.Errorf("records: open workbook: %w", err))
			return
		}
		defer f.Close()

		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			yield(Outcome{}, ErrNoSheet)
			return
		}
		rows, err := f.Rows(sheets[0])
		if err != nil {
			yield(Outcome{}, fmt.Errorf("records: sheet %q: %w", sheets[0], err))
			return
		}
		defer rows.Close()

		for o, err := range Rows(rawRows{rows}) {
			if !yield(o, err) {
				return
			}
		}
	}
}

// rawRows reads unformatted cell values so long phone numbers stored as
// numbers are not rendered in scientific notation.
type rawRows struct{ *excelize.Rows }

func (r rawRows) Columns() ([]string, error) {
	return r.Rows.Columns(excelize.Options{RawCellValue: true})
}

func blankRow(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
