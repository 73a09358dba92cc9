package records

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func collect(t *testing.T, seq Seq) []Outcome {
	t.Helper()
	var out []Outcome
	for o, err := range seq {
		require.NoError(t, err)
		out = append(out, o)
	}
	return out
}

func kept(outs []Outcome) []Record {
	var recs []Record
	for _, o := range outs {
		if o.OK() {
			recs = append(recs, o.Record)
		}
	}
	return recs
}

func TestLines(t *testing.T) {
	in := "Alice,123\n\n  \nBob, +456 \nOnlyName\n,789\nCarol,\n"
	outs := collect(t, Lines(strings.NewReader(in)))

	assert.Equal(t, []Record{
		{Index: 1, Name: "Alice", Phone: "+123"},
		{Index: 2, Name: "Bob", Phone: "+456"},
		{Index: 3, Name: "OnlyName", Phone: "+OnlyName"},
		{Index: 4, Name: "Carol", Phone: "+Carol"},
	}, kept(outs))

	require.Len(t, outs, 5, "blank lines produce no outcome")
	assert.Equal(t, 6, outs[3].Row)
	assert.Equal(t, SkipEmptyName, outs[3].Skipped)
}

func TestLinesIgnoresExtraColumns(t *testing.T) {
	outs := collect(t, Lines(strings.NewReader("Dan,12,34\nA,123,x\n")))
	assert.Equal(t, []Record{
		{Index: 1, Name: "Dan", Phone: "+12"},
		{Index: 2, Name: "A", Phone: "+123"},
	}, kept(outs))
}

func TestLinesStripsBOMAndCR(t *testing.T) {
	outs := collect(t, Lines(strings.NewReader("\uFEFFEve,1\r\nFay,2\r\n")))
	assert.Equal(t, []Record{
		{Index: 1, Name: "Eve", Phone: "+1"},
		{Index: 2, Name: "Fay", Phone: "+2"},
	}, kept(outs))
}

func TestDroppedRowDoesNotConsumeIndex(t *testing.T) {
	outs := collect(t, Lines(strings.NewReader("A,1\n ,  \nB,2\n")))
	recs := kept(outs)
	require.Len(t, recs, 2)
	assert.Equal(t, 2, recs[1].Index)
}

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"123":    "+123",
		" +44 1": "+44 1",
		"   ":    "",
		"+":      "",
		"":       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePhone(in), "input %q", in)
	}
}

type fakeRows struct {
	rows [][]string
	i    int
	err  error
}

func (f *fakeRows) Next() bool {
	if f.i >= len(f.rows) {
		return false
	}
	f.i++
	return true
}

func (f *fakeRows) Columns() ([]string, error) { return f.rows[f.i-1], nil }
func (f *fakeRows) Error() error               { return f.err }

func TestRows(t *testing.T) {
	rr := &fakeRows{rows: [][]string{
		{"Name", ""},
		{"Alice", "123"},
		{},
		{"", "555"},
		{"Bob"},
		{"Carol", "+62 811"},
	}}
	outs := collect(t, Rows(rr))

	assert.Equal(t, []Record{
		{Index: 1, Name: "Alice", Phone: "+123"},
		{Index: 2, Name: "Carol", Phone: "+62 811"},
	}, kept(outs))

	var skipped []int
	for _, o := range outs {
		if !o.OK() {
			skipped = append(skipped, o.Row)
		}
	}
	assert.Equal(t, []int{1, 4, 5}, skipped)
}

func TestRowsSurfacesReaderError(t *testing.T) {
	rr := &fakeRows{rows: [][]string{{"A", "1"}}, err: errors.New("corrupt")}
	var gotErr error
	for _, err := range Rows(rr) {
		if err != nil {
			gotErr = err
		}
	}
	assert.ErrorContains(t, gotErr, "corrupt")
}

func TestWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Alice", 628123456789}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Bob", "+1 555"}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]any{"NoPhone"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	seq := File(path)
	for pass := 0; pass < 2; pass++ {
		outs := collect(t, seq)
		assert.Equal(t, []Record{
			{Index: 1, Name: "Alice", Phone: "+628123456789"},
			{Index: 2, Name: "Bob", Phone: "+1 555"},
		}, kept(outs), "pass %d", pass)
		require.Len(t, outs, 3)
		assert.Equal(t, 4, outs[2].Row)
	}
}

func TestTextFileRestartable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.TXT")
	require.NoError(t, os.WriteFile(path, []byte("A,1\nB,2\n"), 0o600))

	first := kept(collect(t, File(path)))
	second := kept(collect(t, File(path)))
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
}

func TestFileUnsupported(t *testing.T) {
	for _, err := range File("contacts.csv") {
		assert.ErrorIs(t, err, ErrUnsupported)
	}
	_, ok := FormatOf("a.xls")
	assert.False(t, ok)
	f, ok := FormatOf("A.XLSX")
	assert.True(t, ok)
	assert.Equal(t, ".xlsx", f.Ext())
}
