package vcard

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatExactBytes(t *testing.T) {
	got, err := Format(1, "Alice", "+123", "Contact {index}")
	require.NoError(t, err)
	want := "BEGIN:VCARD\nVERSION:3.0\nFN:Contact 1 1\nTEL;TYPE=CELL:+123\nEND:VCARD\n\n"
	assert.Equal(t, want, got)
}

func TestFormattedName(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		seed    string
		pattern string
		want    string
	}{
		{"no placeholder", 7, "Bob", "Client", "Client 7"},
		{"index twice", 3, "Bob", "{index}-{index}", "3-3 3"},
		{"name seed", 2, "Bob", "{name} #{index}", "Bob #2 2"},
		{"line breaks", 1, "x", "a\r\nb\nc", "a b c 1"},
		{"empty pattern", 4, "x", "", " 4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormattedName(tt.index, tt.seed, tt.pattern))
		})
	}
}

func TestFormatRejects(t *testing.T) {
	_, err := Format(0, "a", "+1", "p")
	assert.ErrorIs(t, err, ErrBadIndex)
	_, err = Format(1, "a", "  ", "p")
	assert.ErrorIs(t, err, ErrEmptyPhone)
	_, err = Format(1, "a", "+1\n2", "p")
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	phones := []string{"+628111", "+1 (555) 010", "+44-20-7946", "+OnlyName"}
	var b strings.Builder
	for i, p := range phones {
		card, err := Format(i+1, "seed", p, "Batch {index}")
		require.NoError(t, err)
		b.WriteString(card)
	}

	cards, err := Parse(strings.NewReader(b.String()))
	require.NoError(t, err)
	require.Len(t, cards, len(phones))
	for i, c := range cards {
		assert.Equal(t, phones[i], c.Phone)
		assert.Equal(t, fmt.Sprintf("Batch %d %d", i+1, i+1), c.Name)
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader("BEGIN:VCARD\nFN:x\n"))
	assert.Error(t, err)
	_, err = Parse(strings.NewReader("END:VCARD\n"))
	assert.Error(t, err)
	_, err = Parse(strings.NewReader("BEGIN:VCARD\nBEGIN:VCARD\n"))
	assert.Error(t, err)
}
