// Package vcard renders contact cards in the fixed vCard 3.0 subset the bot
// emits, and reads that subset back.
package vcard

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Pattern placeholders.
const (
	IndexToken = "{index}"
	NameToken  = "{name}"
)

// Ext is the output file extension.
const Ext = ".vcf"

var (
	// ErrEmptyPhone is returned when a card would carry no phone number.
	ErrEmptyPhone = errors.New("vcard: empty phone")
	// ErrBadIndex is returned for non-positive sequence indexes.
	ErrBadIndex = errors.New("vcard: index must be positive")
)

// FormattedName expands pattern for one record: every {index} becomes the
// decimal index, every {name} the name seed, and " <index>" is appended so
// names stay unique when the pattern has no placeholder. Line breaks are
// removed to keep the card one field per line.
func FormattedName(index int, nameSeed, pattern string) string {
	idx := strconv.Itoa(index)
	name := strings.ReplaceAll(pattern, IndexToken, idx)
	name = strings.ReplaceAll(name, NameToken, nameSeed)
	name = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(name)
	return name + " " + idx
}

// Format renders one card block, including its trailing blank line.
func Format(index int, nameSeed, phone, pattern string) (string, error) {
	if index <= 0 {
		return "", ErrBadIndex
	}
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}
	if strings.ContainsAny(phone, "\r\n") {
		return "", fmt.Errorf("vcard: phone %q spans lines", phone)
	}
	var b strings.Builder
	b.Grow(64 + len(pattern) + len(phone))
	b.WriteString("BEGIN:VCARD\n")
	b.WriteString("VERSION:3.0\n")
	b.WriteString("FN:")
	b.WriteString(FormattedName(index, nameSeed, pattern))
	b.WriteString("\n")
	b.WriteString("TEL;TYPE=CELL:")
	b.WriteString(phone)
	b.WriteString("\n")
	b.WriteString("END:VCARD\n\n")
	return b.String(), nil
}

// Card is one parsed card.
type Card struct {
	Name  string
	Phone string
}

// Parse reads back cards written by Format. Unknown properties are ignored.
func Parse(r io.Reader) ([]Card, error) {
	sc := bufio.NewScanner(r)
	var (
		cards []Card
		cur   *Card
		line  int
	)
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		switch {
		case text == "BEGIN:VCARD":
			if cur != nil {
				return nil, fmt.Errorf("vcard: line %d: nested BEGIN", line)
			}
			cur = &Card{}
		case text == "END:VCARD":
			if cur == nil {
				return nil, fmt.Errorf("vcard: line %d: END without BEGIN", line)
			}
			cards = append(cards, *cur)
			cur = nil
		case cur == nil:
		case strings.HasPrefix(text, "FN:"):
			cur.Name = strings.TrimPrefix(text, "FN:")
		case strings.HasPrefix(text, "TEL"):
			if _, v, ok := strings.Cut(text, ":"); ok {
				cur.Phone = v
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("vcard: %w", err)
	}
	if cur != nil {
		return nil, errors.New("vcard: unterminated card")
	}
	return cards, nil
}
