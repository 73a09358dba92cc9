// Package format renders values for Telegram messages.
package format

import (
	"strconv"
	"strings"
)

var mdV1 = strings.NewReplacer(`_`, `\_`, `*`, `\*`, "`", "\\`", `[`, `\[`)

// EscapeMarkdown escapes user-supplied text for the legacy Markdown parse mode.
func EscapeMarkdown(text string) string {
	return mdV1.Replace(text)
}

// Limit renders an optional usage limit.
func Limit(limit *int64) string {
	if limit == nil {
		return "unlimited"
	}
	return strconv.FormatInt(*limit, 10)
}
