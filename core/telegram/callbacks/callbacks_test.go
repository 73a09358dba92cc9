package callbacks

import (
	"testing"

	"github.com/stretchr/testify/assert"

	tele "gopkg.in/telebot.v4"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name         string
		cb           *tele.Callback
		key, payload string
	}{
		{"nil", nil, "", ""},
		{"unique", &tele.Callback{Unique: "flow", Data: "split"}, "flow", "split"},
		{"encoded", &tele.Callback{Data: "\fflow|seq_custom"}, "flow", "seq_custom"},
		{"no payload", &tele.Callback{Data: "\fcancel"}, "cancel", ""},
		{"payload with bar", &tele.Callback{Data: "\fflow|a|b"}, "flow", "a|b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, p := Parse(tt.cb)
			assert.Equal(t, tt.key, k)
			assert.Equal(t, tt.payload, p)
		})
	}
}
