package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChoices(t *testing.T) {
	m := Choices("flow", []string{"Yes", "No", "Maybe"}, []string{"y", "n", "m"})

	require.Len(t, m.InlineKeyboard, 2)
	assert.Len(t, m.InlineKeyboard[0], 2)
	assert.Len(t, m.InlineKeyboard[1], 1)
	assert.Equal(t, "Yes", m.InlineKeyboard[0][0].Text)
	assert.Equal(t, "flow", m.InlineKeyboard[0][0].Unique)
	assert.Equal(t, "m", m.InlineKeyboard[1][0].Data)
}

func TestChoicesIgnoresUnpairedLabels(t *testing.T) {
	m := Choices("flow", []string{"Yes", "No"}, []string{"y"})
	require.Len(t, m.InlineKeyboard, 1)
	assert.Len(t, m.InlineKeyboard[0], 1)
}
