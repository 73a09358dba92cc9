package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `john\_doe \*bold\* \[x\]`, EscapeMarkdown("john_doe *bold* [x]"))
	assert.Equal(t, "plain", EscapeMarkdown("plain"))
}

func TestLimit(t *testing.T) {
	n := int64(5)
	assert.Equal(t, "unlimited", Limit(nil))
	assert.Equal(t, "5", Limit(&n))
}
