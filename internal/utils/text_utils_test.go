package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestTruncateText(t *testing.T) {
	assert := assert.New(t)
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal("short", tp.TruncateText("short", 100))
	assert.Equal("anything", tp.TruncateText("anything", 0))

	long := strings.Repeat("a", 200)
	out := tp.TruncateText(long, 100)
	assert.Len(out, 100)
	assert.True(strings.HasSuffix(out, truncationMarker))

	// a multi-byte rune is never split
	emoji := strings.Repeat("🚨", 50)
	out = tp.TruncateText(emoji, 101)
	assert.True(utf8.ValidString(out))
	assert.LessOrEqual(len(out), 101)
}

func TestSanitizeUTF8(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal(t, "valid ✓", tp.SanitizeUTF8("valid ✓"))
	assert.Equal(t, "ab", tp.SanitizeUTF8("a\xffb"))
	assert.Equal(t, "ab", tp.ProcessText("a\xffb", 100))
}
