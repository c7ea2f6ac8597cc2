package cmd

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestPreview(t *testing.T) {
	assert.Equal(t, "short note", preview("short\nnote", 40))

	long := strings.Repeat("便签", 30)
	out := preview(long, 40)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, strings.Repeat("便签", 20)+"...", out)

	assert.Equal(t, "abc...", preview("abcdef", 3))
	assert.Equal(t, "", preview("", 40))
}

func TestNewBootstrapLogger(t *testing.T) {
	assert.False(t, newBootstrapLogger(false).Core().Enabled(zapcore.DebugLevel))
	assert.True(t, newBootstrapLogger(true).Core().Enabled(zapcore.DebugLevel))
	assert.NotNil(t, bootstrapLogger)
}
