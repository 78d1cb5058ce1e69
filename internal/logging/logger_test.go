package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleHandlerFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Config{Level: LevelDebug, Output: &buf})
	logger.Info("hello", "key", "value", "spaced", "two words")

	line := buf.String()
	assert.Contains(t, line, "[info]")
	assert.Contains(t, line, "hello")
	assert.Contains(t, line, "key=value")
	assert.Contains(t, line, `spaced="two words"`)
}

func TestComponentPromotion(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Config{Level: LevelDebug, Output: &buf}).WithComponent("compiler")
	logger.Warn("bad rule")

	line := buf.String()
	assert.Contains(t, line, "[warn]")
	assert.Contains(t, line, "compiler: bad rule")
	// component must not be duplicated as a key=value attribute
	assert.NotContains(t, line, "component=")
}

func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Config{Level: LevelWarn, Output: &buf})
	logger.Info("quiet")
	assert.Empty(t, buf.String())

	logger.SetLevel(LevelDebug)
	logger.Debug("loud")
	assert.Contains(t, buf.String(), "loud")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"":        LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "level %q", in)
	}

	_, err := ParseLevel("shout")
	require.Error(t, err)
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Config{Level: LevelInfo, Output: &buf, JSON: true})
	logger.Info("structured", "cycle", 3)

	require.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), `"cycle":3`)
}
