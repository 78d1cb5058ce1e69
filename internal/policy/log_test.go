package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogRateLimit(t *testing.T) {
	limit, err := ParseLogRateLimit("1,burst=123,rate=44")
	require.NoError(t, err)
	assert.Equal(t, LogRateLimit{Enabled: true, Rate: 44, Unit: RateSecond, Burst: 123}, limit)

	limit, err = ParseLogRateLimit("1")
	require.NoError(t, err)
	assert.Equal(t, DefaultLogRateLimit(), limit)

	limit, err = ParseLogRateLimit("enable=0,rate=123/hour")
	require.NoError(t, err)
	assert.False(t, limit.Enabled)
	assert.Equal(t, int64(123), limit.Rate)
	assert.Equal(t, RateHour, limit.Unit)

	_, err = ParseLogRateLimit("rate=0")
	assert.Error(t, err)

	_, err = ParseLogRateLimit("rate=1/fortnight")
	assert.Error(t, err)
}

func TestLogLevelNumbers(t *testing.T) {
	assert.Equal(t, uint8(0), LogEmerg.Number())
	assert.Equal(t, uint8(7), LogDebug.Number())
	assert.Equal(t, uint8(7), LogAudit.Number(), "audit logs at debug severity")

	assert.True(t, LogInfo.Nflog())
	assert.False(t, LogNolog.Nflog())
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, LogWarning, level)

	level, err = ParseLogLevel("nolog")
	require.NoError(t, err)
	assert.Equal(t, LogNolog, level)

	_, err = ParseLogLevel("verbose")
	assert.Error(t, err)
}
