package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCidr(t *testing.T) {
	c, err := ParseCidr("10.0.0.0/8")
	require.NoError(t, err)
	assert.Equal(t, FamilyV4, c.Family())
	assert.Equal(t, "10.0.0.0/8", c.String())
	assert.False(t, c.IsHost())

	c, err = ParseCidr("192.168.0.1")
	require.NoError(t, err)
	assert.True(t, c.IsHost())
	assert.Equal(t, "192.168.0.1", c.String())

	c, err = ParseCidr("fd80::1/64")
	require.NoError(t, err)
	assert.Equal(t, FamilyV6, c.Family())
	assert.Equal(t, 64, c.Bits())

	_, err = ParseCidr("10.0.0.0/33")
	assert.Error(t, err)

	_, err = ParseCidr("not-an-address")
	assert.Error(t, err)
}

func TestParseIPRange(t *testing.T) {
	r, err := ParseIPRange("192.168.0.1-192.168.255.255")
	require.NoError(t, err)
	assert.Equal(t, FamilyV4, r.Family())

	_, err = ParseIPRange("192.168.255.255-192.168.0.1")
	assert.Error(t, err, "descending range")

	_, err = ParseIPRange("10.0.0.1-fd80::1")
	assert.Error(t, err, "mixed families")

	_, err = ParseIPRange("10.0.0.1")
	assert.Error(t, err)
}

func TestParseIPList(t *testing.T) {
	list, err := ParseIPList("10.0.0.0/8,192.168.0.0-192.168.255.255,172.16.0.1")
	require.NoError(t, err)
	assert.Equal(t, FamilyV4, list.Family())
	assert.Len(t, list.Entries, 3)
	assert.NotNil(t, list.Entries[1].Range)

	list, err = ParseIPList("fd80::1/64")
	require.NoError(t, err)
	assert.Equal(t, FamilyV6, list.Family())

	_, err = ParseIPList("10.0.0.1,fd80::1")
	assert.Error(t, err, "mixed families in one list")

	_, err = ParseIPList("")
	assert.Error(t, err)
}
