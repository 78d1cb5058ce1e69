package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePortEntry(t *testing.T) {
	entry, err := ParsePortEntry("22")
	require.NoError(t, err)
	assert.Equal(t, PortEntry{Start: 22, End: 22}, entry)
	assert.False(t, entry.IsRange())

	entry, err = ParsePortEntry("1000:2000")
	require.NoError(t, err)
	assert.Equal(t, PortEntry{Start: 1000, End: 2000}, entry)
	assert.Equal(t, "1000:2000", entry.String())

	_, err = ParsePortEntry("2000:1000")
	assert.Error(t, err, "descending port range")

	_, err = ParsePortEntry("70000")
	assert.Error(t, err)
}

func TestParsePortList(t *testing.T) {
	list, err := ParsePortList("22")
	require.NoError(t, err)
	assert.Equal(t, "22", list.String())

	list, err = ParsePortList("22,80,1000:2000")
	require.NoError(t, err)
	assert.Len(t, list.Entries, 3)
	assert.Equal(t, "{22,80,1000:2000}", list.String())

	_, err = ParsePortList("22,)")
	assert.Error(t, err)
}

func TestParseIpsetRef(t *testing.T) {
	name, err := ParseIpsetRef("+dc/management")
	require.NoError(t, err)
	assert.Equal(t, ScopeDatacenter, name.Scope)
	assert.Equal(t, "management", name.Name)
	assert.Equal(t, IpsetOrdinary, name.Kind)

	name, err = ParseIpsetRef("+guest/ipfilter-net0")
	require.NoError(t, err)
	assert.Equal(t, IpsetDeviceFilter, name.Kind)
	assert.Equal(t, 0, name.DeviceIndex)

	_, err = ParseIpsetRef("dc/management")
	assert.Error(t, err, "set references require a leading plus")

	_, err = ParseIpsetRef("+bogus/name")
	assert.Error(t, err)
}

func TestDeviceFilterDetection(t *testing.T) {
	name := NewIpsetName(ScopeGuest, "ipfilter-net3")
	assert.Equal(t, IpsetDeviceFilter, name.Kind)
	assert.Equal(t, 3, name.DeviceIndex)

	// only guest sets can be device filters
	name = NewIpsetName(ScopeDatacenter, "ipfilter-net3")
	assert.Equal(t, IpsetOrdinary, name.Kind)

	name = NewIpsetName(ScopeGuest, "ipfilter-net99")
	assert.Equal(t, IpsetOrdinary, name.Kind, "device index out of range")

	name = NewIpsetName(ScopeGuest, "ipfilter-nets")
	assert.Equal(t, IpsetOrdinary, name.Kind)
}
