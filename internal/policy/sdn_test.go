package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sdnRunningJSONText = `{
  "vnets": {"ids": {"vnet0": {"zone": "zone0"}}},
  "subnets": {"ids": {
    "zone0-10.100.0.0-24": {"vnet": "vnet0", "gateway": "10.100.0.1"},
    "zone0-fd80::-64": {"vnet": "vnet0"}
  }}
}`

const sdnIpamJSONText = `{
  "zones": {"zone0": {"subnets": {"10.100.0.0/24": {"ips": {
    "10.100.0.10": {"vmid": 100},
    "10.100.0.11": {"vmid": 101}
  }}}}}
}`

func TestParseSdnRunningConfig(t *testing.T) {
	cfg, err := ParseSdnRunningConfig(strings.NewReader(sdnRunningJSONText))
	require.NoError(t, err)

	vnet, ok := cfg.Vnets["vnet0"]
	require.True(t, ok)
	assert.Len(t, vnet.Subnets, 2)
}

func TestSdnIpsets(t *testing.T) {
	cfg, err := ParseSdnRunningConfig(strings.NewReader(sdnRunningJSONText))
	require.NoError(t, err)
	require.NoError(t, cfg.LoadIpam(strings.NewReader(sdnIpamJSONText)))

	assert.Equal(t, []Cidr{mustCidr(t, "10.100.0.10")}, cfg.GuestAddrs[100])

	sets := cfg.Ipsets()
	names := make([]string, len(sets))
	for i, set := range sets {
		names[i] = set.Name.Name
	}
	assert.Equal(t, []string{"vnet0-all", "vnet0-gateway", "guest-ipam-100", "guest-ipam-101"}, names)

	for _, set := range sets {
		assert.Equal(t, ScopeSDN, set.Name.Scope)
		assert.NotEmpty(t, set.Entries)
	}
}

func mustCidr(t *testing.T, s string) Cidr {
	t.Helper()
	c, err := ParseCidr(s)
	require.NoError(t, err)
	return c
}
