package guest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/palisade/internal/policy"
)

const guestConfigText = `
[OPTIONS]
enable: 1
dhcp: 1
ipfilter: 0
log_level_in: emerg
log_level_out: crit
macfilter: 0
ndp:1
radv:1
policy_in: REJECT
policy_out: REJECT

[IPSET ipfilter-net0]
10.0.0.5

[RULES]
IN SSH(ACCEPT) -i net0
`

func TestParseGuestConfig(t *testing.T) {
	cfg, err := ParseConfig(100, TypeVM, strings.NewReader(guestConfigText), strings.NewReader(""))
	require.NoError(t, err)

	assert.True(t, cfg.Enabled())
	assert.True(t, cfg.AllowDhcp())
	assert.False(t, cfg.Ipfilter())
	assert.Equal(t, policy.LogEmerg, cfg.LogLevel(policy.DirIn))
	assert.Equal(t, policy.LogCrit, cfg.LogLevel(policy.DirOut))
	assert.False(t, cfg.Macfilter())
	assert.True(t, cfg.AllowNdp())
	assert.True(t, cfg.AllowRa())
	assert.Equal(t, policy.VerdictReject, cfg.DefaultPolicy(policy.DirIn))
	assert.Equal(t, policy.VerdictReject, cfg.DefaultPolicy(policy.DirOut))

	ipset, ok := cfg.Ipsets()["ipfilter-net0"]
	require.True(t, ok)
	assert.Equal(t, policy.IpsetDeviceFilter, ipset.Name.Kind)
	assert.Equal(t, 0, ipset.Name.DeviceIndex)

	require.Len(t, cfg.Rules(), 1)
}

func TestGuestConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(101, TypeCT, strings.NewReader(""), strings.NewReader(""))
	require.NoError(t, err)

	assert.False(t, cfg.Enabled())
	assert.True(t, cfg.AllowNdp())
	assert.True(t, cfg.AllowDhcp())
	assert.False(t, cfg.AllowRa())
	assert.True(t, cfg.Macfilter())
	assert.False(t, cfg.Ipfilter())
	assert.Equal(t, policy.VerdictDrop, cfg.DefaultPolicy(policy.DirIn))
	assert.Equal(t, policy.VerdictAccept, cfg.DefaultPolicy(policy.DirOut))
	assert.Equal(t, policy.LogNolog, cfg.LogLevel(policy.DirIn))
}

func TestGuestConfigRejectsGroups(t *testing.T) {
	_, err := ParseConfig(100, TypeVM, strings.NewReader("[group test]"), strings.NewReader(""))
	assert.Error(t, err)
}

func TestGuestIfaceNames(t *testing.T) {
	vm, err := ParseConfig(100, TypeVM, strings.NewReader(""), strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "tap100i0", vm.IfaceNameByIndex(0))

	name, err := vm.IfaceNameByKey("net3")
	require.NoError(t, err)
	assert.Equal(t, "tap100i3", name)

	ct, err := ParseConfig(250, TypeCT, strings.NewReader(""), strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "veth250i1", ct.IfaceNameByIndex(1))

	_, err = vm.IfaceNameByKey("eth0")
	assert.Error(t, err)
}

func TestParseGuestMap(t *testing.T) {
	guests, err := ParseMap([]byte(`{
		"version": 3,
		"ids": {
			"100": {"node": "node1", "type": "qemu", "version": 2},
			"200": {"node": "node2", "type": "lxc", "version": 1}
		}
	}`))
	require.NoError(t, err)
	require.Len(t, guests, 2)

	vm := guests[100]
	assert.Equal(t, TypeVM, vm.Type)
	assert.True(t, vm.IsLocal("node1"))
	assert.False(t, vm.IsLocal("node2"))

	ct := guests[200]
	assert.Equal(t, TypeCT, ct.Type)
	assert.Equal(t, "veth", ct.Type.IfacePrefix())

	assert.Equal(t, "/etc/pve/firewall/100.fw", FirewallConfigPath(100))
	assert.Equal(t, "/etc/pve/local/qemu-server/100.conf", ConfigPath(100, vm))
	assert.Equal(t, "/etc/pve/local/lxc/200.conf", ConfigPath(200, ct))
}
