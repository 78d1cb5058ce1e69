package firewall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/palisade/internal/guest"
	"grimm.is/palisade/internal/nftjson"
	"grimm.is/palisade/internal/policy"
)

func parseTestIpset(t *testing.T, lines ...string) *policy.Ipset {
	t.Helper()
	set := &policy.Ipset{Name: policy.NewIpsetName(policy.ScopeDatacenter, "test")}
	for _, line := range lines {
		entry, err := policy.ParseIpsetEntry(line)
		require.NoError(t, err)
		set.Entries = append(set.Entries, entry)
	}
	return set
}

func TestIpsetObjectsSplitByFamily(t *testing.T) {
	cfg := loadTestConfig(t, &mockLoader{cluster: enabledClusterConfig, host: enabledHostConfig}, nil)
	env := &objectEnv{table: clusterTable(), config: cfg}

	set := parseTestIpset(t, "10.0.0.0/8", "192.168.1.1", "fd00::/8")
	commands, err := ipsetObjects(set, env)
	require.NoError(t, err)

	// per family: add+flush for the set and its nomatch twin, plus one
	// element batch each (the nomatch sets stay empty)
	require.Len(t, commands, 10)

	rendered := batchJSON(t, nftjson.NewCommands(commands...))
	assert.Contains(t, rendered, `"name":"v4-dc/test"`)
	assert.Contains(t, rendered, `"name":"v4-dc/test-nomatch"`)
	assert.Contains(t, rendered, `"name":"v6-dc/test"`)
	assert.Contains(t, rendered, `"type":"ipv4_addr"`)
	assert.Contains(t, rendered, `"type":"ipv6_addr"`)
	assert.Contains(t, rendered, `"flags":["interval"]`)
	assert.Contains(t, rendered, `"auto-merge":true`)
	// host addresses still load in prefix form
	assert.Contains(t, rendered, `{"prefix":{"addr":"192.168.1.1","len":32}}`)
	assert.Contains(t, rendered, `{"prefix":{"addr":"fd00::","len":8}}`)
}

func TestIpsetObjectsNomatchEntries(t *testing.T) {
	cfg := loadTestConfig(t, &mockLoader{cluster: enabledClusterConfig, host: enabledHostConfig}, nil)
	env := &objectEnv{table: clusterTable(), config: cfg}

	set := parseTestIpset(t, "10.0.0.0/8", "!10.0.3.0/24")
	commands, err := ipsetObjects(set, env)
	require.NoError(t, err)

	rendered := batchJSON(t, nftjson.NewCommands(commands...))
	assert.Contains(t, rendered, `"name":"v4-dc/test-nomatch","elem":[{"prefix":{"addr":"10.0.3.0","len":24}}]`)
}

func TestIpsetObjectsEmptySkipsElements(t *testing.T) {
	cfg := loadTestConfig(t, &mockLoader{cluster: enabledClusterConfig, host: enabledHostConfig}, nil)
	env := &objectEnv{table: clusterTable(), config: cfg}

	commands, err := ipsetObjects(parseTestIpset(t), env)
	require.NoError(t, err)

	// both families, add+flush each half, no element commands
	assert.Len(t, commands, 8)
	rendered := batchJSON(t, nftjson.NewCommands(commands...))
	assert.NotContains(t, rendered, `"elem"`)
}

func TestIpsetObjectsResolveAliases(t *testing.T) {
	cfg := loadTestConfig(t, &mockLoader{
		cluster: enabledClusterConfig + `
[ALIASES]
gateway 10.0.0.1
`,
		host: enabledHostConfig,
	}, nil)
	env := &objectEnv{table: clusterTable(), config: cfg}

	set := parseTestIpset(t, "dc/gateway")
	commands, err := ipsetObjects(set, env)
	require.NoError(t, err)

	rendered := batchJSON(t, nftjson.NewCommands(commands...))
	assert.Contains(t, rendered, `{"prefix":{"addr":"10.0.0.1","len":32}}`)

	set = parseTestIpset(t, "dc/missing")
	_, err = ipsetObjects(set, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not find alias")
}

func TestIpsetObjectsGuestScope(t *testing.T) {
	cfg := loadTestConfig(t, &mockLoader{
		cluster: enabledClusterConfig,
		host:    enabledHostConfig,
		guests: guest.Map{
			100: {Node: "node1", Type: guest.TypeVM},
		},
		guestFw:  map[guest.Vmid]string{100: "[OPTIONS]\nenable: 1\n"},
		guestCfg: map[guest.Vmid]string{100: testGuestDeviceConfig},
	}, nil)
	vmid := guest.Vmid(100)
	env := &objectEnv{table: guestTable(), config: cfg, vmid: &vmid}

	set := &policy.Ipset{Name: policy.NewIpsetName(policy.ScopeGuest, "blocked")}
	commands, err := ipsetObjects(set, env)
	require.NoError(t, err)

	rendered := batchJSON(t, nftjson.NewCommands(commands...))
	assert.Contains(t, rendered, `"name":"v4-guest-100-blocked"`)
	assert.Contains(t, rendered, `"table":"proxmox-firewall-guests"`)
}

func TestCtHelperObjects(t *testing.T) {
	cfg := loadTestConfig(t, &mockLoader{cluster: enabledClusterConfig, host: enabledHostConfig}, nil)
	env := &objectEnv{table: clusterTable(), config: cfg}

	// amanda registers a helper for its udp control port only
	helper, ok := policy.GetCtHelper("amanda")
	require.True(t, ok)

	commands := ctHelperObjects(helper, env)
	require.Len(t, commands, 1)

	rendered := batchJSON(t, nftjson.NewCommands(commands...))
	assert.Contains(t, rendered, `"name":"helper-amanda-udp"`)
	assert.Contains(t, rendered, `"type":"amanda"`)
	assert.Contains(t, rendered, `"protocol":"udp"`)

	// irc is v4 only, which pins the helper's l3 protocol
	helper, ok = policy.GetCtHelper("irc")
	require.True(t, ok)

	commands = ctHelperObjects(helper, env)
	require.Len(t, commands, 1)
	rendered = batchJSON(t, nftjson.NewCommands(commands...))
	assert.Contains(t, rendered, `"l3proto":"ip"`)
}

func TestDefaultDeviceFilter(t *testing.T) {
	device, err := guest.ParseNetworkDevice("virtio=AA:BB:CC:00:11:22,bridge=vmbr0,ip=10.0.0.5/24,ip6=fd00::5/64")
	require.NoError(t, err)

	set := defaultDeviceFilter("ipfilter-net0", device)
	require.Len(t, set.Entries, 3)

	// EUI-64 link-local address derived from the MAC
	assert.Equal(t, "fe80::a8bb:ccff:fe00:1122", set.Entries[0].Cidr.String())
	assert.Equal(t, "10.0.0.5", set.Entries[1].Cidr.String())
	assert.Equal(t, "fd00::5", set.Entries[2].Cidr.String())
}
