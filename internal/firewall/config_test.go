package firewall

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/palisade/internal/guest"
	"grimm.is/palisade/internal/policy"
)

func TestLoadFirewallConfigDefaults(t *testing.T) {
	cfg := loadTestConfig(t, &mockLoader{}, nil)

	// the firewall is opt-in twice: cluster-wide and per host
	assert.False(t, cfg.Enabled())
	assert.Empty(t, cfg.GuestIDs())
}

func TestLoadFirewallConfigNeedsNftablesOptIn(t *testing.T) {
	cfg := loadTestConfig(t, &mockLoader{cluster: enabledClusterConfig}, nil)
	assert.False(t, cfg.Enabled())

	cfg = loadTestConfig(t, &mockLoader{cluster: enabledClusterConfig, host: enabledHostConfig}, nil)
	assert.True(t, cfg.Enabled())
}

func TestLoadFirewallConfigGuestFiltering(t *testing.T) {
	cfg := loadTestConfig(t, &mockLoader{
		cluster: enabledClusterConfig,
		host:    enabledHostConfig,
		guests: guest.Map{
			100: {Node: "node1", Type: guest.TypeVM},
			150: {Node: "node1", Type: guest.TypeVM},
			175: {Node: "node1", Type: guest.TypeVM},
			200: {Node: "node2", Type: guest.TypeVM},
		},
		guestFw: map[guest.Vmid]string{
			100: "[OPTIONS]\nenable: 1\n",
			150: "[RULES]\nIN GIBBERISH\n",
			200: "[OPTIONS]\nenable: 1\n",
			// 175 has no firewall config at all
		},
		guestCfg: map[guest.Vmid]string{
			100: testGuestDeviceConfig,
			150: testGuestDeviceConfig,
			175: testGuestDeviceConfig,
		},
	}, nil)

	// 150 parses broken and is skipped, 175 is unfirewalled, 200 is remote
	assert.Equal(t, []guest.Vmid{100}, cfg.GuestIDs())
	assert.NotNil(t, cfg.Guest(100))
	assert.Nil(t, cfg.Guest(150))
	assert.Nil(t, cfg.Guest(200))
}

func TestLoadFirewallConfigBrokenClusterConfigFails(t *testing.T) {
	loader := &mockLoader{cluster: "[BOGUS]\n"}
	_, err := LoadFirewallConfig(context.Background(), loader, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster config")
}

func TestLoadFirewallConfigBrokenBridgeIsSkipped(t *testing.T) {
	cfg := loadTestConfig(t, &mockLoader{
		cluster: enabledClusterConfig,
		host:    enabledHostConfig,
		bridges: map[string]string{
			"vnet0": "[OPTIONS]\nenable: 1\n",
			"vnet1": "[RULES]\nIN ACCEPT\n", // non-FORWARD rule
		},
	}, nil)

	assert.Equal(t, []string{"vnet0"}, cfg.BridgeNames())
	assert.Nil(t, cfg.Bridge("vnet1"))
}

func TestGuestIDsAreSorted(t *testing.T) {
	guests := guest.Map{}
	guestFw := map[guest.Vmid]string{}
	guestCfg := map[guest.Vmid]string{}
	for _, vmid := range []guest.Vmid{300, 100, 200} {
		guests[vmid] = guest.Entry{Node: "node1", Type: guest.TypeVM}
		guestFw[vmid] = "[OPTIONS]\nenable: 1\n"
		guestCfg[vmid] = testGuestDeviceConfig
	}

	cfg := loadTestConfig(t, &mockLoader{
		cluster: enabledClusterConfig,
		host:    enabledHostConfig,
		guests:  guests,
		guestFw: guestFw, guestCfg: guestCfg,
	}, nil)

	assert.Equal(t, []guest.Vmid{100, 200, 300}, cfg.GuestIDs())
}

func TestAliasGuestFallback(t *testing.T) {
	cfg := loadTestConfig(t, &mockLoader{
		cluster: enabledClusterConfig + `
[ALIASES]
shared 10.0.0.1
`,
		host: enabledHostConfig,
		guests: guest.Map{
			100: {Node: "node1", Type: guest.TypeVM},
		},
		guestFw: map[guest.Vmid]string{100: `
[OPTIONS]
enable: 1

[ALIASES]
own 10.1.0.1
`},
		guestCfg: map[guest.Vmid]string{100: testGuestDeviceConfig},
	}, nil)
	vmid := guest.Vmid(100)

	own, ok := cfg.Alias(policy.AliasName{Scope: policy.ScopeGuest, Name: "own"}, &vmid)
	require.True(t, ok)
	assert.Equal(t, "10.1.0.1", own.Address.String())

	// guest-scoped lookups fall back to the datacenter aliases
	shared, ok := cfg.Alias(policy.AliasName{Scope: policy.ScopeGuest, Name: "shared"}, &vmid)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", shared.Address.String())

	_, ok = cfg.Alias(policy.AliasName{Scope: policy.ScopeGuest, Name: "nowhere"}, &vmid)
	assert.False(t, ok)
}
