package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostConfigText = `
[OPTIONS]
enable: 1
nftables: 1
log_level_in: debug
log_level_out: emerg
log_nf_conntrack: 0
ndp: 1
nf_conntrack_allow_invalid: yes
nf_conntrack_helpers: ftp
nf_conntrack_max: 44000
nf_conntrack_tcp_timeout_established: 500000
nf_conntrack_tcp_timeout_syn_recv: 44
nosmurfs: no
protection_synflood: 1
protection_synflood_burst: 2500
protection_synflood_rate: 300
smurf_log_level: notice
tcp_flags_log_level: nolog
tcpflags: yes

[RULES]

GROUP tgr -i eth0 # acomm
IN ACCEPT -p udp -dport 33 -sport 22 -log warning
`

func TestParseHostConfig(t *testing.T) {
	cfg, err := ParseHostConfig(strings.NewReader(hostConfigText))
	require.NoError(t, err)

	assert.True(t, cfg.Enabled())
	assert.True(t, cfg.Nftables())
	assert.Equal(t, LogDebug, cfg.LogLevel(DirIn))
	assert.Equal(t, LogEmerg, cfg.LogLevel(DirOut))
	assert.False(t, cfg.LogNfConntrack())
	assert.True(t, cfg.AllowNdp())
	assert.False(t, cfg.BlockInvalidConntrack())
	assert.Equal(t, []string{"ftp"}, cfg.ConntrackHelpers())
	assert.Equal(t, int64(44000), *cfg.Options.NfConntrackMax)
	assert.False(t, cfg.BlockSmurfs())
	assert.True(t, cfg.BlockSynflood())
	assert.Equal(t, int64(2500), cfg.SynfloodBurst())
	assert.Equal(t, int64(300), cfg.SynfloodRate())
	assert.Equal(t, LogNotice, cfg.BlockSmurfsLogLevel())
	assert.Equal(t, LogNolog, cfg.BlockInvalidTCPLogLevel())
	assert.True(t, cfg.BlockInvalidTCP())

	require.Len(t, cfg.Rules(), 2)
	assert.NotNil(t, cfg.Rules()[0].Group)
	assert.NotNil(t, cfg.Rules()[1].Match)
}

func TestParseHostConfigDefaults(t *testing.T) {
	cfg, err := ParseHostConfig(strings.NewReader(""))
	require.NoError(t, err)

	assert.True(t, cfg.Enabled())
	assert.False(t, cfg.Nftables())
	assert.True(t, cfg.AllowNdp())
	assert.True(t, cfg.BlockSmurfs())
	assert.False(t, cfg.BlockSynflood())
	assert.Equal(t, int64(200), cfg.SynfloodRate())
	assert.Equal(t, int64(1000), cfg.SynfloodBurst())
	assert.False(t, cfg.BlockInvalidTCP())
	assert.True(t, cfg.BlockInvalidConntrack())
	assert.Equal(t, LogNolog, cfg.LogLevel(DirIn))
}

func TestHostConfigForbiddenSections(t *testing.T) {
	_, err := ParseHostConfig(strings.NewReader("[ALIASES]\ntest 127.0.0.1"))
	assert.Error(t, err, "host config cannot contain aliases")

	_, err = ParseHostConfig(strings.NewReader("[GROUP test]"))
	assert.Error(t, err, "host config cannot contain groups")

	_, err = ParseHostConfig(strings.NewReader("[IPSET test]"))
	assert.Error(t, err, "host config cannot contain ipsets")
}

const clusterConfigText = `
[OPTIONS]
enable: 1
policy_in: REJECT
log_ratelimit: enable=1,rate=5/minute,burst=20

[ALIASES]
internal 10.0.0.0/8 # our networks

[IPSET management] # admin machines
10.1.0.0/16
!10.1.99.0/24
internal

[group webservers] # frontends
IN HTTP(ACCEPT)
IN HTTPS(ACCEPT)

[RULES]
GROUP webservers
IN ACCEPT -source +dc/management
|OUT DROP -dest internal
`

func TestParseClusterConfig(t *testing.T) {
	cfg, err := ParseClusterConfig(strings.NewReader(clusterConfigText))
	require.NoError(t, err)

	assert.True(t, cfg.Enabled())
	assert.Equal(t, VerdictReject, cfg.DefaultPolicy(DirIn))
	assert.Equal(t, VerdictAccept, cfg.DefaultPolicy(DirOut), "unset policy_out uses the default")

	limit := cfg.LogRatelimit()
	require.NotNil(t, limit)
	assert.Equal(t, int64(5), limit.Rate)
	assert.Equal(t, RateMinute, limit.Unit)
	assert.Equal(t, int64(20), limit.Burst)

	alias, ok := cfg.Alias("internal")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.0/8", alias.Address.String())
	assert.Equal(t, "our networks", alias.Comment)

	ipset, ok := cfg.Config.Ipsets["management"]
	require.True(t, ok)
	assert.Equal(t, ScopeDatacenter, ipset.Name.Scope)
	assert.Equal(t, IpsetOrdinary, ipset.Name.Kind)
	assert.Equal(t, "admin machines", ipset.Comment)
	require.Len(t, ipset.Entries, 3)
	assert.False(t, ipset.Entries[0].Nomatch)
	assert.True(t, ipset.Entries[1].Nomatch)
	assert.NotNil(t, ipset.Entries[2].Alias)

	group, ok := cfg.Config.Groups["webservers"]
	require.True(t, ok)
	assert.Equal(t, "frontends", group.Comment)
	assert.Len(t, group.Rules, 2)

	require.Len(t, cfg.Rules(), 3)
	assert.True(t, cfg.Rules()[2].Disabled)
}

func TestParseClusterConfigDisabledByDefault(t *testing.T) {
	cfg, err := ParseClusterConfig(strings.NewReader("[OPTIONS]\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Enabled())
	assert.Equal(t, VerdictDrop, cfg.DefaultPolicy(DirIn))
}

func TestParseBridgeConfig(t *testing.T) {
	cfg, err := ParseBridgeConfig(strings.NewReader(`
[OPTIONS]
enable: 1
policy_forward: DROP
log_level_forward: info

[RULES]
FORWARD ACCEPT -p tcp -dport 443
`))
	require.NoError(t, err)
	assert.True(t, cfg.Enabled())
	assert.Equal(t, VerdictDrop, cfg.PolicyForward())
	assert.Equal(t, LogInfo, cfg.LogLevelForward())
	require.Len(t, cfg.Rules(), 1)

	_, err = ParseBridgeConfig(strings.NewReader("[RULES]\nIN ACCEPT"))
	assert.Error(t, err, "bridge rules must be FORWARD")

	_, err = ParseBridgeConfig(strings.NewReader("[RULES]\nFORWARD REJECT"))
	assert.Error(t, err, "REJECT is invalid for forwarded traffic")

	_, err = ParseBridgeConfig(strings.NewReader("[OPTIONS]\npolicy_forward: REJECT"))
	assert.Error(t, err)
}

func TestParseSectionErrors(t *testing.T) {
	_, err := ParseSections(strings.NewReader("enable: 1"), ParserConfig{})
	assert.Error(t, err, "config line with no section")

	_, err = ParseSections(strings.NewReader("[BOGUS]"), ParserConfig{})
	assert.Error(t, err, "invalid section")

	_, err = ParseSections(strings.NewReader("[OPTIONS]\nenable: 1\nenable: 0"), ParserConfig{})
	assert.Error(t, err, "duplicate option")
}

func TestGuestIfaceNameValidation(t *testing.T) {
	cfg := ParserConfig{GuestIfaceNames: true}

	_, err := ParseSections(strings.NewReader("[RULES]\nIN ACCEPT -i net0"), cfg)
	assert.NoError(t, err)

	_, err = ParseSections(strings.NewReader("[RULES]\nIN ACCEPT -i eth0"), cfg)
	assert.Error(t, err, "guest rules require net<N> interface names")
}
