package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuleGroup(t *testing.T) {
	rule, err := ParseRule("|GROUP tgr -i eth0 # acomm")
	require.NoError(t, err)
	assert.True(t, rule.Disabled)
	assert.Equal(t, "acomm", rule.Comment)
	require.NotNil(t, rule.Group)
	assert.Equal(t, "tgr", rule.Group.Name)
	assert.Equal(t, "eth0", rule.Group.Iface)

	_, err = ParseRule("GROUP tgr -p tcp")
	assert.Error(t, err, "group rules only allow the interface parameter")
}

func TestParseRuleMatch(t *testing.T) {
	rule, err := ParseRule("IN ACCEPT -p udp -dport 33 -sport 22 -log warning")
	require.NoError(t, err)
	require.NotNil(t, rule.Match)

	m := rule.Match
	assert.Equal(t, DirIn, m.Direction)
	assert.Equal(t, VerdictAccept, m.Verdict)
	require.NotNil(t, m.Proto)
	assert.Equal(t, ProtoUDP, m.Proto.Kind)
	assert.Equal(t, "33", m.Proto.Dport.String())
	assert.Equal(t, "22", m.Proto.Sport.String())
	require.NotNil(t, m.Log)
	assert.Equal(t, LogWarning, *m.Log)
}

func TestParseRuleMacro(t *testing.T) {
	rule, err := ParseRule("IN SSH(ACCEPT) -i net0")
	require.NoError(t, err)
	require.NotNil(t, rule.Match)
	assert.Equal(t, "SSH", rule.Match.Macro)
	assert.Equal(t, VerdictAccept, rule.Match.Verdict)
	assert.Equal(t, "net0", rule.Match.Iface)

	_, err = ParseRule("IN SSH(ACCEPT qwe")
	assert.Error(t, err, "missing closing parenthesis")
}

func TestParseRuleAddresses(t *testing.T) {
	rule, err := ParseRule("IN ACCEPT --source 10.0.0.0/8 --dest 192.168.0.1")
	require.NoError(t, err)
	m := rule.Match
	require.NotNil(t, m.IP)
	require.NotNil(t, m.IP.Src.List)
	require.NotNil(t, m.IP.Dst.List)

	_, err = ParseRule("IN ACCEPT -source 10.0.0.1 -dest fd80::1")
	assert.Error(t, err, "literal source and dest families must match")

	rule, err = ParseRule("IN ACCEPT -source dc/test -dest +dc/management")
	require.NoError(t, err)
	m = rule.Match
	require.NotNil(t, m.IP.Src.Alias)
	assert.Equal(t, ScopeDatacenter, m.IP.Src.Alias.Scope)
	assert.Equal(t, "test", m.IP.Src.Alias.Name)
	require.NotNil(t, m.IP.Dst.Set)
	assert.Equal(t, "management", m.IP.Dst.Set.Name)
}

func TestParseRuleIcmp(t *testing.T) {
	rule, err := ParseRule("IN ACCEPT -p icmp -icmp-type echo-request")
	require.NoError(t, err)
	proto := rule.Match.Proto
	require.NotNil(t, proto.IcmpType)
	assert.True(t, proto.IcmpType.Named)
	family, pinned := proto.Family()
	assert.True(t, pinned)
	assert.Equal(t, FamilyV4, family)

	// a code name yields a code match, not a type match
	rule, err = ParseRule("IN REJECT -p icmp -icmp-type host-unreachable")
	require.NoError(t, err)
	assert.Nil(t, rule.Match.Proto.IcmpType)
	require.NotNil(t, rule.Match.Proto.IcmpCode)

	rule, err = ParseRule("IN ACCEPT -p ipv6-icmp -icmp-type nd-router-advert")
	require.NoError(t, err)
	family, pinned = rule.Match.Proto.Family()
	assert.True(t, pinned)
	assert.Equal(t, FamilyV6, family)

	_, err = ParseRule("IN ACCEPT -p icmp -icmp-type bogus")
	assert.Error(t, err)

	_, err = ParseRule("IN ACCEPT -p tcp -dport 22 -icmp-type echo-request")
	assert.Error(t, err, "dport and icmp-type are mutually exclusive")
}

func TestParseRuleOptions(t *testing.T) {
	_, err := ParseRule("IN ACCEPT -p tcp -p udp")
	assert.Error(t, err, "duplicate option")

	_, err = ParseRule("IN ACCEPT -frobnicate yes")
	assert.Error(t, err, "unknown option")

	_, err = ParseRule("IN BOUNCE")
	assert.Error(t, err, "invalid verdict")

	_, err = ParseRule("SIDEWAYS ACCEPT")
	assert.Error(t, err, "invalid direction")
}

func TestParseNumericProtocols(t *testing.T) {
	rule, err := ParseRule("OUT DROP -p 89")
	require.NoError(t, err)
	assert.Equal(t, ProtoNumeric, rule.Match.Proto.Kind)
	assert.Equal(t, uint8(89), rule.Match.Proto.Number)
	assert.Equal(t, "89", rule.Match.Proto.WireName())

	rule, err = ParseRule("OUT DROP -p ospf")
	require.NoError(t, err)
	assert.Equal(t, ProtoNamed, rule.Match.Proto.Kind)
	assert.Equal(t, "ospf", rule.Match.Proto.WireName())
}
