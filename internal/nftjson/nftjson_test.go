package nftjson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshal(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestCommandEnvelope(t *testing.T) {
	batch := NewCommands(
		AddTable(NewTablePart(TableFamilyInet, "proxmox-firewall")),
		DeleteTable(NewTablePart(TableFamilyBridge, "proxmox-firewall-guests").Name()),
	)

	assert.JSONEq(t,
		`{"nftables":[
			{"add":{"table":{"family":"inet","name":"proxmox-firewall"}}},
			{"delete":{"table":{"family":"bridge","name":"proxmox-firewall-guests"}}}
		]}`,
		marshal(t, batch))
}

func TestChainCommands(t *testing.T) {
	table := NewTablePart(TableFamilyInet, "proxmox-firewall")
	chain := NewChainName(table, "cluster-in")

	assert.JSONEq(t,
		`{"add":{"chain":{"family":"inet","table":"proxmox-firewall","name":"cluster-in"}}}`,
		marshal(t, AddChain(chain)))

	assert.JSONEq(t,
		`{"flush":{"chain":{"family":"inet","table":"proxmox-firewall","name":"cluster-in"}}}`,
		marshal(t, FlushChain(chain)))

	assert.JSONEq(t,
		`{"delete":{"chain":{"family":"inet","table":"proxmox-firewall","name":"cluster-in"}}}`,
		marshal(t, DeleteChain(chain)))
}

func TestVerdicts(t *testing.T) {
	assert.JSONEq(t, `{"accept":null}`, marshal(t, VerdictAccept()))
	assert.JSONEq(t, `{"drop":null}`, marshal(t, VerdictDrop()))
	assert.JSONEq(t, `{"return":null}`, marshal(t, VerdictReturn()))
	assert.JSONEq(t, `{"continue":null}`, marshal(t, VerdictContinue()))
	assert.JSONEq(t, `{"jump":{"target":"do-reject"}}`, marshal(t, VerdictJump("do-reject")))
	assert.JSONEq(t, `{"goto":{"target":"guest-100-in"}}`, marshal(t, VerdictGoto("guest-100-in")))
}

func TestRuleStatements(t *testing.T) {
	table := NewTablePart(TableFamilyInet, "proxmox-firewall")
	rule := NewRule(NewChainName(table, "host-in"),
		MatchEq(NewMeta("l4proto"), "tcp"),
		MatchEq(NewPayloadField("th", "dport"), 22),
		VerdictAccept(),
	)

	assert.JSONEq(t,
		`{"family":"inet","table":"proxmox-firewall","chain":"host-in","expr":[
			{"match":{"op":"==","left":{"meta":{"key":"l4proto"}},"right":"tcp"}},
			{"match":{"op":"==","left":{"payload":{"protocol":"th","field":"dport"}},"right":22}},
			{"accept":null}
		]}`,
		marshal(t, rule))
}

func TestExpressions(t *testing.T) {
	assert.JSONEq(t,
		`{"prefix":{"addr":"10.0.0.0","len":8}}`,
		marshal(t, Prefix{Addr: "10.0.0.0", Len: 8}))

	assert.JSONEq(t,
		`{"range":["10.0.0.1","10.0.0.5"]}`,
		marshal(t, Range{From: "10.0.0.1", To: "10.0.0.5"}))

	assert.JSONEq(t,
		`{"concat":[{"meta":{"key":"iifname"}},{"payload":{"protocol":"ether","field":"saddr"}}]}`,
		marshal(t, Concat{NewMeta("iifname"), NewPayloadField("ether", "saddr")}))

	assert.JSONEq(t,
		`{"set":["tap100i0","tap100i1"]}`,
		marshal(t, SetExpr{"tap100i0", "tap100i1"}))

	assert.JSONEq(t,
		`{"ct":{"key":"helper","family":"ip"}}`,
		marshal(t, Ct{Key: "helper", Family: IpFamilyV4}))

	assert.JSONEq(t,
		`{"payload":{"base":"nh","offset":64,"len":32}}`,
		marshal(t, PayloadRaw{Base: "nh", Offset: 64, Len: 32}))

	assert.Equal(t, "@v4-dc/management", NamedSet("v4-dc/management"))
}

func TestElementConfig(t *testing.T) {
	timeout := int64(30)
	elem := Element{
		ElemConfig: ElemConfig{Timeout: &timeout, Comment: "temporary"},
		Val:        "10.0.0.1",
	}

	assert.JSONEq(t,
		`{"elem":{"timeout":30,"comment":"temporary","val":"10.0.0.1"}}`,
		marshal(t, elem))
}

func TestLogKeepsGroupZero(t *testing.T) {
	assert.JSONEq(t,
		`{"log":{"prefix":":0:6:host-in: ACCEPT: ","group":0}}`,
		marshal(t, NewNflog(":0:6:host-in: ACCEPT: ", 0)))
}

func TestLimit(t *testing.T) {
	burst := int64(1000)
	inv := true

	assert.JSONEq(t,
		`{"limit":{"rate":200,"per":"second","burst":1000,"inv":true}}`,
		marshal(t, Limit{Rate: 200, Per: RateTimescaleSecond, Burst: &burst, Inv: &inv}))

	assert.JSONEq(t,
		`{"limit":{"rate":1,"per":"second"}}`,
		marshal(t, Limit{Rate: 1, Per: RateTimescaleSecond}))
}

func TestSetUpdateCollapsesSingleStatement(t *testing.T) {
	burst := int64(1000)
	inv := true
	update := SetUpdate{
		Op:   SetOpUpdate,
		Elem: NewPayloadField("ip", "saddr"),
		Set:  "@v4-synflood-limit",
		Stmt: []Statement{
			Limit{Rate: 200, Per: RateTimescaleSecond, Burst: &burst, Inv: &inv},
		},
	}

	assert.JSONEq(t,
		`{"set":{
			"op":"update",
			"elem":{"payload":{"protocol":"ip","field":"saddr"}},
			"set":"@v4-synflood-limit",
			"stmt":{"limit":{"rate":200,"per":"second","burst":1000,"inv":true}}
		}}`,
		marshal(t, update))
}

func TestSetConfig(t *testing.T) {
	table := NewTablePart(TableFamilyInet, "proxmox-firewall")
	set := NewSetConfig(NewSetName(table, "v4-dc/management"), ElementTypeIpv4Addr).
		WithFlag(SetFlagInterval).
		WithAutoMerge()

	assert.JSONEq(t,
		`{"add":{"set":{
			"family":"inet","table":"proxmox-firewall","name":"v4-dc/management",
			"type":"ipv4_addr","flags":["interval"],"auto-merge":true
		}}}`,
		marshal(t, AddSet(set)))

	multi := NewSetConfig(NewSetName(table, "pairs"), ElementTypeIfname, ElementTypeEtherAddr)
	assert.JSONEq(t,
		`{"add":{"set":{"family":"inet","table":"proxmox-firewall","name":"pairs","type":["ifname","ether_addr"]}}}`,
		marshal(t, AddSet(multi)))
}

func TestMapConfigAndElements(t *testing.T) {
	table := NewTablePart(TableFamilyBridge, "proxmox-firewall-guests")
	vmap := NewSetName(table, "vm-map-in")

	assert.JSONEq(t,
		`{"add":{"map":{
			"family":"bridge","table":"proxmox-firewall-guests","name":"vm-map-in",
			"type":"ifname","map":"verdict"
		}}}`,
		marshal(t, AddMap(NewMapConfig(vmap, "verdict", ElementTypeIfname))))

	elements := NewSetElements(vmap, MapElem("tap100i0", VerdictGoto("guest-100-in")))
	assert.JSONEq(t,
		`{"add":{"element":{
			"family":"bridge","table":"proxmox-firewall-guests","name":"vm-map-in",
			"elem":[["tap100i0",{"goto":{"target":"guest-100-in"}}]]
		}}}`,
		marshal(t, AddElement(elements)))
}

func TestCtHelperCommand(t *testing.T) {
	helper := CtHelperConfig{
		Family:   TableFamilyInet,
		Table:    "proxmox-firewall",
		Name:     "helper-ftp-tcp",
		Type:     "ftp",
		Protocol: CtHelperTCP,
	}

	assert.JSONEq(t,
		`{"add":{"ct helper":{
			"family":"inet","table":"proxmox-firewall","name":"helper-ftp-tcp",
			"type":"ftp","protocol":"tcp"
		}}}`,
		marshal(t, AddCtHelper(helper)))

	assert.JSONEq(t, `{"ct helper":"helper-ftp-tcp"}`, marshal(t, CtHelperStmt("helper-ftp-tcp")))
}

func TestNullObjects(t *testing.T) {
	assert.JSONEq(t, `{"flush":{"ruleset":null}}`, marshal(t, FlushRuleset()))
	assert.JSONEq(t, `{"list":{"chains":null}}`, marshal(t, ListChains()))
	assert.JSONEq(t, `{"list":{"sets":null}}`, marshal(t, ListSets()))
	assert.JSONEq(t, `{"notrack":null}`, marshal(t, Notrack{}))
}

func TestCommandOutputParsing(t *testing.T) {
	input := `{"nftables": [
		{"metainfo": {"version": "1.0.6", "release_name": "Lester Gooch", "json_schema_version": 1}},
		{"chain": {"family": "inet", "table": "proxmox-firewall", "name": "input", "handle": 1, "type": "filter", "hook": "input", "prio": 0, "policy": "accept"}},
		{"chain": {"family": "bridge", "table": "proxmox-firewall-guests", "name": "guest-100-in", "handle": 4}}
	]}`

	var output CommandOutput
	require.NoError(t, json.Unmarshal([]byte(input), &output))

	chains := output.Chains()
	require.Len(t, chains, 2)

	assert.Equal(t, "input", chains[0].Name)
	assert.Equal(t, "filter", chains[0].Type)
	assert.Equal(t, "input", chains[0].Hook)
	require.NotNil(t, chains[0].Prio)
	assert.EqualValues(t, 0, *chains[0].Prio)

	assert.Equal(t, NewChainName(NewTablePart(TableFamilyBridge, "proxmox-firewall-guests"), "guest-100-in"),
		chains[1].Chain())
}
