// Package nftjson models the JSON command language spoken by the nft
// binary: batches of commands, the expression and statement trees inside
// rules, and the object name types they reference. Batches are applied by
// piping them to `nft -j -f -` (see Client).
package nftjson

import "encoding/json"

// TableFamily is the address family of an nftables table.
type TableFamily string

const (
	TableFamilyIP     TableFamily = "ip"
	TableFamilyIP6    TableFamily = "ip6"
	TableFamilyInet   TableFamily = "inet"
	TableFamilyArp    TableFamily = "arp"
	TableFamilyBridge TableFamily = "bridge"
	TableFamilyNetdev TableFamily = "netdev"
)

// IpFamily selects one of the two IP protocols, e.g. in a ct expression.
type IpFamily string

const (
	IpFamilyV4 IpFamily = "ip"
	IpFamilyV6 IpFamily = "ip6"
)

// TablePart identifies the table an object lives in. It is embedded in
// chain, set and rule objects, where the table is referenced by a "table"
// key instead of the "name" key a standalone table object uses.
type TablePart struct {
	Family TableFamily `json:"family"`
	Table  string      `json:"table"`
}

func NewTablePart(family TableFamily, table string) TablePart {
	return TablePart{Family: family, Table: table}
}

// Name converts the reference into a standalone table object.
func (t TablePart) Name() TableName {
	return TableName{Family: t.Family, Name: t.Table}
}

// TableName is a table as a standalone object (add/delete table).
type TableName struct {
	Family TableFamily `json:"family"`
	Name   string      `json:"name"`
}

// ChainName identifies a chain within a table.
type ChainName struct {
	TablePart
	Name string `json:"name"`
}

func NewChainName(table TablePart, name string) ChainName {
	return ChainName{TablePart: table, Name: name}
}

// SetName identifies a set or map within a table.
type SetName struct {
	TablePart
	Name string `json:"name"`
}

func NewSetName(table TablePart, name string) SetName {
	return SetName{TablePart: table, Name: name}
}

// Verdict is a terminating action. It serializes as an object with a
// single key, e.g. {"accept": null} or {"goto": {"target": "chain"}},
// and is valid both as a statement and as vmap data.
type Verdict struct {
	kind   string
	target string
}

func VerdictAccept() Verdict   { return Verdict{kind: "accept"} }
func VerdictDrop() Verdict     { return Verdict{kind: "drop"} }
func VerdictContinue() Verdict { return Verdict{kind: "continue"} }
func VerdictReturn() Verdict   { return Verdict{kind: "return"} }

func VerdictJump(target string) Verdict { return Verdict{kind: "jump", target: target} }
func VerdictGoto(target string) Verdict { return Verdict{kind: "goto", target: target} }

func (v Verdict) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case "jump", "goto":
		return json.Marshal(map[string]map[string]string{
			v.kind: {"target": v.target},
		})
	default:
		return json.Marshal(map[string]any{v.kind: nil})
	}
}

// ElementType is the key type of a set or map.
type ElementType string

const (
	ElementTypeIpv4Addr    ElementType = "ipv4_addr"
	ElementTypeIpv6Addr    ElementType = "ipv6_addr"
	ElementTypeEtherAddr   ElementType = "ether_addr"
	ElementTypeInetProto   ElementType = "inet_proto"
	ElementTypeInetService ElementType = "inet_service"
	ElementTypeIfname      ElementType = "ifname"
)

// SetFlag is a set feature flag.
type SetFlag string

const (
	SetFlagConstant SetFlag = "constant"
	SetFlagInterval SetFlag = "interval"
	SetFlagTimeout  SetFlag = "timeout"
)

// RateTimescale is the time unit of a limit statement.
type RateTimescale string

const (
	RateTimescaleSecond RateTimescale = "second"
	RateTimescaleMinute RateTimescale = "minute"
	RateTimescaleHour   RateTimescale = "hour"
	RateTimescaleDay    RateTimescale = "day"
)

// RateUnit distinguishes packet from byte based limits.
type RateUnit string

const (
	RateUnitPackets RateUnit = "packets"
	RateUnitBytes   RateUnit = "bytes"
)

// ListChain is a chain as reported by `list chains`.
type ListChain struct {
	Family TableFamily `json:"family"`
	Table  string      `json:"table"`
	Name   string      `json:"name"`
	Handle int64       `json:"handle,omitempty"`
	Type   string      `json:"type,omitempty"`
	Hook   string      `json:"hook,omitempty"`
	Prio   *int64      `json:"prio,omitempty"`
	Device string      `json:"dev,omitempty"`
	Policy string      `json:"policy,omitempty"`
}

// Chain converts the listing into a chain reference usable in commands.
func (c ListChain) Chain() ChainName {
	return ChainName{
		TablePart: TablePart{Family: c.Family, Table: c.Table},
		Name:      c.Name,
	}
}

// ListSet is a set as reported by `list sets`.
type ListSet struct {
	Family TableFamily     `json:"family"`
	Table  string          `json:"table"`
	Name   string          `json:"name"`
	Type   json.RawMessage `json:"type,omitempty"`
	Flags  []SetFlag       `json:"flags,omitempty"`
}

// Set converts the listing into a set reference usable in commands.
func (s ListSet) Set() SetName {
	return SetName{
		TablePart: TablePart{Family: s.Family, Table: s.Table},
		Name:      s.Name,
	}
}

// ListOutput is one entry of a query response. The engine tags each entry
// with the object kind; kinds we do not consume stay unset.
type ListOutput struct {
	Metainfo json.RawMessage `json:"metainfo,omitempty"`
	Chain    *ListChain      `json:"chain,omitempty"`
	Set      *ListSet        `json:"set,omitempty"`
}

// CommandOutput is the engine's response envelope.
type CommandOutput struct {
	Nftables []ListOutput `json:"nftables"`
}

// Chains collects the chains contained in the response.
func (o *CommandOutput) Chains() []ListChain {
	var chains []ListChain
	for _, entry := range o.Nftables {
		if entry.Chain != nil {
			chains = append(chains, *entry.Chain)
		}
	}
	return chains
}
