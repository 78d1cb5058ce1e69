package nftjson

import "encoding/json"

// Expression is any nftables JSON expression: bare strings, numbers and
// booleans pass through unchanged, lists serialize as arrays, and the
// typed expressions below wrap themselves in their discriminator key.
type Expression = any

// NamedSet references a named set or map from within a rule ("@name").
func NamedSet(name string) Expression {
	return "@" + name
}

// Concat is a concatenation of expressions, used for multi-part set keys.
type Concat []Expression

func (c Concat) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]Expression{"concat": c})
}

// SetExpr is an anonymous (inline) set literal.
type SetExpr []Expression

func (s SetExpr) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]Expression{"set": s})
}

// Range matches any value between From and To, inclusive.
type Range struct {
	From Expression
	To   Expression
}

func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][2]Expression{"range": {r.From, r.To}})
}

// Prefix matches an address prefix of the given length.
type Prefix struct {
	Addr Expression `json:"addr"`
	Len  int        `json:"len"`
}

func (p Prefix) MarshalJSON() ([]byte, error) {
	type inner Prefix
	return json.Marshal(map[string]inner{"prefix": inner(p)})
}

// Meta reads a packet metadata key such as "l4proto" or "iifname".
type Meta struct {
	Key string `json:"key"`
}

func NewMeta(key string) Meta {
	return Meta{Key: key}
}

func (m Meta) MarshalJSON() ([]byte, error) {
	type inner Meta
	return json.Marshal(map[string]inner{"meta": inner(m)})
}

// Ct reads a conntrack key, optionally scoped to one IP family or flow
// direction.
type Ct struct {
	Key    string   `json:"key"`
	Family IpFamily `json:"family,omitempty"`
	Dir    string   `json:"dir,omitempty"`
}

func NewCt(key string) Ct {
	return Ct{Key: key}
}

func (c Ct) MarshalJSON() ([]byte, error) {
	type inner Ct
	return json.Marshal(map[string]inner{"ct": inner(c)})
}

// PayloadField reads a named header field, e.g. ("ip", "saddr") or
// ("th", "dport").
type PayloadField struct {
	Protocol string `json:"protocol"`
	Field    string `json:"field"`
}

func NewPayloadField(protocol, field string) PayloadField {
	return PayloadField{Protocol: protocol, Field: field}
}

func (p PayloadField) MarshalJSON() ([]byte, error) {
	type inner PayloadField
	return json.Marshal(map[string]inner{"payload": inner(p)})
}

// PayloadRaw reads Len bits at a raw offset from one of the header bases
// ("ll", "nh" or "th").
type PayloadRaw struct {
	Base   string `json:"base"`
	Offset int    `json:"offset"`
	Len    int    `json:"len"`
}

func (p PayloadRaw) MarshalJSON() ([]byte, error) {
	type inner PayloadRaw
	return json.Marshal(map[string]inner{"payload": inner(p)})
}

// ElemConfig carries per-element set options.
type ElemConfig struct {
	Timeout *int64 `json:"timeout,omitempty"`
	Expires *int64 `json:"expires,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Element is a set element wrapping a value with per-element options.
type Element struct {
	ElemConfig
	Val Expression `json:"val"`
}

func (e Element) MarshalJSON() ([]byte, error) {
	type inner Element
	return json.Marshal(map[string]inner{"elem": inner(e)})
}

// MapElem pairs a map key with its data, for populating map elements.
func MapElem(key, data Expression) Expression {
	return []Expression{key, data}
}
