package nftjson

import "encoding/json"

// Statement is any statement inside a rule's expression list. A Verdict
// is also a valid statement.
type Statement = any

// Operator is a relational or bitwise match operator.
type Operator string

const (
	OpAnd        Operator = "&"
	OpOr         Operator = "|"
	OpXor        Operator = "^"
	OpShiftLeft  Operator = "<<"
	OpShiftRight Operator = ">>"
	OpEq         Operator = "=="
	OpNe         Operator = "!="
	OpLt         Operator = "<"
	OpGt         Operator = ">"
	OpLe         Operator = "<="
	OpGe         Operator = ">="
	OpIn         Operator = "in"
)

// Match compares two expressions.
type Match struct {
	Op    Operator   `json:"op"`
	Left  Expression `json:"left"`
	Right Expression `json:"right"`
}

func NewMatch(op Operator, left, right Expression) Match {
	return Match{Op: op, Left: left, Right: right}
}

func MatchEq(left, right Expression) Match {
	return NewMatch(OpEq, left, right)
}

func MatchNe(left, right Expression) Match {
	return NewMatch(OpNe, left, right)
}

func (m Match) MarshalJSON() ([]byte, error) {
	type inner Match
	return json.Marshal(map[string]inner{"match": inner(m)})
}

// Log emits the packet to the logging infrastructure. A Group of 0 is
// meaningful (nflog group 0), hence the pointer fields.
type Log struct {
	Prefix         string `json:"prefix,omitempty"`
	Group          *int64 `json:"group,omitempty"`
	Snaplen        *int64 `json:"snaplen,omitempty"`
	QueueThreshold *int64 `json:"queue-threshold,omitempty"`
	Level          string `json:"level,omitempty"`
}

// NewNflog builds a log statement directed at an nflog group.
func NewNflog(prefix string, group int64) Log {
	return Log{Prefix: prefix, Group: &group}
}

func (l Log) MarshalJSON() ([]byte, error) {
	type inner Log
	return json.Marshal(map[string]inner{"log": inner(l)})
}

// Limit is an anonymous rate limit. With Inv set it matches packets
// exceeding the rate instead of those below it.
type Limit struct {
	Rate      int64         `json:"rate"`
	RateUnit  RateUnit      `json:"rate_unit,omitempty"`
	Per       RateTimescale `json:"per"`
	Burst     *int64        `json:"burst,omitempty"`
	BurstUnit RateUnit      `json:"burst_unit,omitempty"`
	Inv       *bool         `json:"inv,omitempty"`
}

func (l Limit) MarshalJSON() ([]byte, error) {
	type inner Limit
	return json.Marshal(map[string]inner{"limit": inner(l)})
}

// RejectType selects how a reject statement answers the sender.
type RejectType string

const (
	RejectTcpReset RejectType = "tcp reset"
	RejectIcmpX    RejectType = "icmpx"
	RejectIcmp     RejectType = "icmp"
	RejectIcmpV6   RejectType = "icmpv6"
)

// Reject refuses the packet, optionally with an explicit reject type and
// reason expression.
type Reject struct {
	Type RejectType `json:"type,omitempty"`
	Expr Expression `json:"expr,omitempty"`
}

func (r Reject) MarshalJSON() ([]byte, error) {
	type inner Reject
	return json.Marshal(map[string]inner{"reject": inner(r)})
}

// SetOperation is the dynamic-set update mode.
type SetOperation string

const (
	SetOpAdd    SetOperation = "add"
	SetOpUpdate SetOperation = "update"
)

// SetUpdate adds or refreshes an element in a named set from within a
// rule, optionally running per-element statements such as a rate limit.
type SetUpdate struct {
	Op   SetOperation
	Elem Expression
	Set  string
	Stmt []Statement
}

func (s SetUpdate) MarshalJSON() ([]byte, error) {
	inner := struct {
		Op   SetOperation `json:"op"`
		Elem Expression   `json:"elem"`
		Set  string       `json:"set"`
		Stmt any          `json:"stmt,omitempty"`
	}{Op: s.Op, Elem: s.Elem, Set: s.Set}

	// a single statement is emitted bare, not as a one-element array
	switch len(s.Stmt) {
	case 0:
	case 1:
		inner.Stmt = s.Stmt[0]
	default:
		inner.Stmt = s.Stmt
	}

	return json.Marshal(map[string]any{"set": inner})
}

// Vmap dispatches on a verdict map.
type Vmap struct {
	Key  Expression `json:"key"`
	Data Expression `json:"data"`
}

func (v Vmap) MarshalJSON() ([]byte, error) {
	type inner Vmap
	return json.Marshal(map[string]inner{"vmap": inner(v)})
}

// Notrack disables connection tracking for the packet.
type Notrack struct{}

func (Notrack) MarshalJSON() ([]byte, error) {
	return []byte(`{"notrack":null}`), nil
}

// CtHelperStmt assigns a conntrack helper object to the connection.
type CtHelperStmt string

func (c CtHelperStmt) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"ct helper": string(c)})
}

// Comment annotates the rule inside the ruleset listing.
type Comment string

func (c Comment) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"comment": string(c)})
}
