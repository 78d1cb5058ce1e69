package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// RuleMatch is the fully typed form of one concrete rule line:
// direction, verdict, and the optional match parameters.
type RuleMatch struct {
	Direction Direction
	Verdict   Verdict
	Macro     string

	Iface string
	Log   *LogLevel
	IP    *IPMatch
	Proto *Protocol
}

// ParseRuleMatch parses "DIR VERDICT [options]" or
// "DIR MACRO(VERDICT) [options]".
func ParseRuleMatch(line string) (RuleMatch, error) {
	dirStr, rest, ok := matchName(line)
	if !ok {
		return RuleMatch{}, fmt.Errorf("expected a direction")
	}
	dir, err := ParseDirection(dirStr)
	if err != nil {
		return RuleMatch{}, err
	}

	macro, verdict, rest, err := parseAction(strings.TrimSpace(rest))
	if err != nil {
		return RuleMatch{}, err
	}

	options, err := parseRuleOptions(strings.TrimSpace(rest))
	if err != nil {
		return RuleMatch{}, err
	}

	return ruleMatchFromOptions(dir, verdict, macro, options)
}

// parseAction splits off "VERDICT" or "MACRO(VERDICT)".
func parseAction(line string) (macro string, verdict Verdict, rest string, err error) {
	name, rest, ok := matchName(line)
	if !ok {
		return "", 0, "", fmt.Errorf("expected a verdict or macro name")
	}

	if inner, found := strings.CutPrefix(rest, "("); found {
		verdictStr, inner, ok := matchName(inner)
		if !ok {
			return "", 0, "", fmt.Errorf("expected a verdict after %q(", name)
		}
		rest, found = strings.CutPrefix(inner, ")")
		if !found {
			return "", 0, "", fmt.Errorf("expected closing ')' after verdict")
		}
		verdict, err = ParseVerdict(verdictStr)
		if err != nil {
			return "", 0, "", err
		}
		return name, verdict, strings.TrimSpace(rest), nil
	}

	verdict, err = ParseVerdict(name)
	if err != nil {
		return "", 0, "", err
	}
	return "", verdict, strings.TrimSpace(rest), nil
}

func ruleMatchFromOptions(dir Direction, verdict Verdict, macro string, options ruleOptions) (RuleMatch, error) {
	if options.dport != "" && options.icmpType != "" {
		return RuleMatch{}, fmt.Errorf("dport and icmp-type are mutually exclusive")
	}

	ip, err := ipMatchFromOptions(options)
	if err != nil {
		return RuleMatch{}, err
	}
	proto, err := protocolFromOptions(options)
	if err != nil {
		return RuleMatch{}, err
	}

	var log *LogLevel
	if options.log != "" {
		level, err := ParseLogLevel(options.log)
		if err != nil {
			return RuleMatch{}, err
		}
		log = &level
	}

	return RuleMatch{
		Direction: dir,
		Verdict:   verdict,
		Macro:     macro,
		Iface:     options.iface,
		Log:       log,
		IP:        ip,
		Proto:     proto,
	}, nil
}

// ruleOptions collects the raw "-key value" option strings of a rule
// line before they are typed.
type ruleOptions struct {
	proto    string
	dport    string
	sport    string
	dest     string
	source   string
	iface    string
	log      string
	icmpType string
}

const (
	optProto = iota
	optDport
	optSport
	optDest
	optSource
	optIface
	optLog
	optIcmpType
)

func (o ruleOptions) anySet(keys ...int) bool {
	for _, key := range keys {
		var value string
		switch key {
		case optProto:
			value = o.proto
		case optDport:
			value = o.dport
		case optSport:
			value = o.sport
		case optDest:
			value = o.dest
		case optSource:
			value = o.source
		case optIface:
			value = o.iface
		case optLog:
			value = o.log
		case optIcmpType:
			value = o.icmpType
		}
		if value != "" {
			return true
		}
	}
	return false
}

// parseRuleOptions scans "-key value" pairs. The second dash of
// "--key" is optional; duplicate keys are rejected.
func parseRuleOptions(line string) (ruleOptions, error) {
	var options ruleOptions
	seen := map[string]bool{}

	for {
		line = strings.TrimLeft(line, " \t")
		if line == "" {
			break
		}

		rest, ok := strings.CutPrefix(line, "-")
		if !ok {
			return ruleOptions{}, fmt.Errorf("expected an option starting with '-'")
		}
		rest = strings.TrimPrefix(rest, "-")

		param, rest, ok := matchName(rest)
		if !ok {
			return ruleOptions{}, fmt.Errorf("expected a parameter name after '-'")
		}

		value, rest, ok := matchNonWhitespace(strings.TrimLeft(rest, " \t"))
		if !ok {
			return ruleOptions{}, fmt.Errorf("expected a value for %q", param)
		}

		if seen[param] {
			return ruleOptions{}, fmt.Errorf("duplicate option in rule: %s", param)
		}
		seen[param] = true

		switch param {
		case "p", "proto":
			options.proto = value
		case "dport":
			options.dport = value
		case "sport":
			options.sport = value
		case "dest":
			options.dest = value
		case "source":
			options.source = value
		case "i", "iface":
			options.iface = value
		case "log":
			options.log = value
		case "icmp-type":
			options.icmpType = value
		default:
			return ruleOptions{}, fmt.Errorf("unknown rule option %q", param)
		}

		line = rest
	}
	return options, nil
}

// IPMatch holds the source and destination address matches of a rule.
// At least one side is set; two literal lists must share a family.
type IPMatch struct {
	Src *IPAddrMatch
	Dst *IPAddrMatch
}

func NewIPMatch(src, dst *IPAddrMatch) (IPMatch, error) {
	if src == nil && dst == nil {
		return IPMatch{}, fmt.Errorf("either source or destination must be set")
	}
	if src != nil && dst != nil && src.List != nil && dst.List != nil {
		if src.List.Family() != dst.List.Family() {
			return IPMatch{}, fmt.Errorf("source and destination families must match")
		}
	}
	return IPMatch{Src: src, Dst: dst}, nil
}

func ipMatchFromOptions(options ruleOptions) (*IPMatch, error) {
	var src, dst *IPAddrMatch

	if options.source != "" {
		m, err := ParseIPAddrMatch(options.source)
		if err != nil {
			return nil, err
		}
		src = &m
	}
	if options.dest != "" {
		m, err := ParseIPAddrMatch(options.dest)
		if err != nil {
			return nil, err
		}
		dst = &m
	}

	if src == nil && dst == nil {
		return nil, nil
	}
	match, err := NewIPMatch(src, dst)
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// IPAddrMatch is one side of an address match: a literal list, a named
// set reference, or an alias reference. Exactly one field is set.
type IPAddrMatch struct {
	List  *IPList
	Set   *IpsetName
	Alias *AliasName
}

// ParseIPAddrMatch tries, in order: literal address list, "+" set
// reference, alias name.
func ParseIPAddrMatch(value string) (IPAddrMatch, error) {
	if value == "" {
		return IPAddrMatch{}, fmt.Errorf("empty IP specification")
	}

	if list, err := ParseIPList(value); err == nil {
		return IPAddrMatch{List: &list}, nil
	}
	if set, err := ParseIpsetRef(value); err == nil {
		return IPAddrMatch{Set: &set}, nil
	}
	if alias, err := ParseAliasName(value); err == nil {
		return IPAddrMatch{Alias: &alias}, nil
	}
	return IPAddrMatch{}, fmt.Errorf("invalid IP specification %q", value)
}

// Family returns a family only for literal lists; set and alias
// references resolve at compile time.
func (m IPAddrMatch) Family() (Family, bool) {
	if m.List != nil {
		return m.List.Family(), true
	}
	return 0, false
}

// ProtoKind enumerates the protocol variants a rule may match on.
type ProtoKind uint8

const (
	ProtoTCP ProtoKind = iota
	ProtoUDP
	ProtoSCTP
	ProtoDCCP
	ProtoUDPLite
	ProtoICMP
	ProtoICMPv6
	ProtoNamed
	ProtoNumeric
)

// Protocol is a rule's typed protocol match. Port-carrying kinds use
// Sport/Dport; the ICMP kinds use IcmpType/IcmpCode; Named and Numeric
// carry only their identity.
type Protocol struct {
	Kind ProtoKind

	Sport *PortList
	Dport *PortList

	IcmpType *IcmpValue
	IcmpCode *IcmpValue

	Name   string
	Number uint8
}

func protocolFromOptions(options ruleOptions) (*Protocol, error) {
	if options.proto == "" {
		return nil, nil
	}

	var proto Protocol
	switch options.proto {
	case "tcp", "6":
		proto.Kind = ProtoTCP
	case "udp", "17":
		proto.Kind = ProtoUDP
	case "sctp", "132":
		proto.Kind = ProtoSCTP
	case "dccp", "33":
		proto.Kind = ProtoDCCP
	case "udplite", "136":
		proto.Kind = ProtoUDPLite
	case "icmp", "1":
		proto.Kind = ProtoICMP
	case "ipv6-icmp", "icmpv6", "58":
		proto.Kind = ProtoICMPv6
	default:
		if num, err := strconv.ParseUint(options.proto, 10, 8); err == nil {
			proto.Kind = ProtoNumeric
			proto.Number = uint8(num)
		} else {
			proto.Kind = ProtoNamed
			proto.Name = options.proto
		}
		return &proto, nil
	}

	switch proto.Kind {
	case ProtoICMP, ProtoICMPv6:
		if options.icmpType != "" {
			ty, code, err := parseIcmpValue(proto.Kind, options.icmpType)
			if err != nil {
				return nil, err
			}
			proto.IcmpType = ty
			proto.IcmpCode = code
		}
	default:
		if options.sport != "" {
			sport, err := ParsePortList(options.sport)
			if err != nil {
				return nil, err
			}
			proto.Sport = &sport
		}
		if options.dport != "" {
			dport, err := ParsePortList(options.dport)
			if err != nil {
				return nil, err
			}
			proto.Dport = &dport
		}
	}
	return &proto, nil
}

// Family reports the protocol's inherent address family. Only the two
// ICMP variants pin a family.
func (p Protocol) Family() (Family, bool) {
	switch p.Kind {
	case ProtoICMP:
		return FamilyV4, true
	case ProtoICMPv6:
		return FamilyV6, true
	}
	return 0, false
}

// HasPorts reports whether this protocol kind carries port matches.
func (p Protocol) HasPorts() bool {
	switch p.Kind {
	case ProtoTCP, ProtoUDP, ProtoSCTP, ProtoDCCP, ProtoUDPLite:
		return true
	}
	return false
}

// WireName is the protocol name as the packet filter engine spells it.
func (p Protocol) WireName() string {
	switch p.Kind {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	case ProtoSCTP:
		return "sctp"
	case ProtoDCCP:
		return "dccp"
	case ProtoUDPLite:
		return "udplite"
	case ProtoICMP:
		return "icmp"
	case ProtoICMPv6:
		return "ipv6-icmp"
	case ProtoNamed:
		return p.Name
	}
	return strconv.Itoa(int(p.Number))
}

// IcmpValue is a symbolic or numeric ICMP type or code.
type IcmpValue struct {
	Name   string
	Number uint8
	Named  bool
}

func (v IcmpValue) String() string {
	if v.Named {
		return v.Name
	}
	return strconv.Itoa(int(v.Number))
}

// parseIcmpValue resolves "-icmp-type" against the symbolic tables for
// the given ICMP variant: a number or a type name yields a type match,
// a code name yields a code match.
func parseIcmpValue(kind ProtoKind, s string) (ty, code *IcmpValue, err error) {
	s = strings.TrimSpace(s)

	if num, err := strconv.ParseUint(s, 10, 8); err == nil {
		return &IcmpValue{Number: uint8(num)}, nil, nil
	}

	types, codes := icmpV4Types, icmpV4Codes
	if kind == ProtoICMPv6 {
		types, codes = icmpV6Types, icmpV6Codes
	}

	if _, ok := types[s]; ok {
		return &IcmpValue{Name: s, Named: true}, nil, nil
	}
	if _, ok := codes[s]; ok {
		return nil, &IcmpValue{Name: s, Named: true}, nil
	}
	return nil, nil, fmt.Errorf("%q is not a valid icmp type or code", s)
}

var icmpV4Types = map[string]uint8{
	"address-mask-reply":      18,
	"address-mask-request":    17,
	"destination-unreachable": 3,
	"echo-reply":              0,
	"echo-request":            8,
	"info-reply":              16,
	"info-request":            15,
	"parameter-problem":       12,
	"redirect":                5,
	"router-advertisement":    9,
	"router-solicitation":     10,
	"source-quench":           4,
	"time-exceeded":           11,
	"timestamp-reply":         14,
	"timestamp-request":       13,
}

var icmpV4Codes = map[string]uint8{
	"admin-prohibited": 13,
	"host-prohibited":  10,
	"host-unreachable": 1,
	"net-prohibited":   9,
	"net-unreachable":  0,
	"port-unreachable": 3,
	"prot-unreachable": 2,
}

var icmpV6Types = map[string]uint8{
	"destination-unreachable": 1,
	"echo-reply":              129,
	"echo-request":            128,
	"ind-neighbor-advert":     142,
	"ind-neighbor-solicit":    141,
	"mld-listener-done":       132,
	"mld-listener-query":      130,
	"mld-listener-reduction":  132,
	"mld-listener-report":     131,
	"mld2-listener-report":    143,
	"nd-neighbor-advert":      136,
	"nd-neighbor-solicit":     135,
	"nd-redirect":             137,
	"nd-router-advert":        134,
	"nd-router-solicit":       133,
	"packet-too-big":          2,
	"parameter-problem":       4,
	"router-renumbering":      138,
	"time-exceeded":           3,
}

var icmpV6Codes = map[string]uint8{
	"addr-unreachable": 3,
	"admin-prohibited": 1,
	"no-route":         0,
	"policy-fail":      5,
	"port-unreachable": 4,
	"reject-route":     6,
}
