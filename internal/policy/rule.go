package policy

import (
	"fmt"
	"strings"
)

// Direction is the traffic direction a rule applies to. Forward is
// only valid in bridge-level rule sections.
type Direction uint8

const (
	DirIn Direction = iota
	DirOut
	DirForward
)

func ParseDirection(s string) (Direction, error) {
	switch {
	case strings.EqualFold(s, "IN"):
		return DirIn, nil
	case strings.EqualFold(s, "OUT"):
		return DirOut, nil
	case strings.EqualFold(s, "FORWARD"):
		return DirForward, nil
	}
	return 0, fmt.Errorf("invalid direction %q, expected IN, OUT or FORWARD", s)
}

func (d Direction) String() string {
	switch d {
	case DirOut:
		return "out"
	case DirForward:
		return "forward"
	}
	return "in"
}

// Verdict is the action a matching rule takes.
type Verdict uint8

const (
	VerdictAccept Verdict = iota
	VerdictReject
	VerdictDrop
)

func ParseVerdict(s string) (Verdict, error) {
	switch {
	case strings.EqualFold(s, "ACCEPT"):
		return VerdictAccept, nil
	case strings.EqualFold(s, "REJECT"):
		return VerdictReject, nil
	case strings.EqualFold(s, "DROP"):
		return VerdictDrop, nil
	}
	return 0, fmt.Errorf("invalid verdict %q, expected ACCEPT, REJECT or DROP", s)
}

func (v Verdict) String() string {
	switch v {
	case VerdictReject:
		return "REJECT"
	case VerdictDrop:
		return "DROP"
	}
	return "ACCEPT"
}

// Rule is one line of a [RULES] or group section: either a concrete
// match rule or a reference to a rule group. Exactly one of Match and
// Group is set.
type Rule struct {
	Disabled bool
	Comment  string
	Match    *RuleMatch
	Group    *RuleGroup
}

// ParseRule parses a single rule line. A leading "|" disables the
// rule, a trailing "# ..." is a comment (split at the last hash).
func ParseRule(input string) (Rule, error) {
	if strings.ContainsAny(input, "\n\r") {
		return Rule{}, fmt.Errorf("rule must not contain newlines")
	}

	var rule Rule

	line := input
	if i := strings.LastIndexByte(line, '#'); i >= 0 && strings.TrimSpace(line[i+1:]) != "" {
		rule.Comment = strings.TrimSpace(line[i+1:])
		line = line[:i]
	}
	line = strings.TrimSpace(line)

	if rest, ok := strings.CutPrefix(line, "|"); ok {
		rule.Disabled = true
		line = strings.TrimSpace(rest)
	}

	if strings.HasPrefix(line, "GROUP") {
		group, err := parseRuleGroup(line)
		if err != nil {
			return Rule{}, err
		}
		rule.Group = &group
		return rule, nil
	}

	match, err := ParseRuleMatch(line)
	if err != nil {
		return Rule{}, err
	}
	rule.Match = &match
	return rule, nil
}

// Iface returns the interface restriction of either rule kind.
func (r Rule) Iface() string {
	if r.Group != nil {
		return r.Group.Iface
	}
	if r.Match != nil {
		return r.Match.Iface
	}
	return ""
}

// RuleGroup references a cluster-level rule group, optionally
// restricted to one interface.
type RuleGroup struct {
	Name  string
	Iface string
}

func parseRuleGroup(input string) (RuleGroup, error) {
	keyword, rest, ok := matchName(input)
	if !ok || !strings.EqualFold(keyword, "group") {
		return RuleGroup{}, fmt.Errorf("expected keyword GROUP")
	}

	name, rest, ok := matchName(strings.TrimSpace(rest))
	if !ok {
		return RuleGroup{}, fmt.Errorf("expected a rule group name")
	}

	options, err := parseRuleOptions(strings.TrimSpace(rest))
	if err != nil {
		return RuleGroup{}, err
	}
	if options.anySet(optProto, optDport, optSport, optDest, optSource, optLog, optIcmpType) {
		return RuleGroup{}, fmt.Errorf("only the interface parameter is permitted for group rules")
	}

	return RuleGroup{Name: name, Iface: options.iface}, nil
}
