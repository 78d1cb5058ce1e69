package policy

import (
	"fmt"
	"strings"
)

// Scope qualifies where a named alias or ipset lives. Datacenter names
// come from the cluster config, guest names from one specific guest's
// config, and SDN names from the read-only SDN/IPAM snapshot.
type Scope uint8

const (
	ScopeDatacenter Scope = iota
	ScopeGuest
	ScopeSDN
)

func (s Scope) String() string {
	switch s {
	case ScopeGuest:
		return "guest"
	case ScopeSDN:
		return "sdn"
	}
	return "dc"
}

// ParseScopedName splits a "scope/name" reference. A bare name (no
// slash) defaults to the guest scope; the caller falls back to the
// datacenter scope when no guest context applies.
func ParseScopedName(s string) (Scope, string, error) {
	scopeStr, name, ok := strings.Cut(s, "/")
	if !ok {
		return ScopeGuest, s, nil
	}

	var scope Scope
	switch strings.ToLower(scopeStr) {
	case "dc":
		scope = ScopeDatacenter
	case "guest":
		scope = ScopeGuest
	case "sdn":
		scope = ScopeSDN
	default:
		return 0, "", fmt.Errorf("invalid scope %q in %q", scopeStr, s)
	}
	return scope, name, nil
}

// AliasName is a scoped alias reference as written in a rule.
type AliasName struct {
	Scope Scope
	Name  string
}

func ParseAliasName(s string) (AliasName, error) {
	scope, name, err := ParseScopedName(s)
	if err != nil {
		return AliasName{}, err
	}
	if _, rest, ok := matchName(name); !ok || rest != "" {
		return AliasName{}, fmt.Errorf("invalid alias name %q", s)
	}
	return AliasName{Scope: scope, Name: strings.ToLower(name)}, nil
}

func (a AliasName) String() string {
	return a.Scope.String() + "/" + a.Name
}

// Alias binds a name to a single CIDR.
type Alias struct {
	Name    string
	Address Cidr
	Comment string
}

// ParseAliasLine parses one "[ALIASES]" section line of the form
// "name cidr [# comment]".
func ParseAliasLine(line string) (Alias, error) {
	name, rest, ok := matchName(line)
	if !ok {
		return Alias{}, fmt.Errorf("invalid alias definition %q", line)
	}

	rest, comment := splitComment(rest)
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return Alias{}, fmt.Errorf("alias %q has no address", name)
	}

	addr, err := ParseCidr(rest)
	if err != nil {
		return Alias{}, fmt.Errorf("alias %q: %w", name, err)
	}

	return Alias{Name: strings.ToLower(name), Address: addr, Comment: comment}, nil
}

// splitComment strips a trailing "# comment", splitting at the last
// hash so addresses and options may not contain one.
func splitComment(line string) (rest, comment string) {
	if i := strings.LastIndexByte(line, '#'); i >= 0 {
		return line[:i], strings.TrimSpace(line[i+1:])
	}
	return line, ""
}
