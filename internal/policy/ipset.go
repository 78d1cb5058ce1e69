package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// IpsetKind tags how a set is consumed. Ordinary sets become named
// engine sets; a guest set named "ipfilter-net<N>" is the implicit
// address filter for that guest's network device N and is consumed by
// the per-device filter rules instead. The classification happens once
// at parse time.
type IpsetKind uint8

const (
	IpsetOrdinary IpsetKind = iota
	IpsetDeviceFilter
)

const deviceFilterPrefix = "ipfilter-net"

// IpsetName is a scoped set name. Kind and DeviceIndex are derived
// from the name when it is constructed.
type IpsetName struct {
	Scope       Scope
	Name        string
	Kind        IpsetKind
	DeviceIndex int
}

func NewIpsetName(scope Scope, name string) IpsetName {
	n := IpsetName{Scope: scope, Name: name, Kind: IpsetOrdinary}
	if scope == ScopeGuest {
		if idx, ok := deviceFilterIndex(name); ok {
			n.Kind = IpsetDeviceFilter
			n.DeviceIndex = idx
		}
	}
	return n
}

// ParseIpsetRef parses a "+scope/name" set reference from a rule,
// including the leading plus sign.
func ParseIpsetRef(s string) (IpsetName, error) {
	if !strings.HasPrefix(s, "+") {
		return IpsetName{}, fmt.Errorf("invalid ipset reference %q", s)
	}
	scope, name, err := ParseScopedName(s[1:])
	if err != nil {
		return IpsetName{}, err
	}
	if _, rest, ok := matchName(name); !ok || rest != "" {
		return IpsetName{}, fmt.Errorf("invalid ipset name %q", s)
	}
	return NewIpsetName(scope, strings.ToLower(name)), nil
}

func (n IpsetName) String() string {
	return "+" + n.Scope.String() + "/" + n.Name
}

func deviceFilterIndex(name string) (int, bool) {
	rest, ok := strings.CutPrefix(strings.ToLower(name), deviceFilterPrefix)
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(rest)
	if err != nil || idx < 0 || idx >= MaxNetworkDevices {
		return 0, false
	}
	return idx, true
}

// DeviceFilterName returns the conventional name of the implicit
// address filter set for network device idx.
func DeviceFilterName(idx int) string {
	return deviceFilterPrefix + strconv.Itoa(idx)
}

// MaxNetworkDevices bounds the net<N> device keys a guest config may carry.
const MaxNetworkDevices = 31

// IpsetEntry is one member line: a CIDR, a range, or an alias
// reference, optionally negated.
type IpsetEntry struct {
	Nomatch bool
	Cidr    *Cidr
	Range   *IPRange
	Alias   *AliasName
	Comment string
}

// ParseIpsetEntry parses one member line of an "[IPSET ...]" section,
// e.g. "!10.0.0.0/8 # internal".
func ParseIpsetEntry(line string) (IpsetEntry, error) {
	var entry IpsetEntry

	rest, comment := splitComment(line)
	entry.Comment = comment

	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "!") {
		entry.Nomatch = true
		rest = strings.TrimSpace(rest[1:])
	}
	if rest == "" {
		return IpsetEntry{}, fmt.Errorf("empty ipset entry")
	}

	if ip, err := ParseIPEntry(rest); err == nil {
		entry.Cidr = ip.Cidr
		entry.Range = ip.Range
		return entry, nil
	}

	alias, err := ParseAliasName(rest)
	if err != nil {
		return IpsetEntry{}, fmt.Errorf("invalid ipset entry %q", line)
	}
	entry.Alias = &alias
	return entry, nil
}

// Family returns the entry's address family when it is directly known.
// Alias entries resolve at compile time, so ok is false for those.
func (e IpsetEntry) Family() (Family, bool) {
	switch {
	case e.Cidr != nil:
		return e.Cidr.Family(), true
	case e.Range != nil:
		return e.Range.Family(), true
	}
	return 0, false
}

// Ipset is a named collection of entries from an "[IPSET name]" section.
type Ipset struct {
	Name    IpsetName
	Entries []IpsetEntry
	Comment string
}
