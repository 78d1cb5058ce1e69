package policy

import (
	"fmt"
	"net/netip"
	"strings"
)

// Family distinguishes the two IP protocol families the firewall
// compiles for. Most match values carry a family so that rules can be
// pinned to the correct table family at emission time.
type Family uint8

const (
	FamilyV4 Family = iota
	FamilyV6
)

func (f Family) String() string {
	if f == FamilyV6 {
		return "v6"
	}
	return "v4"
}

// Families returns both families in emission order.
func Families() []Family {
	return []Family{FamilyV4, FamilyV6}
}

// Cidr is an address with an optional prefix length. A bare address
// parses as a full-length prefix.
type Cidr struct {
	prefix netip.Prefix
}

func ParseCidr(s string) (Cidr, error) {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return Cidr{}, fmt.Errorf("invalid CIDR %q: %w", s, err)
		}
		return Cidr{prefix: p.Masked()}, nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return Cidr{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return Cidr{prefix: netip.PrefixFrom(addr, addr.BitLen())}, nil
}

// CidrFrom builds a Cidr from an already-parsed prefix.
func CidrFrom(p netip.Prefix) Cidr {
	return Cidr{prefix: p.Masked()}
}

// CidrFromAddr builds a host Cidr from a single address.
func CidrFromAddr(a netip.Addr) Cidr {
	return Cidr{prefix: netip.PrefixFrom(a, a.BitLen())}
}

func (c Cidr) Family() Family {
	if c.prefix.Addr().Is4() {
		return FamilyV4
	}
	return FamilyV6
}

func (c Cidr) Addr() netip.Addr { return c.prefix.Addr() }
func (c Cidr) Bits() int        { return c.prefix.Bits() }
func (c Cidr) Prefix() netip.Prefix {
	return c.prefix
}

// IsHost reports whether the prefix covers a single address.
func (c Cidr) IsHost() bool {
	return c.prefix.Bits() == c.prefix.Addr().BitLen()
}

func (c Cidr) String() string {
	if c.IsHost() {
		return c.prefix.Addr().String()
	}
	return c.prefix.String()
}

// IPRange is an inclusive address range with both ends in the same family.
type IPRange struct {
	Start netip.Addr
	End   netip.Addr
}

func ParseIPRange(s string) (IPRange, error) {
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return IPRange{}, fmt.Errorf("invalid IP range %q", s)
	}

	a, err := netip.ParseAddr(start)
	if err != nil {
		return IPRange{}, fmt.Errorf("invalid range start in %q: %w", s, err)
	}
	b, err := netip.ParseAddr(end)
	if err != nil {
		return IPRange{}, fmt.Errorf("invalid range end in %q: %w", s, err)
	}

	if a.Is4() != b.Is4() {
		return IPRange{}, fmt.Errorf("mixed families in IP range %q", s)
	}
	if b.Less(a) {
		return IPRange{}, fmt.Errorf("descending IP range %q", s)
	}
	return IPRange{Start: a, End: b}, nil
}

func (r IPRange) Family() Family {
	if r.Start.Is4() {
		return FamilyV4
	}
	return FamilyV6
}

func (r IPRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// IPEntry is one element of an address list: either a CIDR or a range.
type IPEntry struct {
	Cidr  *Cidr
	Range *IPRange
}

func ParseIPEntry(s string) (IPEntry, error) {
	if strings.Contains(s, "-") {
		r, err := ParseIPRange(s)
		if err != nil {
			return IPEntry{}, err
		}
		return IPEntry{Range: &r}, nil
	}

	c, err := ParseCidr(s)
	if err != nil {
		return IPEntry{}, err
	}
	return IPEntry{Cidr: &c}, nil
}

func (e IPEntry) Family() Family {
	if e.Range != nil {
		return e.Range.Family()
	}
	return e.Cidr.Family()
}

func (e IPEntry) String() string {
	if e.Range != nil {
		return e.Range.String()
	}
	return e.Cidr.String()
}

// IPList is a comma-separated list of entries that must all share one family.
type IPList struct {
	Entries []IPEntry
	family  Family
}

func ParseIPList(s string) (IPList, error) {
	parts := strings.Split(s, ",")
	list := IPList{}
	for i, part := range parts {
		entry, err := ParseIPEntry(strings.TrimSpace(part))
		if err != nil {
			return IPList{}, err
		}
		if i == 0 {
			list.family = entry.Family()
		} else if entry.Family() != list.family {
			return IPList{}, fmt.Errorf("mixed families in address list %q", s)
		}
		list.Entries = append(list.Entries, entry)
	}
	if len(list.Entries) == 0 {
		return IPList{}, fmt.Errorf("empty address list")
	}
	return list, nil
}

// IPListFromEntries builds a list from pre-parsed entries, which must
// be non-empty and single-family.
func IPListFromEntries(entries []IPEntry) (IPList, error) {
	if len(entries) == 0 {
		return IPList{}, fmt.Errorf("empty address list")
	}
	family := entries[0].Family()
	for _, e := range entries[1:] {
		if e.Family() != family {
			return IPList{}, fmt.Errorf("mixed families in address list")
		}
	}
	return IPList{Entries: entries, family: family}, nil
}

func (l IPList) Family() Family { return l.family }

func (l IPList) String() string {
	parts := make([]string, len(l.Entries))
	for i, e := range l.Entries {
		parts[i] = e.String()
	}
	return strings.Join(parts, ",")
}
