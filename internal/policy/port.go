package policy

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// PortEntry is either a single port or an inclusive "start:end" range.
type PortEntry struct {
	Start uint16
	End   uint16
}

// ParsePortEntry parses a numeric port, a "start:end" range, or a
// service name looked up in /etc/services.
func ParsePortEntry(s string) (PortEntry, error) {
	if start, end, ok := strings.Cut(s, ":"); ok {
		a, err := parsePort(start)
		if err != nil {
			return PortEntry{}, err
		}
		b, err := parsePort(end)
		if err != nil {
			return PortEntry{}, err
		}
		if b < a {
			return PortEntry{}, fmt.Errorf("descending port range %q", s)
		}
		return PortEntry{Start: a, End: b}, nil
	}

	p, err := parsePort(s)
	if err != nil {
		return PortEntry{}, err
	}
	return PortEntry{Start: p, End: p}, nil
}

func (e PortEntry) IsRange() bool { return e.Start != e.End }

func (e PortEntry) String() string {
	if e.IsRange() {
		return fmt.Sprintf("%d:%d", e.Start, e.End)
	}
	return strconv.Itoa(int(e.Start))
}

func parsePort(s string) (uint16, error) {
	if n, err := strconv.ParseUint(s, 10, 16); err == nil {
		return uint16(n), nil
	}
	if p, ok := namedPorts()[s]; ok {
		return p, nil
	}
	return 0, fmt.Errorf("invalid port %q", s)
}

// namedPorts lazily loads the service-name table from /etc/services.
// A missing or unreadable file yields an empty table.
var namedPorts = sync.OnceValue(func() map[string]uint16 {
	ports := make(map[string]uint16)

	f, err := os.Open("/etc/services")
	if err != nil {
		return ports
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		numStr, _, ok := strings.Cut(fields[1], "/")
		if !ok {
			continue
		}
		num, err := strconv.ParseUint(numStr, 10, 16)
		if err != nil {
			continue
		}

		if _, exists := ports[fields[0]]; !exists {
			ports[fields[0]] = uint16(num)
		}
		for _, alias := range fields[2:] {
			if _, exists := ports[alias]; !exists {
				ports[alias] = uint16(num)
			}
		}
	}
	return ports
})

// PortList is a comma-separated list of port entries.
type PortList struct {
	Entries []PortEntry
}

func ParsePortList(s string) (PortList, error) {
	var list PortList
	for _, part := range strings.Split(s, ",") {
		entry, err := ParsePortEntry(strings.TrimSpace(part))
		if err != nil {
			return PortList{}, err
		}
		list.Entries = append(list.Entries, entry)
	}
	if len(list.Entries) == 0 {
		return PortList{}, fmt.Errorf("empty port list")
	}
	return list, nil
}

func (l PortList) String() string {
	parts := make([]string, len(l.Entries))
	for i, e := range l.Entries {
		parts[i] = e.String()
	}
	if len(parts) > 1 {
		return "{" + strings.Join(parts, ",") + "}"
	}
	return parts[0]
}
