package host

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// InterfaceMapping maps alternative interface names to the kernel name,
// so policy rules written against a stable altname resolve to the name
// the packet filter actually sees.
type InterfaceMapping map[string]string

// Resolve returns the kernel name for an interface reference. Unknown
// names resolve to themselves.
func (m InterfaceMapping) Resolve(name string) string {
	if kernel, ok := m[name]; ok {
		return kernel
	}
	return name
}

type linkEntry struct {
	Ifname   string   `json:"ifname"`
	Altnames []string `json:"altnames"`
}

// ParseInterfaceMapping builds a mapping from `ip -j link` output.
func ParseInterfaceMapping(data []byte) (InterfaceMapping, error) {
	var links []linkEntry
	if err := json.Unmarshal(data, &links); err != nil {
		return nil, fmt.Errorf("parse link list: %w", err)
	}

	mapping := make(InterfaceMapping)
	for _, link := range links {
		for _, alt := range link.Altnames {
			mapping[alt] = link.Ifname
		}
	}

	return mapping, nil
}

// LoadInterfaceMapping queries the kernel's link list via the ip tool.
func LoadInterfaceMapping(ctx context.Context) (InterfaceMapping, error) {
	out, err := exec.CommandContext(ctx, "ip", "-j", "link").Output()
	if err != nil {
		return nil, fmt.Errorf("run ip -j link: %w", err)
	}

	return ParseInterfaceMapping(out)
}
