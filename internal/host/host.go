// Package host resolves properties of the node the daemon runs on: the
// addresses its hostname points at, the CIDRs configured on its network
// interfaces, and the kernel's interface name mapping. The management
// network autodetection feeds the synthesized "management" ipset when the
// cluster policy does not define one.
package host

import (
	"fmt"
	"net"
	"net/netip"
	"os"

	"grimm.is/palisade/internal/policy"
)

// WriteTunable writes a kernel runtime tunable or flag file.
func WriteTunable(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}

// Hostname returns the node name used for guest locality checks.
func Hostname() (string, error) {
	name, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("read hostname: %w", err)
	}
	return name, nil
}

// IPs resolves the local hostname to the node's addresses.
func IPs() ([]netip.Addr, error) {
	hostname, err := Hostname()
	if err != nil {
		return nil, err
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", hostname, err)
	}

	addrs := make([]netip.Addr, 0, len(ips))
	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		addrs = append(addrs, addr.Unmap())
	}

	return addrs, nil
}

// ManagementCidrs selects the interface networks that carry one of the
// host's own addresses. Each host address contributes every CIDR
// containing it.
func ManagementCidrs(hostIPs []netip.Addr, ifaceCidrs []policy.Cidr) []policy.Cidr {
	var management []policy.Cidr

	for _, ip := range hostIPs {
		for _, cidr := range ifaceCidrs {
			if cidr.Prefix().Contains(ip) {
				management = append(management, cidr)
			}
		}
	}

	return management
}

// ManagementNetworks detects the management networks of this node from
// its live configuration.
func ManagementNetworks() ([]policy.Cidr, error) {
	ips, err := IPs()
	if err != nil {
		return nil, err
	}

	cidrs, err := InterfaceCidrs()
	if err != nil {
		return nil, err
	}

	return ManagementCidrs(ips, cidrs), nil
}
