//go:build !linux

package host

import (
	"fmt"
	"net"
	"net/netip"

	"grimm.is/palisade/internal/policy"
)

// InterfaceCidrs lists every address configured on any interface of this
// host, with its network prefix length.
func InterfaceCidrs() ([]policy.Cidr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var cidrs []policy.Cidr
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}

			ip, ok := netip.AddrFromSlice(ipnet.IP)
			if !ok {
				continue
			}

			ones, _ := ipnet.Mask.Size()
			prefix := netip.PrefixFrom(ip.Unmap(), ones)
			if !prefix.IsValid() {
				continue
			}

			cidrs = append(cidrs, policy.CidrFrom(prefix))
		}
	}

	return cidrs, nil
}
