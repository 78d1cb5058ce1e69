//go:build linux

package host

import (
	"fmt"
	"net/netip"

	"github.com/vishvananda/netlink"

	"grimm.is/palisade/internal/policy"
)

// InterfaceCidrs lists every address configured on any interface of this
// host, with its network prefix length.
func InterfaceCidrs() ([]policy.Cidr, error) {
	addrs, err := netlink.AddrList(nil, netlink.FAMILY_ALL)
	if err != nil {
		return nil, fmt.Errorf("list interface addresses: %w", err)
	}

	var cidrs []policy.Cidr
	for _, addr := range addrs {
		if addr.IPNet == nil {
			continue
		}

		ip, ok := netip.AddrFromSlice(addr.IPNet.IP)
		if !ok {
			continue
		}

		ones, _ := addr.IPNet.Mask.Size()
		prefix := netip.PrefixFrom(ip.Unmap(), ones)
		if !prefix.IsValid() {
			continue
		}

		cidrs = append(cidrs, policy.CidrFrom(prefix))
	}

	return cidrs, nil
}
