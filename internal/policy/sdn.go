package policy

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// SdnConfig is the read-only snapshot of the software-defined-network
// layer: virtual network subnets and the addresses the IPAM handed
// out. It is exposed to rules as sdn/-scoped sets.
type SdnConfig struct {
	Vnets map[string]SdnVnet
	// GuestAddrs maps a guest id to the addresses IPAM allocated to it.
	GuestAddrs map[uint32][]Cidr
}

// SdnVnet is one virtual network with its subnets.
type SdnVnet struct {
	Name    string
	Subnets []SdnSubnet
}

// SdnSubnet is one address pool of a vnet.
type SdnSubnet struct {
	Cidr    Cidr
	Gateway *Cidr
}

type sdnRunningJSON struct {
	Vnets struct {
		IDs map[string]struct {
			Zone string `json:"zone"`
		} `json:"ids"`
	} `json:"vnets"`
	Subnets struct {
		IDs map[string]struct {
			Vnet    string `json:"vnet"`
			Gateway string `json:"gateway"`
		} `json:"ids"`
	} `json:"subnets"`
}

type sdnIpamJSON struct {
	Zones map[string]struct {
		Subnets map[string]struct {
			IPs map[string]struct {
				Vmid json.Number `json:"vmid"`
			} `json:"ips"`
		} `json:"subnets"`
	} `json:"zones"`
}

// ParseSdnRunningConfig reads the SDN running-config JSON: vnet ids
// plus subnet ids of the form "<zone>-<addr>-<prefixlen>".
func ParseSdnRunningConfig(input io.Reader) (*SdnConfig, error) {
	var raw sdnRunningJSON
	if err := json.NewDecoder(input).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid sdn running config: %w", err)
	}

	cfg := &SdnConfig{
		Vnets:      map[string]SdnVnet{},
		GuestAddrs: map[uint32][]Cidr{},
	}
	for name := range raw.Vnets.IDs {
		cfg.Vnets[name] = SdnVnet{Name: name}
	}

	for id, subnet := range raw.Subnets.IDs {
		cidr, err := parseSubnetID(id)
		if err != nil {
			return nil, err
		}

		entry := SdnSubnet{Cidr: cidr}
		if subnet.Gateway != "" {
			gw, err := ParseCidr(subnet.Gateway)
			if err != nil {
				return nil, fmt.Errorf("subnet %q: %w", id, err)
			}
			entry.Gateway = &gw
		}

		vnet, ok := cfg.Vnets[subnet.Vnet]
		if !ok {
			vnet = SdnVnet{Name: subnet.Vnet}
		}
		vnet.Subnets = append(vnet.Subnets, entry)
		cfg.Vnets[subnet.Vnet] = vnet
	}
	return cfg, nil
}

// LoadIpam merges the IPAM database into the snapshot, recording which
// addresses belong to which guest.
func (c *SdnConfig) LoadIpam(input io.Reader) error {
	var raw sdnIpamJSON
	if err := json.NewDecoder(input).Decode(&raw); err != nil {
		return fmt.Errorf("invalid ipam database: %w", err)
	}

	for _, zone := range raw.Zones {
		for _, subnet := range zone.Subnets {
			for ip, entry := range subnet.IPs {
				vmid, err := entry.Vmid.Int64()
				if err != nil || vmid <= 0 {
					continue
				}
				cidr, err := ParseCidr(ip)
				if err != nil {
					continue
				}
				c.GuestAddrs[uint32(vmid)] = append(c.GuestAddrs[uint32(vmid)], cidr)
			}
		}
	}

	for vmid := range c.GuestAddrs {
		addrs := c.GuestAddrs[vmid]
		sort.Slice(addrs, func(i, j int) bool {
			return addrs[i].String() < addrs[j].String()
		})
	}
	return nil
}

// Ipsets synthesizes the sdn/-scoped sets: per vnet an "<name>-all"
// set of its subnets and an "<name>-gateway" set, plus one
// "guest-ipam-<vmid>" set per guest with IPAM-managed addresses.
func (c *SdnConfig) Ipsets() []Ipset {
	var sets []Ipset

	vnetNames := make([]string, 0, len(c.Vnets))
	for name := range c.Vnets {
		vnetNames = append(vnetNames, name)
	}
	sort.Strings(vnetNames)

	for _, name := range vnetNames {
		vnet := c.Vnets[name]

		all := Ipset{Name: NewIpsetName(ScopeSDN, name+"-all")}
		gateway := Ipset{Name: NewIpsetName(ScopeSDN, name+"-gateway")}
		for _, subnet := range vnet.Subnets {
			cidr := subnet.Cidr
			all.Entries = append(all.Entries, IpsetEntry{Cidr: &cidr})
			if subnet.Gateway != nil {
				gw := *subnet.Gateway
				gateway.Entries = append(gateway.Entries, IpsetEntry{Cidr: &gw})
			}
		}

		sets = append(sets, all)
		if len(gateway.Entries) > 0 {
			sets = append(sets, gateway)
		}
	}

	vmids := make([]uint32, 0, len(c.GuestAddrs))
	for vmid := range c.GuestAddrs {
		vmids = append(vmids, vmid)
	}
	sort.Slice(vmids, func(i, j int) bool { return vmids[i] < vmids[j] })

	for _, vmid := range vmids {
		set := Ipset{Name: NewIpsetName(ScopeSDN, fmt.Sprintf("guest-ipam-%d", vmid))}
		for _, cidr := range c.GuestAddrs[vmid] {
			cidr := cidr
			set.Entries = append(set.Entries, IpsetEntry{Cidr: &cidr})
		}
		sets = append(sets, set)
	}
	return sets
}

// parseSubnetID parses "<zone>-<addr>-<prefixlen>" subnet ids. Zone
// names may contain dashes, addresses cannot, so the address sits
// between the last two separators.
func parseSubnetID(id string) (Cidr, error) {
	last := strings.LastIndex(id, "-")
	if last < 0 {
		return Cidr{}, fmt.Errorf("invalid subnet id %q", id)
	}
	prev := strings.LastIndex(id[:last], "-")
	if prev < 0 {
		return Cidr{}, fmt.Errorf("invalid subnet id %q", id)
	}
	return ParseCidr(id[prev+1:last] + "/" + id[last+1:])
}
