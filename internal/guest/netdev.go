package guest

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"

	"grimm.is/palisade/internal/policy"
)

// MacAddress is an Ethernet hardware address.
type MacAddress [6]byte

func ParseMacAddress(s string) (MacAddress, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return MacAddress{}, fmt.Errorf("invalid MAC address %q", s)
	}

	var mac MacAddress
	for i, part := range parts {
		b, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return MacAddress{}, fmt.Errorf("invalid MAC address %q", s)
		}
		mac[i] = byte(b)
	}
	return mac, nil
}

func (m MacAddress) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// EUI64LinkLocalAddress derives the link-local IPv6 address per
// RFC 4291 appendix A: fe80:: plus the MAC split around FF:FE, with
// the universal/local bit flipped.
func (m MacAddress) EUI64LinkLocalAddress() netip.Addr {
	var addr [16]byte
	addr[0] = 0xFE
	addr[1] = 0x80
	copy(addr[8:11], m[0:3])
	addr[11] = 0xFF
	addr[12] = 0xFE
	copy(addr[13:16], m[3:6])
	addr[8] ^= 0x02
	return netip.AddrFrom16(addr)
}

// NetworkDeviceModel is the emulated NIC model of a guest device.
type NetworkDeviceModel uint8

const (
	ModelVirtIO NetworkDeviceModel = iota
	ModelVeth
	ModelE1000
	ModelVmxnet3
	ModelRTL8139
)

func ParseNetworkDeviceModel(s string) (NetworkDeviceModel, error) {
	switch s {
	case "virtio":
		return ModelVirtIO, nil
	case "veth":
		return ModelVeth, nil
	case "e1000":
		return ModelE1000, nil
	case "vmxnet3":
		return ModelVmxnet3, nil
	case "rtl8139":
		return ModelRTL8139, nil
	}
	return 0, fmt.Errorf("invalid network device model %q", s)
}

// NetworkDevice is one "net<N>" entry of a guest config.
type NetworkDevice struct {
	Model      NetworkDeviceModel
	MacAddress MacAddress
	Bridge     string
	Firewall   bool
	IP         *policy.Cidr
	IP6        *policy.Cidr
}

// ParseNetworkDevice parses a guest network device property string,
// e.g. "virtio=AA:AA:AA:17:19:81,bridge=vmbr0,firewall=1". The model
// keyword doubles as a MAC shorthand; the firewall flag defaults to
// enabled; "dhcp"/"auto" addresses are ignored.
func ParseNetworkDevice(s string) (NetworkDevice, error) {
	device := NetworkDevice{Firewall: true}
	var haveModel, haveMac bool

	for _, prop := range strings.Split(s, ",") {
		prop = strings.TrimSpace(prop)
		if prop == "" {
			continue
		}
		key, value, ok := strings.Cut(prop, "=")
		if !ok {
			continue
		}

		switch key {
		case "type", "model":
			model, err := ParseNetworkDeviceModel(value)
			if err != nil {
				return NetworkDevice{}, err
			}
			device.Model = model
			haveModel = true
		case "hwaddr", "macaddr":
			mac, err := ParseMacAddress(value)
			if err != nil {
				return NetworkDevice{}, err
			}
			device.MacAddress = mac
			haveMac = true
		case "bridge":
			device.Bridge = value
		case "firewall":
			enabled, err := policy.ParseBool(value)
			if err != nil {
				return NetworkDevice{}, err
			}
			device.Firewall = enabled
		case "ip":
			if value == "dhcp" {
				continue
			}
			addr, err := parseDeviceAddress(value, policy.FamilyV4)
			if err != nil {
				return NetworkDevice{}, err
			}
			device.IP = addr
		case "ip6":
			if value == "dhcp" || value == "auto" {
				continue
			}
			addr, err := parseDeviceAddress(value, policy.FamilyV6)
			if err != nil {
				return NetworkDevice{}, err
			}
			device.IP6 = addr
		default:
			// "virtio=<mac>" style shorthand
			if model, err := ParseNetworkDeviceModel(key); err == nil {
				mac, err := ParseMacAddress(value)
				if err != nil {
					return NetworkDevice{}, err
				}
				device.Model = model
				device.MacAddress = mac
				haveModel, haveMac = true, true
			}
		}
	}

	if !haveModel || !haveMac {
		return NetworkDevice{}, fmt.Errorf("no valid network device in %q", s)
	}
	return device, nil
}

// parseDeviceAddress parses an "ip"/"ip6" device property into the
// exact host address, discarding the subnet part. Address filters must
// pin the guest to its address, never to its whole subnet.
func parseDeviceAddress(value string, family policy.Family) (*policy.Cidr, error) {
	addrPart, _, _ := strings.Cut(value, "/")
	addr, err := netip.ParseAddr(addrPart)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", value, err)
	}

	cidr := policy.CidrFromAddr(addr)
	if cidr.Family() != family {
		return nil, fmt.Errorf("address family mismatch: %q", value)
	}
	return &cidr, nil
}

// NetworkConfig is the set of network devices from a guest's own
// config file, keyed by device index.
type NetworkConfig struct {
	Devices map[int]NetworkDevice
}

// IndexFromNetKey extracts N from a "net<N>" config key.
func IndexFromNetKey(key string) (int, error) {
	digits, ok := strings.CutPrefix(key, "net")
	if ok {
		if index, err := strconv.Atoi(digits); err == nil {
			if index >= 0 && index < policy.MaxNetworkDevices {
				return index, nil
			}
		}
	}
	return 0, fmt.Errorf("no device index in net key %q", key)
}

// ParseNetworkConfig scans a guest config file for "net<N>:" lines.
// Parsing stops at the first section header, which starts the snapshot
// or pending sections.
func ParseNetworkConfig(input io.Reader) (*NetworkConfig, error) {
	cfg := &NetworkConfig{Devices: map[int]NetworkDevice{}}

	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			break
		}
		if !strings.HasPrefix(line, "net") {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}

		index, err := IndexFromNetKey(key)
		if err != nil {
			return nil, err
		}
		device, err := ParseNetworkDevice(value)
		if err != nil {
			return nil, err
		}
		if _, dup := cfg.Devices[index]; dup {
			return nil, fmt.Errorf("duplicate config key net%d", index)
		}
		cfg.Devices[index] = device
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}
