// Package guest models the virtual guests of one cluster node: the
// guest inventory, per-guest network device configuration and the
// per-guest firewall policy.
package guest

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Vmid is the numeric id of a virtual machine or container.
type Vmid uint32

func ParseVmid(s string) (Vmid, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not a valid vmid: %q", s)
	}
	return Vmid(id), nil
}

func (v Vmid) String() string {
	return strconv.FormatUint(uint64(v), 10)
}

// Type distinguishes fully virtualized machines from containers.
type Type uint8

const (
	TypeVM Type = iota
	TypeCT
)

// IfacePrefix is the prefix of the host-side interface names of this
// guest type.
func (t Type) IfacePrefix() string {
	if t == TypeCT {
		return "veth"
	}
	return "tap"
}

func (t Type) configFolder() string {
	if t == TypeCT {
		return "lxc"
	}
	return "qemu-server"
}

func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "qemu":
		*t = TypeVM
	case "lxc":
		*t = TypeCT
	default:
		return fmt.Errorf("invalid guest type %q", s)
	}
	return nil
}

// Entry is one guest in the cluster-wide inventory.
type Entry struct {
	Node string `json:"node"`
	Type Type   `json:"type"`
}

// IsLocal reports whether the guest runs on the given node.
func (e Entry) IsLocal(nodename string) bool {
	return e.Node == nodename
}

const vmlistPath = "/etc/pve/.vmlist"

// Map is the cluster guest inventory keyed by vmid.
type Map map[Vmid]Entry

type vmlistJSON struct {
	IDs map[string]Entry `json:"ids"`
}

// LoadMap reads the cluster guest inventory from its well-known path.
func LoadMap() (Map, error) {
	data, err := os.ReadFile(vmlistPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read guest map from %s: %w", vmlistPath, err)
	}
	return ParseMap(data)
}

func ParseMap(data []byte) (Map, error) {
	var raw vmlistJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse guest map: %w", err)
	}

	guests := make(Map, len(raw.IDs))
	for id, entry := range raw.IDs {
		vmid, err := ParseVmid(id)
		if err != nil {
			return nil, fmt.Errorf("guest map: %w", err)
		}
		guests[vmid] = entry
	}
	return guests, nil
}

// FirewallConfigPath is the per-guest firewall config file.
func FirewallConfigPath(vmid Vmid) string {
	return fmt.Sprintf("/etc/pve/firewall/%s.fw", vmid)
}

// ConfigPath is the guest's own config file on the local node. The
// caller must ensure the guest is local.
func ConfigPath(vmid Vmid, entry Entry) string {
	return fmt.Sprintf("/etc/pve/local/%s/%s.conf", entry.Type.configFolder(), vmid)
}
