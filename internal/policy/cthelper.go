package policy

import (
	_ "embed"
	"encoding/json"
	"sync"
)

//go:embed resources/ct_helper.json
var ctHelpersJSON []byte

// CtHelperMacro describes one conntrack helper: its name, the address
// families it applies to (nil Family means both) and the TCP/UDP
// control ports it listens on. At least one protocol is set.
type CtHelperMacro struct {
	Name   string
	Family *Family
	TCP    *Protocol
	UDP    *Protocol
}

type ctHelperJSON struct {
	V4   *bool  `json:"v4"`
	V6   *bool  `json:"v6"`
	Name string `json:"name"`
	TCP  *uint16 `json:"tcp"`
	UDP  *uint16 `json:"udp"`
}

func (h *CtHelperMacro) helperName(proto string) string {
	return "helper-" + h.Name + "-" + proto
}

func (h *CtHelperMacro) TCPHelperName() string { return h.helperName("tcp") }
func (h *CtHelperMacro) UDPHelperName() string { return h.helperName("udp") }

var loadCtHelpers = sync.OnceValue(func() map[string]CtHelperMacro {
	var data []ctHelperJSON
	if err := json.Unmarshal(ctHelpersJSON, &data); err != nil {
		return map[string]CtHelperMacro{}
	}

	helpers := make(map[string]CtHelperMacro, len(data))
	for _, entry := range data {
		if entry.TCP == nil && entry.UDP == nil {
			continue
		}

		helper := CtHelperMacro{Name: entry.Name}
		v4 := entry.V4 != nil && *entry.V4
		v6 := entry.V6 != nil && *entry.V6
		switch {
		case v4 && v6:
			// applies to both families
		case v4:
			family := FamilyV4
			helper.Family = &family
		case v6:
			family := FamilyV6
			helper.Family = &family
		default:
			continue
		}

		if entry.TCP != nil {
			dport := PortList{Entries: []PortEntry{{Start: *entry.TCP, End: *entry.TCP}}}
			helper.TCP = &Protocol{Kind: ProtoTCP, Dport: &dport}
		}
		if entry.UDP != nil {
			dport := PortList{Entries: []PortEntry{{Start: *entry.UDP, End: *entry.UDP}}}
			helper.UDP = &Protocol{Kind: ProtoUDP, Dport: &dport}
		}
		helpers[entry.Name] = helper
	}
	return helpers
})

// GetCtHelper looks up a conntrack helper macro by name.
func GetCtHelper(name string) (CtHelperMacro, bool) {
	h, ok := loadCtHelpers()[name]
	return h, ok
}
