package policy

import (
	_ "embed"
	"encoding/json"
	"sync"
)

//go:embed resources/macros.json
var macrosJSON []byte

// Macro is a named rule template that fans one policy rule out into
// one compiled rule per protocol entry.
type Macro struct {
	Description string
	Code        []Protocol
}

type macroData struct {
	Desc string      `json:"desc"`
	Code []macroCode `json:"code"`
}

type macroCode struct {
	Proto    string `json:"p"`
	Dport    string `json:"dport"`
	Sport    string `json:"sport"`
	IcmpType string `json:"icmp-type"`
}

var loadMacros = sync.OnceValue(func() map[string]Macro {
	var data map[string]macroData
	if err := json.Unmarshal(macrosJSON, &data); err != nil {
		// the bundled table is part of the build, a parse failure
		// leaves every macro reference unresolvable
		return map[string]Macro{}
	}

	macros := make(map[string]Macro, len(data))
outer:
	for name, entry := range data {
		m := Macro{Description: entry.Desc}
		for _, code := range entry.Code {
			proto, err := protocolFromOptions(ruleOptions{
				proto:    code.Proto,
				dport:    code.Dport,
				sport:    code.Sport,
				icmpType: code.IcmpType,
			})
			if err != nil || proto == nil {
				continue outer
			}
			m.Code = append(m.Code, *proto)
		}
		macros[name] = m
	}
	return macros
})

// GetMacro looks up a macro template by its exact name.
func GetMacro(name string) (Macro, bool) {
	m, ok := loadMacros()[name]
	return m, ok
}
