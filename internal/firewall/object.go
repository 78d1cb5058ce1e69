package firewall

import (
	"fmt"

	"grimm.is/palisade/internal/guest"
	"grimm.is/palisade/internal/nftjson"
	"grimm.is/palisade/internal/policy"
)

// objectEnv is the synthesis context for named engine objects: the
// table the objects live in and the owning guest, if any.
type objectEnv struct {
	table  nftjson.TablePart
	config *FirewallConfig
	vmid   *guest.Vmid
}

func (e *objectEnv) guestID() guest.Vmid {
	if e.vmid != nil {
		return *e.vmid
	}
	return 0
}

// ipsetObjects materializes one policy set as engine sets: per IP
// family of the table a positive set and a nomatch exclusion set, both
// created idempotently and flushed before their elements are loaded.
func ipsetObjects(set *policy.Ipset, env *objectEnv) ([]nftjson.Command, error) {
	var commands []nftjson.Command

	for _, family := range tableFamilies(env.table.Family) {
		var elements, nomatchElements []nftjson.Expression

		for _, entry := range set.Entries {
			expr, ok, err := ipsetEntryExpression(entry, family, env)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if entry.Nomatch {
				nomatchElements = append(nomatchElements, expr)
			} else {
				elements = append(elements, expr)
			}
		}

		setName := nftjson.NewSetName(env.table,
			ipsetWireName(family, set.Name, env.guestID(), false))
		nomatchName := nftjson.NewSetName(env.table,
			ipsetWireName(family, set.Name, env.guestID(), true))

		elementType := elementTypeOf(family)

		commands = append(commands,
			nftjson.AddSet(nftjson.NewSetConfig(setName, elementType).
				WithFlag(nftjson.SetFlagInterval).WithAutoMerge()),
			nftjson.FlushSet(setName),
			nftjson.AddSet(nftjson.NewSetConfig(nomatchName, elementType).
				WithFlag(nftjson.SetFlagInterval).WithAutoMerge()),
			nftjson.FlushSet(nomatchName),
		)

		if len(elements) > 0 {
			commands = append(commands, nftjson.AddElement(nftjson.NewSetElements(setName, elements...)))
		}
		if len(nomatchElements) > 0 {
			commands = append(commands, nftjson.AddElement(nftjson.NewSetElements(nomatchName, nomatchElements...)))
		}
	}

	return commands, nil
}

// ipsetEntryExpression renders one set member for the given family.
// Members of the other family are skipped, not errors: a mixed set
// simply splits across the v4 and v6 engine sets.
func ipsetEntryExpression(entry policy.IpsetEntry, family policy.Family, env *objectEnv) (nftjson.Expression, bool, error) {
	switch {
	case entry.Range != nil:
		if entry.Range.Family() != family {
			return nil, false, nil
		}
		return rangeExpression(*entry.Range), true, nil

	case entry.Cidr != nil:
		if entry.Cidr.Family() != family {
			return nil, false, nil
		}
		return prefixExpression(*entry.Cidr), true, nil

	case entry.Alias != nil:
		alias, ok := env.config.Alias(*entry.Alias, env.vmid)
		if !ok {
			return nil, false, fmt.Errorf("could not find alias %s in environment", entry.Alias)
		}
		if alias.Address.Family() != family {
			return nil, false, nil
		}
		return prefixExpression(alias.Address), true, nil
	}

	return nil, false, nil
}

// ctHelperObjects declares the named conntrack helpers backing a
// helper macro, one per control protocol.
func ctHelperObjects(h policy.CtHelperMacro, env *objectEnv) []nftjson.Command {
	var commands []nftjson.Command

	var l3proto nftjson.IpFamily
	if h.Family != nil {
		l3proto = ipFamilyOf(*h.Family)
	}

	if h.TCP != nil {
		commands = append(commands, nftjson.AddCtHelper(nftjson.CtHelperConfig{
			Family:   env.table.Family,
			Table:    env.table.Table,
			Name:     h.TCPHelperName(),
			Type:     h.Name,
			Protocol: nftjson.CtHelperTCP,
			L3Proto:  l3proto,
		}))
	}

	if h.UDP != nil {
		commands = append(commands, nftjson.AddCtHelper(nftjson.CtHelperConfig{
			Family:   env.table.Family,
			Table:    env.table.Table,
			Name:     h.UDPHelperName(),
			Type:     h.Name,
			Protocol: nftjson.CtHelperUDP,
			L3Proto:  l3proto,
		}))
	}

	return commands
}
