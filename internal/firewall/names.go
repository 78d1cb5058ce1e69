// Package firewall turns the parsed policy snapshot into ordered nftables
// command batches: it aggregates the per-cycle configuration, compiles
// rules into engine statements, synthesizes set and helper objects, and
// orchestrates the full per-cycle batch against the static base layout.
package firewall

import (
	"fmt"

	"grimm.is/palisade/internal/guest"
	"grimm.is/palisade/internal/nftjson"
	"grimm.is/palisade/internal/policy"
)

// The cluster/host ruleset lives in an inet table, guest filtering in a
// bridge table. The names are fixed and owned exclusively by this daemon.
const (
	clusterTableName = "proxmox-firewall"
	guestTableName   = "proxmox-firewall-guests"
)

func clusterTable() nftjson.TablePart {
	return nftjson.NewTablePart(nftjson.TableFamilyInet, clusterTableName)
}

func hostTable() nftjson.TablePart {
	return nftjson.NewTablePart(nftjson.TableFamilyInet, clusterTableName)
}

func guestTable() nftjson.TablePart {
	return nftjson.NewTablePart(nftjson.TableFamilyBridge, guestTableName)
}

func guestVmap(dir policy.Direction) nftjson.SetName {
	return nftjson.NewSetName(guestTable(), "vm-map-"+dir.String())
}

func clusterChain(dir policy.Direction) nftjson.ChainName {
	return nftjson.NewChainName(clusterTable(), "cluster-"+dir.String())
}

func hostChain(dir policy.Direction) nftjson.ChainName {
	return nftjson.NewChainName(hostTable(), "host-"+dir.String())
}

func hostOptionChain(dir policy.Direction) nftjson.ChainName {
	return nftjson.NewChainName(hostTable(), "option-"+dir.String())
}

func guestChain(dir policy.Direction, vmid guest.Vmid) nftjson.ChainName {
	return nftjson.NewChainName(guestTable(), fmt.Sprintf("guest-%s-%s", vmid, dir))
}

func groupChain(table nftjson.TablePart, name string, dir policy.Direction) nftjson.ChainName {
	return nftjson.NewChainName(table, fmt.Sprintf("group-%s-%s", name, dir))
}

func bridgeChain(table nftjson.TablePart, bridge string) nftjson.ChainName {
	return nftjson.NewChainName(table, "bridge-"+bridge)
}

func forwardChain(table nftjson.TablePart) nftjson.ChainName {
	return nftjson.NewChainName(table, "forward")
}

func hostConntrackChain() nftjson.ChainName {
	return nftjson.NewChainName(hostTable(), "ct-in")
}

func synfloodLimitChain() nftjson.ChainName {
	return nftjson.NewChainName(hostTable(), "ratelimit-synflood")
}

func logInvalidTcpChain() nftjson.ChainName {
	return nftjson.NewChainName(hostTable(), "log-invalid-tcp")
}

func logSmurfsChain() nftjson.ChainName {
	return nftjson.NewChainName(hostTable(), "log-smurfs")
}

// tableFamilies lists the IP families a table family can carry.
func tableFamilies(family nftjson.TableFamily) []policy.Family {
	switch family {
	case nftjson.TableFamilyIP:
		return []policy.Family{policy.FamilyV4}
	case nftjson.TableFamilyIP6:
		return []policy.Family{policy.FamilyV6}
	default:
		return []policy.Family{policy.FamilyV4, policy.FamilyV6}
	}
}

func familyPrefix(family policy.Family) string {
	if family == policy.FamilyV6 {
		return "v6"
	}
	return "v4"
}

// ipsetWireName formats the engine-level name of one ipset half, e.g.
// "v4-dc/management" or "v6-guest-100-ipfilter-net0-nomatch". Every
// policy-level ipset is materialized as a positive member set and a
// parallel "-nomatch" exclusion set per family.
func ipsetWireName(family policy.Family, name policy.IpsetName, vmid guest.Vmid, nomatch bool) string {
	var base string

	switch name.Scope {
	case policy.ScopeGuest:
		base = fmt.Sprintf("%s-guest-%s-%s", familyPrefix(family), vmid, name.Name)
	case policy.ScopeSDN:
		base = fmt.Sprintf("%s-sdn/%s", familyPrefix(family), name.Name)
	default:
		base = fmt.Sprintf("%s-dc/%s", familyPrefix(family), name.Name)
	}

	if nomatch {
		base += "-nomatch"
	}

	return base
}

// logPrefix is the fixed nflog prefix format the log daemon expects:
// ":<vmid>:<severity>:<chain>: <VERDICT>: ". Vmid 0 stands for host and
// cluster scope.
func logPrefix(vmid guest.Vmid, level policy.LogLevel, chainName string, verdict policy.Verdict) string {
	return fmt.Sprintf(":%d:%d:%s: %s: ", uint32(vmid), level.Number(), chainName, verdict)
}
