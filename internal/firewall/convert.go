package firewall

import (
	"grimm.is/palisade/internal/nftjson"
	"grimm.is/palisade/internal/policy"
)

// verdictStatement maps a policy verdict to its engine statement for
// the given table and direction. REJECT on the bridge layer's inbound
// path degrades to a silent drop; rejecting there would answer with
// packets the bridge cannot originate. Elsewhere REJECT dispatches to
// the shared do-reject chain, which picks the right reject variant per
// protocol.
func verdictStatement(v policy.Verdict, table nftjson.TablePart, dir policy.Direction) nftjson.Statement {
	if v == policy.VerdictReject {
		if table.Family == nftjson.TableFamilyBridge && dir == policy.DirIn {
			return nftjson.VerdictDrop()
		}
		return nftjson.VerdictJump("do-reject")
	}
	if v == policy.VerdictAccept {
		return nftjson.VerdictAccept()
	}
	return nftjson.VerdictDrop()
}

func rateTimescale(u policy.RateUnit) nftjson.RateTimescale {
	switch u {
	case policy.RateMinute:
		return nftjson.RateTimescaleMinute
	case policy.RateHour:
		return nftjson.RateTimescaleHour
	case policy.RateDay:
		return nftjson.RateTimescaleDay
	}
	return nftjson.RateTimescaleSecond
}

func limitStatement(l policy.LogRateLimit) nftjson.Limit {
	burst := l.Burst
	return nftjson.Limit{
		Rate:  l.Rate,
		Per:   rateTimescale(l.Unit),
		Burst: &burst,
	}
}

// cidrExpression renders a CIDR as a bare address for host prefixes
// and as a prefix object otherwise.
func cidrExpression(c policy.Cidr) nftjson.Expression {
	if c.IsHost() {
		return c.Addr().String()
	}
	return nftjson.Prefix{Addr: c.Addr().String(), Len: c.Bits()}
}

// prefixExpression always renders the prefix form. Set elements use
// this so intervals stay uniform inside one set.
func prefixExpression(c policy.Cidr) nftjson.Expression {
	return nftjson.Prefix{Addr: c.Addr().String(), Len: c.Bits()}
}

func rangeExpression(r policy.IPRange) nftjson.Expression {
	return nftjson.Range{From: r.Start.String(), To: r.End.String()}
}

func ipEntryExpression(e policy.IPEntry) nftjson.Expression {
	if e.Range != nil {
		return rangeExpression(*e.Range)
	}
	return cidrExpression(*e.Cidr)
}

// ipListExpression collapses a one-entry list to its bare element.
func ipListExpression(l policy.IPList) nftjson.Expression {
	if len(l.Entries) == 1 {
		return ipEntryExpression(l.Entries[0])
	}
	set := make([]nftjson.Expression, len(l.Entries))
	for i, e := range l.Entries {
		set[i] = ipEntryExpression(e)
	}
	return nftjson.SetExpr(set)
}

func portEntryExpression(e policy.PortEntry) nftjson.Expression {
	if e.IsRange() {
		return nftjson.Range{From: int(e.Start), To: int(e.End)}
	}
	return int(e.Start)
}

func portListExpression(l policy.PortList) nftjson.Expression {
	if len(l.Entries) == 1 {
		return portEntryExpression(l.Entries[0])
	}
	set := make([]nftjson.Expression, len(l.Entries))
	for i, e := range l.Entries {
		set[i] = portEntryExpression(e)
	}
	return nftjson.SetExpr(set)
}

func icmpValueExpression(v policy.IcmpValue) nftjson.Expression {
	if v.Named {
		return v.Name
	}
	return int(v.Number)
}

func ipFamilyOf(f policy.Family) nftjson.IpFamily {
	if f == policy.FamilyV6 {
		return nftjson.IpFamilyV6
	}
	return nftjson.IpFamilyV4
}

// payloadProtocol is the payload header name of the family's IP layer.
func payloadProtocol(f policy.Family) string {
	if f == policy.FamilyV6 {
		return "ip6"
	}
	return "ip"
}

func elementTypeOf(f policy.Family) nftjson.ElementType {
	if f == policy.FamilyV6 {
		return nftjson.ElementTypeIpv6Addr
	}
	return nftjson.ElementTypeIpv4Addr
}
