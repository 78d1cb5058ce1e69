package firewall

import (
	"encoding/json"
	"errors"
	"fmt"

	"grimm.is/palisade/internal/guest"
	"grimm.is/palisade/internal/logging"
	"grimm.is/palisade/internal/nftjson"
	"grimm.is/palisade/internal/policy"
)

// nftRule is one engine rule under construction. A policy rule fans
// out into several of these: a log candidate plus a verdict candidate,
// then per-protocol copies for macros and per-family copies for set
// matches. The family pin records which IP family the accumulated
// matches have committed the rule to; family-specific match handlers
// skip rules pinned to the other family.
type nftRule struct {
	family     *policy.Family
	statements []nftjson.Statement
	terminal   []nftjson.Statement
}

func newNftRule(terminal ...nftjson.Statement) *nftRule {
	return &nftRule{terminal: terminal}
}

func (r *nftRule) clone() *nftRule {
	c := &nftRule{
		statements: append([]nftjson.Statement(nil), r.statements...),
		terminal:   append([]nftjson.Statement(nil), r.terminal...),
	}
	if r.family != nil {
		family := *r.family
		c.family = &family
	}
	return c
}

func (r *nftRule) push(statements ...nftjson.Statement) {
	r.statements = append(r.statements, statements...)
}

func (r *nftRule) setFamily(family policy.Family) {
	r.family = &family
}

// admitsFamily reports whether the rule is still compatible with the
// given family: either unpinned or already pinned to it.
func (r *nftRule) admitsFamily(family policy.Family) bool {
	return r.family == nil || *r.family == family
}

func (r *nftRule) render(chain nftjson.ChainName) nftjson.Rule {
	statements := make([]nftjson.Statement, 0, len(r.statements)+len(r.terminal))
	statements = append(statements, r.statements...)
	statements = append(statements, r.terminal...)
	return nftjson.NewRule(chain, statements...)
}

// renderRules converts finished candidates into add-rule commands.
// Candidates that differ only in their family pin render to the same
// statements; duplicates are emitted once.
func renderRules(rules []*nftRule, chain nftjson.ChainName) ([]nftjson.Command, error) {
	commands := make([]nftjson.Command, 0, len(rules))
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		rendered := rule.render(chain)
		key, err := json.Marshal(rendered)
		if err != nil {
			return nil, fmt.Errorf("failed to render rule: %w", err)
		}
		if _, dup := seen[string(key)]; dup {
			continue
		}
		seen[string(key)] = struct{}{}
		commands = append(commands, nftjson.AddRule(rendered))
	}
	return commands, nil
}

// ruleEnv is the compilation context of one chain: which chain the
// rules land in, the traffic direction, and the guest the chain
// belongs to, if any.
type ruleEnv struct {
	chain     nftjson.ChainName
	direction policy.Direction
	config    *FirewallConfig
	vmid      *guest.Vmid
}

func (e *ruleEnv) guestID() guest.Vmid {
	if e.vmid != nil {
		return *e.vmid
	}
	return 0
}

func (e *ruleEnv) containsFamily(family policy.Family) bool {
	for _, f := range tableFamilies(e.chain.Family) {
		if f == family {
			return true
		}
	}
	return false
}

// ifaceName resolves a rule's interface reference. In guest context
// the reference is a net<N> device key; at host level it is a logical
// name translated through the interface mapping. Unresolvable names
// pass through verbatim.
func (e *ruleEnv) ifaceName(ref string) string {
	if e.vmid != nil {
		if g := e.config.Guest(*e.vmid); g != nil {
			if name, err := g.IfaceNameByKey(ref); err == nil {
				return name
			}
		}
		logging.WithComponent("firewall").Warn("unable to resolve guest interface", "iface", ref, "vmid", *e.vmid)
		return ref
	}
	return e.config.ResolveIface(ref)
}

func (e *ruleEnv) logLimit() *policy.LogRateLimit {
	return e.config.Cluster().LogRatelimit()
}

// fanFamilies finalizes a candidate set against the table: candidates
// that never committed to a family are emitted once per family the
// table supports, and candidates pinned to an unsupported family are
// dropped. Fanned copies carrying no family-specific match collapse
// again when rendered.
func fanFamilies(rules []*nftRule, env *ruleEnv) []*nftRule {
	out := make([]*nftRule, 0, len(rules))
	for _, rule := range rules {
		if rule.family != nil {
			if env.containsFamily(*rule.family) {
				out = append(out, rule)
			}
			continue
		}
		for _, family := range tableFamilies(env.chain.Family) {
			c := rule.clone()
			c.setFamily(family)
			out = append(out, c)
		}
	}
	return out
}

// compileRule turns one policy rule into engine rule candidates.
// Disabled rules compile to nothing.
func compileRule(rule policy.Rule, env *ruleEnv) ([]*nftRule, error) {
	if rule.Disabled {
		return nil, nil
	}
	var (
		rules []*nftRule
		err   error
	)
	if rule.Group != nil {
		rules, err = compileGroup(rule.Group, env)
	} else {
		rules, err = compileRuleMatch(rule.Match, env)
	}
	if err != nil {
		return nil, err
	}
	return fanFamilies(rules, env), nil
}

// compileGroup emits a jump into the per-direction group chain.
func compileGroup(group *policy.RuleGroup, env *ruleEnv) ([]*nftRule, error) {
	if env.direction == policy.DirForward && group.Iface != "" {
		return nil, nil
	}

	chain := fmt.Sprintf("group-%s-%s", group.Name, env.direction)
	rules := []*nftRule{newNftRule(nftjson.VerdictJump(chain))}

	if group.Iface != "" {
		if err := applyIface(rules, env, group.Iface); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

func compileRuleMatch(m *policy.RuleMatch, env *ruleEnv) ([]*nftRule, error) {
	if m == nil || env.direction != m.Direction {
		return nil, nil
	}

	var rules []*nftRule

	// A logged rule becomes two engine rules: first a non-terminal
	// nflog rule carrying the same matches, then the verdict rule.
	if m.Log != nil && m.Log.Nflog() {
		var terminal []nftjson.Statement
		if limit := env.logLimit(); limit != nil {
			terminal = append(terminal, limitStatement(*limit))
		}
		prefix := logPrefix(env.guestID(), *m.Log, env.chain.Name, m.Verdict)
		terminal = append(terminal, nftjson.NewNflog(prefix, 0))
		rules = append(rules, newNftRule(terminal...))
	}

	rules = append(rules, newNftRule(verdictStatement(m.Verdict, env.chain.TablePart, env.direction)))

	if m.Iface != "" {
		if err := applyIface(rules, env, m.Iface); err != nil {
			return nil, err
		}
	}

	if m.Proto != nil {
		if err := applyProtocol(m.Proto, rules, env); err != nil {
			return nil, err
		}
	}

	if m.Macro != "" {
		var err error
		rules, err = applyMacro(m.Macro, rules, env)
		if err != nil {
			return nil, err
		}
	}

	if m.IP != nil {
		var err error
		rules, err = applyIPMatch(m.IP, rules, env)
		if err != nil {
			return nil, err
		}
	}

	return rules, nil
}

// applyIface adds the interface match. For guest chains the packet
// direction is seen from the guest, so inbound traffic leaves through
// the guest's tap device and matches on oifname.
func applyIface(rules []*nftRule, env *ruleEnv, ref string) error {
	var key string
	switch {
	case env.direction == policy.DirForward:
		return errors.New("interface matches cannot apply to forwarded traffic")
	case env.vmid != nil && env.direction == policy.DirIn:
		key = "oifname"
	case env.vmid != nil:
		key = "iifname"
	case env.direction == policy.DirIn:
		key = "iifname"
	default:
		key = "oifname"
	}

	name := env.ifaceName(ref)
	for _, rule := range rules {
		rule.push(nftjson.MatchEq(nftjson.NewMeta(key), name))
	}
	return nil
}

func applyL4Proto(rules []*nftRule, name string) {
	for _, rule := range rules {
		rule.push(nftjson.MatchEq(nftjson.NewMeta("l4proto"), name))
	}
}

func applyPorts(rules []*nftRule, proto *policy.Protocol) {
	for _, rule := range rules {
		if proto.Sport != nil {
			rule.push(nftjson.MatchEq(nftjson.NewPayloadField("th", "sport"), portListExpression(*proto.Sport)))
		}
		if proto.Dport != nil {
			rule.push(nftjson.MatchEq(nftjson.NewPayloadField("th", "dport"), portListExpression(*proto.Dport)))
		}
	}
}

// applyIcmp matches on ICMP code or type when given, otherwise on the
// bare protocol, and pins the rules to the protocol's family. Rules
// already pinned to the other family are left alone.
func applyIcmp(rules []*nftRule, proto *policy.Protocol, family policy.Family, protoName string) {
	for _, rule := range rules {
		if !rule.admitsFamily(family) {
			continue
		}
		switch {
		case proto.IcmpCode != nil:
			rule.push(nftjson.MatchEq(nftjson.NewPayloadField(protoName, "code"), icmpValueExpression(*proto.IcmpCode)))
		case proto.IcmpType != nil:
			rule.push(nftjson.MatchEq(nftjson.NewPayloadField(protoName, "type"), icmpValueExpression(*proto.IcmpType)))
		default:
			rule.push(nftjson.MatchEq(nftjson.NewMeta("l4proto"), protoName))
		}
		rule.setFamily(family)
	}
}

func applyProtocol(proto *policy.Protocol, rules []*nftRule, env *ruleEnv) error {
	switch proto.Kind {
	case policy.ProtoTCP, policy.ProtoUDP, policy.ProtoSCTP, policy.ProtoDCCP, policy.ProtoUDPLite:
		applyL4Proto(rules, proto.WireName())
		applyPorts(rules, proto)
	case policy.ProtoICMP:
		applyIcmp(rules, proto, policy.FamilyV4, "icmp")
	case policy.ProtoICMPv6:
		applyIcmp(rules, proto, policy.FamilyV6, "icmpv6")
	case policy.ProtoNamed:
		applyL4Proto(rules, proto.Name)
	case policy.ProtoNumeric:
		for _, rule := range rules {
			rule.push(nftjson.MatchEq(nftjson.NewMeta("l4proto"), int(proto.Number)))
		}
	}
	return nil
}

// applyMacro fans the current candidates out over every protocol
// entry of the macro, in order.
func applyMacro(name string, rules []*nftRule, env *ruleEnv) ([]*nftRule, error) {
	m, ok := policy.GetMacro(name)
	if !ok {
		return nil, fmt.Errorf("cannot find macro %s", name)
	}

	var out []*nftRule
	for i := range m.Code {
		copies := make([]*nftRule, len(rules))
		for j, rule := range rules {
			copies[j] = rule.clone()
		}
		if err := applyProtocol(&m.Code[i], copies, env); err != nil {
			return nil, err
		}
		out = append(out, copies...)
	}
	return out, nil
}

func applyIPMatch(ip *policy.IPMatch, rules []*nftRule, env *ruleEnv) ([]*nftRule, error) {
	var err error
	if ip.Src != nil {
		rules, err = applyAddrMatch(ip.Src, rules, "saddr", env)
		if err != nil {
			return nil, err
		}
	}
	if ip.Dst != nil {
		rules, err = applyAddrMatch(ip.Dst, rules, "daddr", env)
		if err != nil {
			return nil, err
		}
	}
	return rules, nil
}

func applyAddrMatch(m *policy.IPAddrMatch, rules []*nftRule, field string, env *ruleEnv) ([]*nftRule, error) {
	switch {
	case m.List != nil:
		list := *m.List
		if !env.containsFamily(list.Family()) {
			return rules, nil
		}
		payload := nftjson.NewPayloadField(payloadProtocol(list.Family()), field)
		for _, rule := range rules {
			if rule.family == nil {
				rule.push(nftjson.MatchEq(payload, ipListExpression(list)))
				rule.setFamily(list.Family())
			} else if *rule.family == list.Family() {
				rule.push(nftjson.MatchEq(payload, ipListExpression(list)))
			}
		}
		return rules, nil

	case m.Alias != nil:
		alias, ok := env.config.Alias(*m.Alias, env.vmid)
		if !ok {
			return nil, fmt.Errorf("could not find alias %s", m.Alias)
		}
		family := alias.Address.Family()
		if !env.containsFamily(family) {
			return rules, nil
		}
		payload := nftjson.NewPayloadField(payloadProtocol(family), field)
		for _, rule := range rules {
			if rule.family == nil {
				rule.push(nftjson.MatchEq(payload, prefixExpression(alias.Address)))
				rule.setFamily(family)
			} else if *rule.family == family {
				rule.push(nftjson.MatchEq(payload, prefixExpression(alias.Address)))
			}
		}
		return rules, nil

	case m.Set != nil:
		return applySet(rules, *m.Set, field, env, true)
	}

	return rules, nil
}

// applySet fans each candidate out per IP family and matches the
// positive set and the nomatch exclusion set. With contains=false the
// operators flip, matching addresses outside the set instead.
func applySet(rules []*nftRule, name policy.IpsetName, field string, env *ruleEnv, contains bool) ([]*nftRule, error) {
	resolved, err := env.config.ResolveIpsetScope(name, env.vmid)
	if err != nil {
		return nil, err
	}

	posOp, negOp := nftjson.OpEq, nftjson.OpNe
	if !contains {
		posOp, negOp = negOp, posOp
	}

	var out []*nftRule
	for _, rule := range rules {
		for _, family := range []policy.Family{policy.FamilyV4, policy.FamilyV6} {
			if !rule.admitsFamily(family) || !env.containsFamily(family) {
				continue
			}
			payload := nftjson.NewPayloadField(payloadProtocol(family), field)

			r := rule.clone()
			r.setFamily(family)
			r.push(
				nftjson.NewMatch(posOp, payload,
					nftjson.NamedSet(ipsetWireName(family, resolved, env.guestID(), false))),
				nftjson.NewMatch(negOp, payload,
					nftjson.NamedSet(ipsetWireName(family, resolved, env.guestID(), true))),
			)
			out = append(out, r)
		}
	}
	return out, nil
}

// compileIpfilter emits the implicit drop rules enforcing a guest
// device's address filter set. Inbound it also covers ARP replies
// claiming a filtered address.
func compileIpfilter(index int, setName policy.IpsetName, env *ruleEnv) ([]*nftRule, error) {
	if env.vmid == nil {
		return nil, errors.New("address filters only apply to guests")
	}
	guestCfg := env.config.Guest(*env.vmid)
	if guestCfg == nil {
		return nil, fmt.Errorf("no config for guest %s", *env.vmid)
	}
	if !guestCfg.Ipfilter() {
		return nil, nil
	}

	iface := guestCfg.IfaceNameByIndex(index)

	switch env.direction {
	case policy.DirIn:
		if !env.containsFamily(policy.FamilyV4) {
			return nil, nil
		}
		rule := newNftRule(nftjson.VerdictDrop())
		rule.setFamily(policy.FamilyV4)
		rule.push(
			nftjson.MatchEq(nftjson.NewMeta("oifname"), iface),
			nftjson.MatchNe(nftjson.NewPayloadField("arp", "daddr ip"),
				nftjson.NamedSet(ipsetWireName(policy.FamilyV4, setName, *env.vmid, false))),
		)
		return []*nftRule{rule}, nil

	case policy.DirOut:
		base := newNftRule(nftjson.VerdictDrop())
		base.push(nftjson.MatchEq(nftjson.NewMeta("iifname"), iface))

		rules, err := applySet([]*nftRule{base.clone()}, setName, "saddr", env, false)
		if err != nil {
			return nil, err
		}

		if env.containsFamily(policy.FamilyV4) {
			arpRule := base.clone()
			arpRule.setFamily(policy.FamilyV4)
			arpRule.push(nftjson.MatchNe(nftjson.NewPayloadField("arp", "saddr ip"),
				nftjson.NamedSet(ipsetWireName(policy.FamilyV4, setName, *env.vmid, false))))
			rules = append(rules, arpRule)
		}
		return rules, nil
	}

	return nil, errors.New("address filters cannot apply to forwarded traffic")
}

// compileCtHelper emits the rules activating a conntrack helper: per
// protocol a helper assignment rule plus an accept for the new and
// established states on the helper's control port, and finally an
// accept for flows the helper has claimed.
func compileCtHelper(h policy.CtHelperMacro, env *ruleEnv) ([]*nftRule, error) {
	if h.Family != nil && !env.containsFamily(*h.Family) {
		return nil, nil
	}
	if h.TCP == nil && h.UDP == nil {
		return nil, nil
	}

	var ipFam nftjson.IpFamily
	if h.Family != nil {
		ipFam = ipFamilyOf(*h.Family)
	}

	stateMatch := nftjson.MatchEq(nftjson.NewCt("state"),
		[]nftjson.Expression{"new", "established"})

	var out []*nftRule

	emit := func(proto *policy.Protocol, helperName string) error {
		base := newNftRule(stateMatch, nftjson.VerdictAccept())
		helper := newNftRule(nftjson.CtHelperStmt(helperName))

		ctRules := []*nftRule{base, helper}
		if err := applyProtocol(proto, ctRules, env); err != nil {
			return err
		}
		out = append(out, ctRules...)
		return nil
	}

	if h.TCP != nil {
		if err := emit(h.TCP, h.TCPHelperName()); err != nil {
			return nil, err
		}
	}
	if h.UDP != nil {
		if err := emit(h.UDP, h.UDPHelperName()); err != nil {
			return nil, err
		}
	}

	claimed := newNftRule(nftjson.VerdictAccept())
	claimed.push(nftjson.MatchEq(nftjson.Ct{Key: "helper", Family: ipFam}, h.Name))
	out = append(out, claimed)

	return fanFamilies(out, env), nil
}
