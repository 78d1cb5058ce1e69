package firewall

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"grimm.is/palisade/internal/guest"
	"grimm.is/palisade/internal/host"
	"grimm.is/palisade/internal/logging"
	"grimm.is/palisade/internal/nftjson"
	"grimm.is/palisade/internal/policy"
)

// Kernel tunables written while applying host options, plus the flag
// file the connection log daemon watches.
const (
	nfConntrackMaxPath                   = "/proc/sys/net/netfilter/nf_conntrack_max"
	nfConntrackTCPTimeoutEstablishedPath = "/proc/sys/net/netfilter/nf_conntrack_tcp_timeout_established"
	nfConntrackTCPTimeoutSynRecvPath     = "/proc/sys/net/netfilter/nf_conntrack_tcp_timeout_syn_recv"
	logConntrackFlagPath                 = "/var/lib/pve-firewall/log_nf_conntrack"
)

// TunableWriter applies kernel runtime tunables. Writes are
// best-effort for the caller; failed writes are logged, never fatal.
type TunableWriter interface {
	WriteTunable(path, value string) error
}

type procWriter struct{}

func (procWriter) WriteTunable(path, value string) error {
	return host.WriteTunable(path, value)
}

// Firewall compiles one configuration snapshot into the ordered
// command batch that brings the engine in line with it.
type Firewall struct {
	config    *FirewallConfig
	tunables  TunableWriter
	localNets func() ([]policy.Cidr, error)
	log       *logging.Logger
}

func New(config *FirewallConfig) *Firewall {
	return &Firewall{
		config:    config,
		tunables:  procWriter{},
		localNets: host.ManagementNetworks,
		log:       logging.WithComponent("firewall"),
	}
}

// WithTunables replaces the kernel tunable sink.
func (f *Firewall) WithTunables(w TunableWriter) *Firewall {
	f.tunables = w
	return f
}

// WithLocalNetworks replaces the management network detector.
func (f *Firewall) WithLocalNetworks(fn func() ([]policy.Cidr, error)) *Firewall {
	f.localNets = fn
	return f
}

func (f *Firewall) Enabled() bool {
	return f.config.Enabled()
}

// RemoveCommands tears down both tables. The batches are submitted
// separately so that a missing table does not abort removing the other.
func RemoveCommands() []nftjson.Commands {
	return []nftjson.Commands{
		nftjson.NewCommands(nftjson.DeleteTable(clusterTable().Name())),
		nftjson.NewCommands(nftjson.DeleteTable(guestTable().Name())),
	}
}

// reset flushes every chain and map this daemon owns and deletes the
// dynamically created per-guest, per-bridge and per-group chains found
// in the live inventory. Guest and bridge chains jump into group
// chains, so they go first.
func (f *Firewall) reset(commands *nftjson.Commands) {
	commands.Append(
		nftjson.FlushChain(clusterChain(policy.DirIn)),
		nftjson.FlushChain(clusterChain(policy.DirOut)),
		nftjson.AddChain(hostChain(policy.DirIn)),
		nftjson.FlushChain(hostChain(policy.DirIn)),
		nftjson.FlushChain(hostOptionChain(policy.DirIn)),
		nftjson.AddChain(hostChain(policy.DirOut)),
		nftjson.FlushChain(hostChain(policy.DirOut)),
		nftjson.FlushChain(hostOptionChain(policy.DirOut)),
		nftjson.FlushChain(forwardChain(hostTable())),
		nftjson.FlushMap(guestVmap(policy.DirIn)),
		nftjson.FlushMap(guestVmap(policy.DirOut)),
		nftjson.FlushChain(forwardChain(guestTable())),
		nftjson.FlushChain(hostConntrackChain()),
		nftjson.FlushChain(synfloodLimitChain()),
		nftjson.FlushChain(logInvalidTcpChain()),
		nftjson.FlushChain(logSmurfsChain()),
	)

	inventory := append([]nftjson.ListChain(nil), f.config.ChainInventory()...)
	sort.Slice(inventory, func(i, j int) bool { return inventory[i].Name < inventory[j].Name })

	for _, prefix := range []string{"guest-", "bridge-", "group-"} {
		for _, chain := range inventory {
			if !ownsTable(chain.Table) {
				continue
			}
			if strings.HasPrefix(chain.Name, prefix) {
				commands.Push(nftjson.DeleteChain(chain.Chain()))
			}
		}
	}
}

func ownsTable(table string) bool {
	return table == clusterTableName || table == guestTableName
}

// FullHostFirewall computes the complete per-cycle batch. With the
// firewall disabled it computes nothing; tearing existing state down
// is the caller's explicit decision, not a side effect of compiling.
func (f *Firewall) FullHostFirewall() (nftjson.Commands, error) {
	var commands nftjson.Commands

	if !f.config.Enabled() {
		f.log.Info("firewall is disabled - doing nothing")
		return commands, nil
	}

	f.reset(&commands)

	if f.config.Host().Enabled() {
		f.log.Info("creating cluster / host configuration")

		if err := f.createManagementIpset(&commands); err != nil {
			return commands, err
		}
		if err := f.createIpsets(&commands, f.config.Cluster().Config.Ipsets, clusterTable(), nil); err != nil {
			return commands, err
		}
		if err := f.createSdnIpsets(&commands, clusterTable()); err != nil {
			return commands, err
		}
		if err := f.createGroupChains(&commands, clusterTable()); err != nil {
			return commands, err
		}
		for _, dir := range []policy.Direction{policy.DirIn, policy.DirOut} {
			if err := f.createClusterRules(&commands, dir); err != nil {
				return commands, err
			}
		}

		if err := f.setupCtHelpers(&commands); err != nil {
			return commands, err
		}
		f.applyHostOptions(&commands)

		for _, dir := range []policy.Direction{policy.DirIn, policy.DirOut} {
			if err := f.createHostRules(&commands, dir); err != nil {
				return commands, err
			}
		}
	} else {
		commands.Push(nftjson.DeleteTable(clusterTable().Name()))
	}

	enabledGuests := f.enabledGuests()
	enabledBridges := f.enabledBridges()

	if len(enabledGuests) > 0 || len(enabledBridges) > 0 {
		f.log.Info("creating guest configuration")

		if err := f.createIpsets(&commands, f.config.Cluster().Config.Ipsets, guestTable(), nil); err != nil {
			return commands, err
		}
		if err := f.createSdnIpsets(&commands, guestTable()); err != nil {
			return commands, err
		}
		if err := f.createGroupChains(&commands, guestTable()); err != nil {
			return commands, err
		}
	} else {
		commands.Push(nftjson.DeleteTable(guestTable().Name()))
	}

	for _, vmid := range enabledGuests {
		cfg := f.config.Guest(vmid)
		f.log.Debug("generating guest ruleset", "vmid", vmid)

		for _, dir := range []policy.Direction{policy.DirIn, policy.DirOut} {
			chain := guestChain(dir, vmid)
			commands.Append(nftjson.AddChain(chain), nftjson.FlushChain(chain))
		}

		if err := f.createIpsets(&commands, cfg.Ipsets(), guestTable(), cfg); err != nil {
			return commands, err
		}

		f.applyGuestOptions(&commands, vmid, cfg)

		for _, dir := range []policy.Direction{policy.DirIn, policy.DirOut} {
			if err := f.createGuestRules(&commands, vmid, cfg, dir); err != nil {
				return commands, err
			}
		}
	}

	for _, bridge := range enabledBridges {
		if err := f.createBridgeRules(&commands, bridge); err != nil {
			return commands, err
		}
	}

	return commands, nil
}

func (f *Firewall) enabledGuests() []guest.Vmid {
	var ids []guest.Vmid
	for _, vmid := range f.config.GuestIDs() {
		if f.config.Guest(vmid).Enabled() {
			ids = append(ids, vmid)
		}
	}
	return ids
}

func (f *Firewall) enabledBridges() []string {
	var names []string
	for _, name := range f.config.BridgeNames() {
		if cfg := f.config.Bridge(name); cfg != nil && cfg.Enabled() {
			names = append(names, name)
		}
	}
	return names
}

// createManagementIpset synthesizes the "management" set from the
// host's own networks unless the cluster config defines one.
func (f *Firewall) createManagementIpset(commands *nftjson.Commands) error {
	if _, ok := f.config.Cluster().Config.Ipsets["management"]; ok {
		return nil
	}

	networks, err := f.localNets()
	if err != nil {
		return fmt.Errorf("failed to detect management networks: %w", err)
	}

	set := &policy.Ipset{Name: policy.NewIpsetName(policy.ScopeDatacenter, "management")}
	for i := range networks {
		cidr := networks[i]
		set.Entries = append(set.Entries, policy.IpsetEntry{Cidr: &cidr})
	}

	env := &objectEnv{table: clusterTable(), config: f.config}
	cmds, err := ipsetObjects(set, env)
	if err != nil {
		return err
	}
	commands.Append(cmds...)
	return nil
}

// createSdnIpsets materializes the synthesized sdn/-scoped sets in
// one table. Without a loaded SDN config there is nothing to do.
func (f *Firewall) createSdnIpsets(commands *nftjson.Commands, table nftjson.TablePart) error {
	sdn := f.config.Sdn()
	if sdn == nil {
		return nil
	}

	env := &objectEnv{table: table, config: f.config}
	for _, set := range sdn.Ipsets() {
		set := set
		cmds, err := ipsetObjects(&set, env)
		if err != nil {
			return fmt.Errorf("sdn ipset %s: %w", set.Name.Name, err)
		}
		commands.Append(cmds...)
	}
	return nil
}

// createIpsets materializes a set collection in one table. With a
// guest config given it also synthesizes the per-device address
// filters, explicit or implicit, together with their filter rules.
func (f *Firewall) createIpsets(commands *nftjson.Commands, ipsets map[string]*policy.Ipset, table nftjson.TablePart, guestCfg *guest.Config) error {
	var vmid *guest.Vmid
	if guestCfg != nil {
		v := guestCfg.Vmid
		vmid = &v
	}
	env := &objectEnv{table: table, config: f.config, vmid: vmid}

	for _, name := range sortedKeys(ipsets) {
		set := ipsets[name]
		if set.Name.Kind == policy.IpsetDeviceFilter {
			continue
		}
		cmds, err := ipsetObjects(set, env)
		if err != nil {
			return fmt.Errorf("ipset %s: %w", name, err)
		}
		commands.Append(cmds...)
	}

	if guestCfg == nil || guestCfg.Network == nil {
		return nil
	}

	indices := make([]int, 0, len(guestCfg.Network.Devices))
	for index := range guestCfg.Network.Devices {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	for _, index := range indices {
		device := guestCfg.Network.Devices[index]
		filterName := policy.DeviceFilterName(index)

		set, explicit := ipsets[filterName]
		if !explicit {
			if !guestCfg.Ipfilter() {
				continue
			}
			set = defaultDeviceFilter(filterName, device)
		}

		cmds, err := ipsetObjects(set, env)
		if err != nil {
			return fmt.Errorf("ipset %s: %w", filterName, err)
		}
		commands.Append(cmds...)

		if err := f.createIpfilterRules(commands, guestCfg.Vmid, index, set.Name); err != nil {
			return err
		}
	}

	return nil
}

// defaultDeviceFilter is the implicit per-device filter set: the
// device's EUI-64 link-local address plus its configured addresses.
func defaultDeviceFilter(name string, device guest.NetworkDevice) *policy.Ipset {
	set := &policy.Ipset{Name: policy.NewIpsetName(policy.ScopeGuest, name)}

	linkLocal := policy.CidrFromAddr(device.MacAddress.EUI64LinkLocalAddress())
	set.Entries = append(set.Entries, policy.IpsetEntry{Cidr: &linkLocal})

	if device.IP != nil {
		ip := *device.IP
		set.Entries = append(set.Entries, policy.IpsetEntry{Cidr: &ip})
	}
	if device.IP6 != nil {
		ip6 := *device.IP6
		set.Entries = append(set.Entries, policy.IpsetEntry{Cidr: &ip6})
	}

	return set
}

func (f *Firewall) createIpfilterRules(commands *nftjson.Commands, vmid guest.Vmid, index int, setName policy.IpsetName) error {
	for _, dir := range []policy.Direction{policy.DirIn, policy.DirOut} {
		chain := guestChain(dir, vmid)
		env := &ruleEnv{chain: chain, direction: dir, config: f.config, vmid: &vmid}

		rules, err := compileIpfilter(index, setName, env)
		if err != nil {
			return fmt.Errorf("guest %s ipfilter: %w", vmid, err)
		}
		cmds, err := renderRules(rules, chain)
		if err != nil {
			return err
		}
		commands.Append(cmds...)
	}
	return nil
}

func (f *Firewall) createGroupChains(commands *nftjson.Commands, table nftjson.TablePart) error {
	groups := f.config.Cluster().Config.Groups
	for _, name := range sortedKeys(groups) {
		for _, dir := range []policy.Direction{policy.DirIn, policy.DirOut} {
			if err := f.createGroupChain(commands, table, groups[name], name, dir); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *Firewall) createGroupChain(commands *nftjson.Commands, table nftjson.TablePart, group *policy.Group, name string, dir policy.Direction) error {
	chain := groupChain(table, name, dir)
	env := &ruleEnv{chain: chain, direction: dir, config: f.config}

	commands.Append(nftjson.AddChain(chain), nftjson.FlushChain(chain))

	for _, rule := range group.Rules {
		if err := f.appendRule(commands, rule, env); err != nil {
			return fmt.Errorf("group %s: %w", name, err)
		}
	}
	return nil
}

func (f *Firewall) createClusterRules(commands *nftjson.Commands, dir policy.Direction) error {
	chain := clusterChain(dir)
	env := &ruleEnv{chain: chain, direction: dir, config: f.config}

	for _, rule := range f.config.Cluster().Rules() {
		if err := f.appendRule(commands, rule, env); err != nil {
			return fmt.Errorf("cluster rules: %w", err)
		}
	}

	defaultPolicy := f.config.Cluster().DefaultPolicy(dir)
	f.appendLogRule(commands, f.config.Host().LogLevel(dir), chain, defaultPolicy, 0)
	commands.Push(nftjson.AddRule(nftjson.NewRule(chain, verdictStatement(defaultPolicy, chain.TablePart, dir))))

	return nil
}

// createHostRules appends the host rules. No trailing verdict: the
// host chain falls through into the base chain's own policy.
func (f *Firewall) createHostRules(commands *nftjson.Commands, dir policy.Direction) error {
	chain := hostChain(dir)
	env := &ruleEnv{chain: chain, direction: dir, config: f.config}

	for _, rule := range f.config.Host().Rules() {
		if err := f.appendRule(commands, rule, env); err != nil {
			return fmt.Errorf("host rules: %w", err)
		}
	}
	return nil
}

func (f *Firewall) createGuestRules(commands *nftjson.Commands, vmid guest.Vmid, cfg *guest.Config, dir policy.Direction) error {
	chain := guestChain(dir, vmid)
	env := &ruleEnv{chain: chain, direction: dir, config: f.config, vmid: &vmid}

	for _, rule := range cfg.Rules() {
		if err := f.appendRule(commands, rule, env); err != nil {
			return fmt.Errorf("guest %s rules: %w", vmid, err)
		}
	}

	f.addVmapElements(commands, vmid, cfg, dir, chain)

	if dir == policy.DirIn {
		commands.Push(nftjson.AddRule(nftjson.NewRule(chain, nftjson.VerdictJump("after-vm-in"))))
	}

	defaultPolicy := cfg.DefaultPolicy(dir)
	f.appendLogRule(commands, cfg.LogLevel(dir), chain, defaultPolicy, vmid)
	commands.Push(nftjson.AddRule(nftjson.NewRule(chain, verdictStatement(defaultPolicy, chain.TablePart, dir))))

	return nil
}

// addVmapElements registers the guest's firewalled devices in the
// dispatch map, routing their traffic into the guest chain.
func (f *Firewall) addVmapElements(commands *nftjson.Commands, vmid guest.Vmid, cfg *guest.Config, dir policy.Direction, chain nftjson.ChainName) {
	if cfg.Network == nil {
		return
	}

	indices := make([]int, 0, len(cfg.Network.Devices))
	for index := range cfg.Network.Devices {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	var elements []nftjson.Expression
	for _, index := range indices {
		if !cfg.Network.Devices[index].Firewall {
			continue
		}
		elements = append(elements, nftjson.MapElem(
			cfg.IfaceNameByIndex(index),
			nftjson.VerdictGoto(chain.Name),
		))
	}

	if len(elements) > 0 {
		commands.Push(nftjson.AddElement(nftjson.NewSetElements(guestVmap(dir), elements...)))
	}
}

// createBridgeRules compiles one bridge's forward policy: a bridge
// chain per table plus dispatch rules in the base forward chains.
func (f *Firewall) createBridgeRules(commands *nftjson.Commands, bridge string) error {
	cfg := f.config.Bridge(bridge)
	kernelName := f.config.ResolveIface(bridge)

	tables := []nftjson.TablePart{guestTable()}
	if f.config.Host().Enabled() {
		tables = append(tables, hostTable())
	}

	for _, table := range tables {
		chain := bridgeChain(table, bridge)
		env := &ruleEnv{chain: chain, direction: policy.DirForward, config: f.config}

		commands.Append(nftjson.AddChain(chain), nftjson.FlushChain(chain))

		forward := forwardChain(table)
		commands.Append(
			nftjson.AddRule(nftjson.NewRule(forward,
				nftjson.MatchEq(nftjson.NewMeta("iifname"), kernelName),
				nftjson.VerdictJump(chain.Name))),
			nftjson.AddRule(nftjson.NewRule(forward,
				nftjson.MatchEq(nftjson.NewMeta("oifname"), kernelName),
				nftjson.VerdictJump(chain.Name))),
		)

		for _, rule := range cfg.Rules() {
			if err := f.appendRule(commands, rule, env); err != nil {
				return fmt.Errorf("bridge %s rules: %w", bridge, err)
			}
		}

		defaultPolicy := cfg.PolicyForward()
		f.appendLogRule(commands, cfg.LogLevelForward(), chain, defaultPolicy, 0)
		commands.Push(nftjson.AddRule(nftjson.NewRule(chain, verdictStatement(defaultPolicy, table, policy.DirForward))))
	}

	return nil
}

func (f *Firewall) setupCtHelpers(commands *nftjson.Commands) error {
	helpers := f.config.Host().ConntrackHelpers()
	if len(helpers) == 0 {
		return nil
	}

	chain := hostConntrackChain()
	objEnv := &objectEnv{table: chain.TablePart, config: f.config}
	env := &ruleEnv{chain: chain, direction: policy.DirIn, config: f.config}

	for _, name := range helpers {
		macro, ok := policy.GetCtHelper(name)
		if !ok {
			f.log.Warn("ignoring unknown conntrack helper", "helper", name)
			continue
		}

		commands.Append(ctHelperObjects(macro, objEnv)...)

		rules, err := compileCtHelper(macro, env)
		if err != nil {
			return fmt.Errorf("conntrack helper %s: %w", name, err)
		}
		cmds, err := renderRules(rules, chain)
		if err != nil {
			return err
		}
		commands.Append(cmds...)
	}
	return nil
}

// applyHostOptions emits the host hardening rules and writes the
// kernel tunables. Tunable writes are best-effort.
func (f *Firewall) applyHostOptions(commands *nftjson.Commands) {
	hostCfg := f.config.Host()
	chainIn := hostOptionChain(policy.DirIn)
	chainOut := hostOptionChain(policy.DirOut)

	ndpIn, ndpOut := "block-ndp-in", "block-ndp-out"
	if hostCfg.AllowNdp() {
		ndpIn, ndpOut = "allow-ndp-in", "allow-ndp-out"
	}
	commands.Append(
		nftjson.AddRule(nftjson.NewRule(chainIn, nftjson.VerdictJump(ndpIn))),
		nftjson.AddRule(nftjson.NewRule(chainOut, nftjson.VerdictJump(ndpOut))),
	)

	if hostCfg.BlockSynflood() {
		burst := hostCfg.SynfloodBurst()
		inv := true
		rateLimit := nftjson.Limit{
			Rate:  hostCfg.SynfloodRate(),
			Per:   nftjson.RateTimescaleSecond,
			Burst: &burst,
			Inv:   &inv,
		}

		commands.Append(
			nftjson.AddRule(nftjson.NewRule(chainIn, nftjson.VerdictJump("block-synflood"))),
			nftjson.AddRule(nftjson.NewRule(synfloodLimitChain(),
				nftjson.SetUpdate{
					Op:   nftjson.SetOpUpdate,
					Elem: nftjson.NewPayloadField("ip", "saddr"),
					Set:  "@v4-synflood-limit",
					Stmt: []nftjson.Statement{rateLimit},
				},
				nftjson.VerdictDrop())),
			nftjson.AddRule(nftjson.NewRule(synfloodLimitChain(),
				nftjson.SetUpdate{
					Op:   nftjson.SetOpUpdate,
					Elem: nftjson.NewPayloadField("ip6", "saddr"),
					Set:  "@v6-synflood-limit",
					Stmt: []nftjson.Statement{rateLimit},
				},
				nftjson.VerdictDrop())),
		)
	}

	if hostCfg.BlockInvalidTCP() {
		commands.Push(nftjson.AddRule(nftjson.NewRule(chainIn, nftjson.VerdictJump("block-invalid-tcp"))))
		f.appendLogRule(commands, hostCfg.BlockInvalidTCPLogLevel(), logInvalidTcpChain(), policy.VerdictDrop, 0)
	}

	if hostCfg.BlockSmurfs() {
		commands.Push(nftjson.AddRule(nftjson.NewRule(chainIn, nftjson.VerdictJump("block-smurfs"))))
		f.appendLogRule(commands, hostCfg.BlockSmurfsLogLevel(), logSmurfsChain(), policy.VerdictDrop, 0)
	}

	if hostCfg.BlockInvalidConntrack() {
		commands.Push(nftjson.AddRule(nftjson.NewRule(chainIn, nftjson.VerdictJump("block-conntrack-invalid"))))
	}

	if v := hostCfg.Options.NfConntrackMax; v != nil {
		f.writeTunable(nfConntrackMaxPath, strconv.FormatInt(*v, 10))
	}
	if v := hostCfg.Options.NfConntrackTCPTimeoutEstablished; v != nil {
		f.writeTunable(nfConntrackTCPTimeoutEstablishedPath, strconv.FormatInt(*v, 10))
	}
	if v := hostCfg.Options.NfConntrackTCPTimeoutSynRecv; v != nil {
		f.writeTunable(nfConntrackTCPTimeoutSynRecvPath, strconv.FormatInt(*v, 10))
	}

	logConntrack := "0"
	if hostCfg.LogNfConntrack() {
		logConntrack = "1"
	}
	f.writeTunable(logConntrackFlagPath, logConntrack)
}

func (f *Firewall) writeTunable(path, value string) {
	if err := f.tunables.WriteTunable(path, value); err != nil {
		f.log.Warn("cannot write tunable", "path", path, "error", err)
	}
}

// applyGuestOptions emits the per-guest hardening rules: the MAC
// filter, the DHCP/NDP/RA jumps and the outbound ARP allowance.
func (f *Firewall) applyGuestOptions(commands *nftjson.Commands, vmid guest.Vmid, cfg *guest.Config) {
	chainIn := guestChain(policy.DirIn, vmid)
	chainOut := guestChain(policy.DirOut, vmid)

	if cfg.Macfilter() {
		f.appendMacfilterRules(commands, cfg, chainOut)
	}

	dhcpIn, dhcpOut := "block-dhcp-in", "block-dhcp-out"
	if cfg.AllowDhcp() {
		dhcpIn, dhcpOut = "allow-dhcp-in", "allow-dhcp-out"
	}
	commands.Append(
		nftjson.AddRule(nftjson.NewRule(chainIn, nftjson.VerdictJump(dhcpIn))),
		nftjson.AddRule(nftjson.NewRule(chainOut, nftjson.VerdictJump(dhcpOut))),
	)

	ndpIn, ndpOut := "block-ndp-in", "block-ndp-out"
	if cfg.AllowNdp() {
		ndpIn, ndpOut = "allow-ndp-in", "allow-ndp-out"
	}
	commands.Append(
		nftjson.AddRule(nftjson.NewRule(chainIn, nftjson.VerdictJump(ndpIn))),
		nftjson.AddRule(nftjson.NewRule(chainOut, nftjson.VerdictJump(ndpOut))),
	)

	raOut := "block-ra-out"
	if cfg.AllowRa() {
		raOut = "allow-ra-out"
	}
	commands.Push(nftjson.AddRule(nftjson.NewRule(chainOut, nftjson.VerdictJump(raOut))))

	// outgoing ARP is allowed unless the MAC filter dropped it above
	commands.Push(nftjson.AddRule(nftjson.NewRule(chainOut,
		nftjson.MatchEq(nftjson.NewPayloadField("ether", "type"), "arp"),
		nftjson.VerdictAccept())))
}

// appendMacfilterRules drops frames whose source MAC does not belong
// to the device they left through, for ethernet and ARP payloads.
func (f *Firewall) appendMacfilterRules(commands *nftjson.Commands, cfg *guest.Config, chainOut nftjson.ChainName) {
	if cfg.Network == nil {
		return
	}

	indices := make([]int, 0, len(cfg.Network.Devices))
	for index := range cfg.Network.Devices {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	var pairs []nftjson.Expression
	for _, index := range indices {
		device := cfg.Network.Devices[index]
		pairs = append(pairs, nftjson.Concat{
			cfg.IfaceNameByIndex(index),
			device.MacAddress.String(),
		})
	}
	if len(pairs) == 0 {
		return
	}

	commands.Append(
		nftjson.AddRule(nftjson.NewRule(chainOut,
			nftjson.MatchNe(
				nftjson.Concat{nftjson.NewMeta("iifname"), nftjson.NewPayloadField("ether", "saddr")},
				nftjson.SetExpr(pairs)),
			nftjson.VerdictDrop())),
		nftjson.AddRule(nftjson.NewRule(chainOut,
			nftjson.MatchNe(
				nftjson.Concat{nftjson.NewMeta("iifname"), nftjson.NewPayloadField("arp", "saddr ether")},
				nftjson.SetExpr(pairs)),
			nftjson.VerdictDrop())),
	)
}

// appendRule compiles one policy rule and appends the resulting
// engine rules.
func (f *Firewall) appendRule(commands *nftjson.Commands, rule policy.Rule, env *ruleEnv) error {
	compiled, err := compileRule(rule, env)
	if err != nil {
		return err
	}
	cmds, err := renderRules(compiled, env.chain)
	if err != nil {
		return err
	}
	commands.Append(cmds...)
	return nil
}

// appendLogRule emits the trailing policy log rule of a chain, if its
// level asks for logging.
func (f *Firewall) appendLogRule(commands *nftjson.Commands, level policy.LogLevel, chain nftjson.ChainName, verdict policy.Verdict, vmid guest.Vmid) {
	if !level.Nflog() {
		return
	}

	var statements []nftjson.Statement
	if limit := f.config.Cluster().LogRatelimit(); limit != nil {
		statements = append(statements, limitStatement(*limit))
	}
	statements = append(statements, nftjson.NewNflog(logPrefix(vmid, level, chain.Name, verdict), 0))

	commands.Push(nftjson.AddRule(nftjson.NewRule(chain, statements...)))
}

func sortedKeys[T any](m map[string]*T) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
