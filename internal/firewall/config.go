package firewall

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"grimm.is/palisade/internal/guest"
	"grimm.is/palisade/internal/host"
	"grimm.is/palisade/internal/logging"
	"grimm.is/palisade/internal/nftjson"
	"grimm.is/palisade/internal/policy"
)

// ConfigLoader supplies the raw policy inputs for one sync cycle. A
// (nil, nil) reader means the file does not exist, which is never an
// error: a missing config simply contributes nothing.
type ConfigLoader interface {
	Hostname() (string, error)
	Cluster() (io.ReadCloser, error)
	Host() (io.ReadCloser, error)
	GuestList() (guest.Map, error)
	GuestConfig(vmid guest.Vmid, entry guest.Entry) (io.ReadCloser, error)
	GuestFirewallConfig(vmid guest.Vmid) (io.ReadCloser, error)
	BridgeList() ([]string, error)
	BridgeFirewallConfig(bridge string) (io.ReadCloser, error)
	SdnRunningConfig() (io.ReadCloser, error)
	Ipam() (io.ReadCloser, error)
	InterfaceMapping() (host.InterfaceMapping, error)
}

// ChainLoader queries the live chain inventory of the engine, used to
// find stale per-guest and per-group chains during the reset phase.
type ChainLoader interface {
	Chains(ctx context.Context) ([]nftjson.ListChain, error)
}

// FsLoader reads the policy files from the cluster filesystem. Root is
// the config hierarchy root, normally /etc/pve.
type FsLoader struct {
	Root string
}

const DefaultConfigRoot = "/etc/pve"

func NewFsLoader(root string) *FsLoader {
	if root == "" {
		root = DefaultConfigRoot
	}
	return &FsLoader{Root: root}
}

// open maps a missing file to a nil reader.
func (l *FsLoader) open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

func (l *FsLoader) Hostname() (string, error) {
	return os.Hostname()
}

func (l *FsLoader) Cluster() (io.ReadCloser, error) {
	return l.open(filepath.Join(l.Root, "firewall", "cluster.fw"))
}

func (l *FsLoader) Host() (io.ReadCloser, error) {
	return l.open(filepath.Join(l.Root, "local", "host.fw"))
}

func (l *FsLoader) GuestList() (guest.Map, error) {
	data, err := os.ReadFile(filepath.Join(l.Root, ".vmlist"))
	if os.IsNotExist(err) {
		return guest.Map{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read guest list: %w", err)
	}
	return guest.ParseMap(data)
}

func (l *FsLoader) GuestConfig(vmid guest.Vmid, entry guest.Entry) (io.ReadCloser, error) {
	return l.open(guest.ConfigPath(vmid, entry))
}

func (l *FsLoader) GuestFirewallConfig(vmid guest.Vmid) (io.ReadCloser, error) {
	return l.open(filepath.Join(l.Root, "firewall", vmid.String()+".fw"))
}

// BridgeList scans the vnet firewall config directory. Bridges without
// a config file carry no forward policy and are not listed.
func (l *FsLoader) BridgeList() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(l.Root, "sdn", "firewall"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list bridge configs: %w", err)
	}

	var bridges []string
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".fw")
		if ok && !entry.IsDir() {
			bridges = append(bridges, name)
		}
	}
	return bridges, nil
}

func (l *FsLoader) BridgeFirewallConfig(bridge string) (io.ReadCloser, error) {
	return l.open(filepath.Join(l.Root, "sdn", "firewall", bridge+".fw"))
}

func (l *FsLoader) SdnRunningConfig() (io.ReadCloser, error) {
	return l.open(filepath.Join(l.Root, "sdn", ".running-config"))
}

func (l *FsLoader) Ipam() (io.ReadCloser, error) {
	return l.open(filepath.Join(l.Root, "priv", "ipam.db"))
}

func (l *FsLoader) InterfaceMapping() (host.InterfaceMapping, error) {
	return host.LoadInterfaceMapping(context.Background())
}

// NftChainLoader reads the chain inventory through the nft client.
type NftChainLoader struct {
	Client *nftjson.Client
}

func (l *NftChainLoader) Chains(ctx context.Context) ([]nftjson.ListChain, error) {
	output, err := l.Client.RunJSON(ctx, nftjson.NewCommands(nftjson.ListChains()))
	if err != nil {
		return nil, fmt.Errorf("failed to list chains: %w", err)
	}
	if output == nil {
		return nil, nil
	}
	return output.Chains(), nil
}

// FirewallConfig is the aggregated input of one sync cycle: every
// config level parsed, plus the engine's current chain inventory.
type FirewallConfig struct {
	cluster *policy.ClusterConfig
	host    *policy.HostConfig
	guests  map[guest.Vmid]*guest.Config
	bridges map[string]*policy.BridgeConfig
	sdn     *policy.SdnConfig

	ifaceMap host.InterfaceMapping
	chains   []nftjson.ListChain
}

// LoadFirewallConfig gathers and parses all config levels. Broken
// guest and bridge configs are logged and skipped so one bad file
// cannot take down filtering for everything else; broken cluster or
// host config aborts the cycle.
func LoadFirewallConfig(ctx context.Context, loader ConfigLoader, chainLoader ChainLoader) (*FirewallConfig, error) {
	log := logging.WithComponent("firewall")

	cluster, err := parseConfigStream(loader.Cluster, policy.ParseClusterConfig)
	if err != nil {
		return nil, fmt.Errorf("cluster config: %w", err)
	}
	hostCfg, err := parseConfigStream(loader.Host, policy.ParseHostConfig)
	if err != nil {
		return nil, fmt.Errorf("host config: %w", err)
	}

	cfg := &FirewallConfig{
		cluster: cluster,
		host:    hostCfg,
		guests:  make(map[guest.Vmid]*guest.Config),
		bridges: make(map[string]*policy.BridgeConfig),
	}

	if !cfg.Enabled() {
		return cfg, nil
	}

	hostname, err := loader.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to determine hostname: %w", err)
	}

	guests, err := loader.GuestList()
	if err != nil {
		return nil, err
	}
	for vmid, entry := range guests {
		if !entry.IsLocal(hostname) {
			continue
		}
		guestCfg, err := loadGuestConfig(loader, vmid, entry)
		if err != nil {
			log.Warn("skipping guest with broken config", "vmid", vmid, "error", err)
			continue
		}
		if guestCfg != nil {
			cfg.guests[vmid] = guestCfg
		}
	}

	bridges, err := loader.BridgeList()
	if err != nil {
		return nil, err
	}
	for _, bridge := range bridges {
		bridgeCfg, err := parseConfigStream(
			func() (io.ReadCloser, error) { return loader.BridgeFirewallConfig(bridge) },
			policy.ParseBridgeConfig,
		)
		if err != nil {
			log.Warn("skipping bridge with broken config", "bridge", bridge, "error", err)
			continue
		}
		cfg.bridges[bridge] = bridgeCfg
	}

	cfg.sdn, err = loadSdnConfig(loader)
	if err != nil {
		log.Warn("ignoring sdn config", "error", err)
		cfg.sdn = nil
	}

	cfg.ifaceMap, err = loader.InterfaceMapping()
	if err != nil {
		log.Warn("ignoring interface mapping", "error", err)
		cfg.ifaceMap = nil
	}

	if chainLoader != nil {
		cfg.chains, err = chainLoader.Chains(ctx)
		if err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// parseConfigStream opens one config stream and parses it; a missing
// stream parses as empty, yielding all defaults.
func parseConfigStream[T any](open func() (io.ReadCloser, error), parse func(io.Reader) (*T, error)) (*T, error) {
	stream, err := open()
	if err != nil {
		return nil, err
	}
	if stream == nil {
		return parse(strings.NewReader(""))
	}
	defer stream.Close()
	return parse(stream)
}

// loadGuestConfig reads one guest's firewall and device configs. A
// guest without a firewall config file is not firewalled at all and
// loads as nil.
func loadGuestConfig(loader ConfigLoader, vmid guest.Vmid, entry guest.Entry) (*guest.Config, error) {
	fwStream, err := loader.GuestFirewallConfig(vmid)
	if err != nil {
		return nil, err
	}
	if fwStream == nil {
		return nil, nil
	}
	defer fwStream.Close()

	cfgStream, err := loader.GuestConfig(vmid, entry)
	if err != nil {
		return nil, err
	}
	if cfgStream == nil {
		return nil, fmt.Errorf("guest %s has no config file", vmid)
	}
	defer cfgStream.Close()

	return guest.ParseConfig(vmid, entry.Type, fwStream, cfgStream)
}

func loadSdnConfig(loader ConfigLoader) (*policy.SdnConfig, error) {
	stream, err := loader.SdnRunningConfig()
	if err != nil {
		return nil, err
	}
	if stream == nil {
		return nil, nil
	}
	defer stream.Close()

	sdn, err := policy.ParseSdnRunningConfig(stream)
	if err != nil {
		return nil, err
	}

	ipam, err := loader.Ipam()
	if err != nil {
		return nil, err
	}
	if ipam != nil {
		defer ipam.Close()
		if err := sdn.LoadIpam(ipam); err != nil {
			return nil, err
		}
	}
	return sdn, nil
}

// Enabled reports whether this daemon should manage the ruleset at
// all: the cluster firewall must be on and the host must have opted
// into the nftables backend.
func (c *FirewallConfig) Enabled() bool {
	return c.cluster.Enabled() && c.host.Nftables()
}

func (c *FirewallConfig) Cluster() *policy.ClusterConfig { return c.cluster }
func (c *FirewallConfig) Host() *policy.HostConfig       { return c.host }
func (c *FirewallConfig) Sdn() *policy.SdnConfig         { return c.sdn }

func (c *FirewallConfig) Guest(vmid guest.Vmid) *guest.Config {
	return c.guests[vmid]
}

// GuestIDs returns the firewalled local guests in ascending order, so
// generated batches are deterministic.
func (c *FirewallConfig) GuestIDs() []guest.Vmid {
	ids := make([]guest.Vmid, 0, len(c.guests))
	for vmid := range c.guests {
		ids = append(ids, vmid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *FirewallConfig) Bridge(name string) *policy.BridgeConfig {
	return c.bridges[name]
}

func (c *FirewallConfig) BridgeNames() []string {
	names := make([]string, 0, len(c.bridges))
	for name := range c.bridges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *FirewallConfig) ChainInventory() []nftjson.ListChain {
	return c.chains
}

// ResolveIface maps a logical interface name to the kernel name.
func (c *FirewallConfig) ResolveIface(name string) string {
	return c.ifaceMap.Resolve(name)
}

// Alias resolves an alias reference. Guest-scoped lookups fall back to
// the datacenter level when the guest does not define the name, which
// is how bare alias names behave in guest configs.
func (c *FirewallConfig) Alias(name policy.AliasName, vmid *guest.Vmid) (policy.Alias, bool) {
	if name.Scope == policy.ScopeGuest {
		if vmid != nil {
			if g := c.guests[*vmid]; g != nil {
				if alias, ok := g.Alias(name); ok {
					return alias, true
				}
			}
		}
		return c.cluster.Alias(name.Name)
	}
	return c.cluster.Alias(name.Name)
}

// ResolveIpsetScope pins a guest-scoped set reference to the level
// that actually defines it, falling back to the datacenter set.
func (c *FirewallConfig) ResolveIpsetScope(name policy.IpsetName, vmid *guest.Vmid) (policy.IpsetName, error) {
	if name.Scope != policy.ScopeGuest {
		return name, nil
	}
	if vmid != nil {
		if g := c.guests[*vmid]; g != nil {
			if _, ok := g.Ipsets()[name.Name]; ok {
				return name, nil
			}
		}
	}
	if _, ok := c.cluster.Config.Ipsets[name.Name]; ok {
		return policy.NewIpsetName(policy.ScopeDatacenter, name.Name), nil
	}
	return name, fmt.Errorf("no such ipset: %s", name.Name)
}

// Group looks up a cluster-level rule group.
func (c *FirewallConfig) Group(name string) (*policy.Group, bool) {
	g, ok := c.cluster.Config.Groups[name]
	return g, ok
}
