package guest

import (
	"fmt"
	"io"

	"grimm.is/palisade/internal/policy"
)

// Defaults applied when a guest config leaves an option unset.
const (
	EnabledDefault   = false
	AllowNdpDefault  = true
	AllowDhcpDefault = true
	AllowRaDefault   = false
	MacfilterDefault = true
	IpfilterDefault  = false
)

const (
	PolicyInDefault  = policy.VerdictDrop
	PolicyOutDefault = policy.VerdictAccept
)

// Options are the typed "[OPTIONS]" of a per-guest firewall config.
type Options struct {
	Dhcp      *bool
	Enable    *bool
	Ipfilter  *bool
	Ndp       *bool
	Radv      *bool
	Macfilter *bool

	LogLevelIn  *policy.LogLevel
	LogLevelOut *policy.LogLevel

	PolicyIn  *policy.Verdict
	PolicyOut *policy.Verdict
}

// Config is one guest's firewall policy combined with its network
// device list.
type Config struct {
	Vmid        Vmid
	IfacePrefix string

	Options Options
	Network *NetworkConfig
	Config  *policy.SectionConfig
}

// ParseConfig reads a guest's firewall config and its network device
// config. Guest configs may declare guest-scoped sets but no groups,
// and rule interfaces must be net<N> keys.
func ParseConfig(vmid Vmid, ty Type, firewallInput, networkInput io.Reader) (*Config, error) {
	scope := policy.ScopeGuest
	raw, err := policy.ParseSections(firewallInput, policy.ParserConfig{
		GuestIfaceNames: true,
		IpsetScope:      &scope,
		IpsetVmid:       uint32(vmid),
	})
	if err != nil {
		return nil, err
	}
	if len(raw.Groups) > 0 {
		return nil, fmt.Errorf("guest firewall config cannot declare groups")
	}

	dec := policy.NewOptionDecoder(raw.Options)
	options := Options{
		Dhcp:        dec.Bool("dhcp"),
		Enable:      dec.Bool("enable"),
		Ipfilter:    dec.Bool("ipfilter"),
		Ndp:         dec.Bool("ndp"),
		Radv:        dec.Bool("radv"),
		Macfilter:   dec.Bool("macfilter"),
		LogLevelIn:  dec.LogLevel("log_level_in"),
		LogLevelOut: dec.LogLevel("log_level_out"),
		PolicyIn:    dec.Verdict("policy_in"),
		PolicyOut:   dec.Verdict("policy_out"),
	}
	if err := dec.Finish(); err != nil {
		return nil, err
	}

	network, err := ParseNetworkConfig(networkInput)
	if err != nil {
		return nil, err
	}

	return &Config{
		Vmid:        vmid,
		IfacePrefix: ty.IfacePrefix(),
		Options:     options,
		Network:     network,
		Config:      raw,
	}, nil
}

// IfaceNameByIndex is the host-side interface name of device N, e.g.
// "tap100i0".
func (c *Config) IfaceNameByIndex(index int) string {
	return fmt.Sprintf("%s%si%d", c.IfacePrefix, c.Vmid, index)
}

// IfaceNameByKey translates a "net<N>" config key to the host-side
// interface name.
func (c *Config) IfaceNameByKey(key string) (string, error) {
	index, err := IndexFromNetKey(key)
	if err != nil {
		return "", err
	}
	return c.IfaceNameByIndex(index), nil
}

func (c *Config) Enabled() bool {
	if c.Options.Enable != nil {
		return *c.Options.Enable
	}
	return EnabledDefault
}

func (c *Config) Rules() []policy.Rule { return c.Config.Rules }

func (c *Config) Alias(name policy.AliasName) (policy.Alias, bool) {
	return c.Config.Alias(name.Name)
}

func (c *Config) LogLevel(dir policy.Direction) policy.LogLevel {
	level := c.Options.LogLevelIn
	if dir == policy.DirOut {
		level = c.Options.LogLevelOut
	}
	if level != nil {
		return *level
	}
	return policy.LogNolog
}

func (c *Config) AllowNdp() bool {
	return optBool(c.Options.Ndp, AllowNdpDefault)
}

func (c *Config) AllowDhcp() bool {
	return optBool(c.Options.Dhcp, AllowDhcpDefault)
}

// AllowRa reports whether the guest may send router advertisements.
func (c *Config) AllowRa() bool {
	return optBool(c.Options.Radv, AllowRaDefault)
}

func (c *Config) Macfilter() bool {
	return optBool(c.Options.Macfilter, MacfilterDefault)
}

func (c *Config) Ipfilter() bool {
	return optBool(c.Options.Ipfilter, IpfilterDefault)
}

func (c *Config) DefaultPolicy(dir policy.Direction) policy.Verdict {
	if dir == policy.DirOut {
		if c.Options.PolicyOut != nil {
			return *c.Options.PolicyOut
		}
		return PolicyOutDefault
	}
	if c.Options.PolicyIn != nil {
		return *c.Options.PolicyIn
	}
	return PolicyInDefault
}

// Ipsets returns the guest's set definitions.
func (c *Config) Ipsets() map[string]*policy.Ipset {
	return c.Config.Ipsets
}

func optBool(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}
