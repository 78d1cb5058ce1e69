package policy

import "io"

// Defaults applied when the cluster config leaves an option unset.
const (
	ClusterEnabledDefault  = false
	ClusterPolicyInDefault = VerdictDrop
)

const ClusterPolicyOutDefault = VerdictAccept

// ClusterOptions are the typed "[OPTIONS]" of the cluster config.
// Nil pointers mean "unset, use the default".
type ClusterOptions struct {
	Enable       *bool
	Ebtables     *bool
	LogRatelimit *LogRateLimit
	PolicyIn     *Verdict
	PolicyOut    *Verdict
}

// ClusterConfig is the datacenter-wide firewall config: the only level
// that may declare aliases, sets and rule groups.
type ClusterConfig struct {
	Options ClusterOptions
	Config  *SectionConfig
}

func ParseClusterConfig(input io.Reader) (*ClusterConfig, error) {
	scope := ScopeDatacenter
	raw, err := ParseSections(input, ParserConfig{IpsetScope: &scope})
	if err != nil {
		return nil, err
	}

	dec := NewOptionDecoder(raw.Options)
	options := ClusterOptions{
		Enable:       dec.Bool("enable"),
		Ebtables:     dec.Bool("ebtables"),
		LogRatelimit: dec.RateLimit("log_ratelimit"),
		PolicyIn:     dec.Verdict("policy_in"),
		PolicyOut:    dec.Verdict("policy_out"),
	}
	if err := dec.Finish(); err != nil {
		return nil, err
	}

	return &ClusterConfig{Options: options, Config: raw}, nil
}

func (c *ClusterConfig) Enabled() bool {
	if c.Options.Enable != nil {
		return *c.Options.Enable
	}
	return ClusterEnabledDefault
}

// DefaultPolicy is the chain policy verdict for the given direction.
func (c *ClusterConfig) DefaultPolicy(dir Direction) Verdict {
	switch dir {
	case DirOut:
		if c.Options.PolicyOut != nil {
			return *c.Options.PolicyOut
		}
		return ClusterPolicyOutDefault
	default:
		if c.Options.PolicyIn != nil {
			return *c.Options.PolicyIn
		}
		return ClusterPolicyInDefault
	}
}

// LogRatelimit returns the configured log rate limit, or nil when rate
// limiting is disabled. An unset option means the enabled default.
func (c *ClusterConfig) LogRatelimit() *LogRateLimit {
	limit := DefaultLogRateLimit()
	if c.Options.LogRatelimit != nil {
		limit = *c.Options.LogRatelimit
	}
	if !limit.Enabled {
		return nil
	}
	return &limit
}

func (c *ClusterConfig) Rules() []Rule { return c.Config.Rules }

func (c *ClusterConfig) Alias(name string) (Alias, bool) {
	return c.Config.Alias(name)
}
