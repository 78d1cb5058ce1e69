package policy

import (
	"fmt"
	"io"
)

// Defaults applied when a bridge config leaves an option unset.
const (
	BridgeEnabledDefault       = false
	BridgePolicyForwardDefault = VerdictAccept
)

// BridgeOptions are the typed "[OPTIONS]" of a per-bridge config.
// Bridge chains filter forwarded traffic only, so the policy verdict
// is restricted to ACCEPT or DROP.
type BridgeOptions struct {
	Enable          *bool
	LogLevelForward *LogLevel
	PolicyForward   *Verdict
}

// BridgeConfig is the firewall config of one network bridge: options
// plus FORWARD rules.
type BridgeConfig struct {
	Options BridgeOptions
	Config  *SectionConfig
}

func ParseBridgeConfig(input io.Reader) (*BridgeConfig, error) {
	raw, err := ParseSections(input, ParserConfig{ForwardOnly: true})
	if err != nil {
		return nil, err
	}

	if len(raw.Groups) > 0 || len(raw.Aliases) > 0 || len(raw.Ipsets) > 0 {
		return nil, fmt.Errorf("bridge firewall config may only declare options and rules")
	}

	dec := NewOptionDecoder(raw.Options)
	options := BridgeOptions{
		Enable:          dec.Bool("enable"),
		LogLevelForward: dec.LogLevel("log_level_forward"),
		PolicyForward:   dec.Verdict("policy_forward"),
	}
	if err := dec.Finish(); err != nil {
		return nil, err
	}
	if options.PolicyForward != nil && *options.PolicyForward == VerdictReject {
		return nil, fmt.Errorf("REJECT is not a valid forward policy")
	}

	return &BridgeConfig{Options: options, Config: raw}, nil
}

func (c *BridgeConfig) Rules() []Rule { return c.Config.Rules }

func (c *BridgeConfig) Enabled() bool {
	return boolOr(c.Options.Enable, BridgeEnabledDefault)
}

func (c *BridgeConfig) PolicyForward() Verdict {
	if c.Options.PolicyForward != nil {
		return *c.Options.PolicyForward
	}
	return BridgePolicyForwardDefault
}

func (c *BridgeConfig) LogLevelForward() LogLevel {
	return levelOr(c.Options.LogLevelForward, LogNolog)
}
