package policy

import (
	"fmt"
	"io"
)

// Defaults applied when the host config leaves an option unset.
const (
	HostEnabledDefault         = true
	HostNftablesDefault        = false
	HostAllowNdpDefault        = true
	HostBlockSmurfsDefault     = true
	HostBlockSynfloodDefault   = false
	HostSynfloodRateDefault    = int64(200)
	HostSynfloodBurstDefault   = int64(1000)
	HostBlockInvalidTCPDefault = false
	HostBlockInvalidConntrack  = false
	HostLogInvalidConntrack    = false
)

// HostOptions are the typed "[OPTIONS]" of a node's host config.
type HostOptions struct {
	Enable   *bool
	Nftables *bool

	LogLevelIn  *LogLevel
	LogLevelOut *LogLevel

	LogNfConntrack *bool
	Ndp            *bool

	NfConntrackAllowInvalid *bool
	NfConntrackHelpers      []string

	NfConntrackMax                   *int64
	NfConntrackTCPTimeoutEstablished *int64
	NfConntrackTCPTimeoutSynRecv     *int64

	Nosmurfs *bool

	ProtectionSynflood      *bool
	ProtectionSynfloodBurst *int64
	ProtectionSynfloodRate  *int64

	SmurfLogLevel    *LogLevel
	TCPFlagsLogLevel *LogLevel
	TCPFlags         *bool
}

// HostConfig is one node's firewall config: options and rules only.
type HostConfig struct {
	Options HostOptions
	Config  *SectionConfig
}

func ParseHostConfig(input io.Reader) (*HostConfig, error) {
	raw, err := ParseSections(input, ParserConfig{})
	if err != nil {
		return nil, err
	}

	if len(raw.Groups) > 0 {
		return nil, fmt.Errorf("host firewall config cannot declare groups")
	}
	if len(raw.Aliases) > 0 {
		return nil, fmt.Errorf("host firewall config cannot declare aliases")
	}
	if len(raw.Ipsets) > 0 {
		return nil, fmt.Errorf("host firewall config cannot declare ipsets")
	}

	dec := NewOptionDecoder(raw.Options)
	options := HostOptions{
		Enable:                           dec.Bool("enable"),
		Nftables:                         dec.Bool("nftables"),
		LogLevelIn:                       dec.LogLevel("log_level_in"),
		LogLevelOut:                      dec.LogLevel("log_level_out"),
		LogNfConntrack:                   dec.Bool("log_nf_conntrack"),
		Ndp:                              dec.Bool("ndp"),
		NfConntrackAllowInvalid:          dec.Bool("nf_conntrack_allow_invalid"),
		NfConntrackHelpers:               dec.NameList("nf_conntrack_helpers"),
		NfConntrackMax:                   dec.Int("nf_conntrack_max"),
		NfConntrackTCPTimeoutEstablished: dec.Int("nf_conntrack_tcp_timeout_established"),
		NfConntrackTCPTimeoutSynRecv:     dec.Int("nf_conntrack_tcp_timeout_syn_recv"),
		Nosmurfs:                         dec.Bool("nosmurfs"),
		ProtectionSynflood:               dec.Bool("protection_synflood"),
		ProtectionSynfloodBurst:          dec.Int("protection_synflood_burst"),
		ProtectionSynfloodRate:           dec.Int("protection_synflood_rate"),
		SmurfLogLevel:                    dec.LogLevel("smurf_log_level"),
		TCPFlagsLogLevel:                 dec.LogLevel("tcp_flags_log_level"),
		TCPFlags:                         dec.Bool("tcpflags"),
	}
	if err := dec.Finish(); err != nil {
		return nil, err
	}

	return &HostConfig{Options: options, Config: raw}, nil
}

func (c *HostConfig) Rules() []Rule { return c.Config.Rules }

func (c *HostConfig) Enabled() bool {
	return boolOr(c.Options.Enable, HostEnabledDefault)
}

func (c *HostConfig) Nftables() bool {
	return boolOr(c.Options.Nftables, HostNftablesDefault)
}

func (c *HostConfig) AllowNdp() bool {
	return boolOr(c.Options.Ndp, HostAllowNdpDefault)
}

func (c *HostConfig) BlockSmurfs() bool {
	return boolOr(c.Options.Nosmurfs, HostBlockSmurfsDefault)
}

func (c *HostConfig) BlockSmurfsLogLevel() LogLevel {
	return levelOr(c.Options.SmurfLogLevel, LogNolog)
}

func (c *HostConfig) BlockSynflood() bool {
	return boolOr(c.Options.ProtectionSynflood, HostBlockSynfloodDefault)
}

func (c *HostConfig) SynfloodRate() int64 {
	return intOr(c.Options.ProtectionSynfloodRate, HostSynfloodRateDefault)
}

func (c *HostConfig) SynfloodBurst() int64 {
	return intOr(c.Options.ProtectionSynfloodBurst, HostSynfloodBurstDefault)
}

func (c *HostConfig) BlockInvalidTCP() bool {
	return boolOr(c.Options.TCPFlags, HostBlockInvalidTCPDefault)
}

func (c *HostConfig) BlockInvalidTCPLogLevel() LogLevel {
	return levelOr(c.Options.TCPFlagsLogLevel, LogNolog)
}

// BlockInvalidConntrack is the inverse of nf_conntrack_allow_invalid.
func (c *HostConfig) BlockInvalidConntrack() bool {
	return !boolOr(c.Options.NfConntrackAllowInvalid, HostBlockInvalidConntrack)
}

func (c *HostConfig) LogNfConntrack() bool {
	return boolOr(c.Options.LogNfConntrack, HostLogInvalidConntrack)
}

func (c *HostConfig) ConntrackHelpers() []string {
	return c.Options.NfConntrackHelpers
}

// LogLevel is the per-direction level used for the trailing policy log
// rule of the host chains.
func (c *HostConfig) LogLevel(dir Direction) LogLevel {
	if dir == DirOut {
		return levelOr(c.Options.LogLevelOut, LogNolog)
	}
	return levelOr(c.Options.LogLevelIn, LogNolog)
}

func boolOr(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}

func intOr(v *int64, def int64) int64 {
	if v != nil {
		return *v
	}
	return def
}

func levelOr(v *LogLevel, def LogLevel) LogLevel {
	if v != nil {
		return *v
	}
	return def
}
