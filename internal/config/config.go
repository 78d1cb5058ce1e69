// Package config loads the daemon's own HCL configuration file. This is
// the configuration of the palisade process itself; the firewall policy
// lives in the cluster's .fw files and is read every sync cycle.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"grimm.is/palisade/internal/brand"
)

// Config is the daemon configuration. Every attribute is optional; an
// absent or empty config file yields Default().
type Config struct {
	// SyncInterval is the pause between sync cycles, as a Go duration
	// string ("5s", "1m").
	SyncInterval string `hcl:"sync_interval,optional"`

	// NftBinary is the path of the nft binary; empty means $PATH lookup.
	NftBinary string `hcl:"nft_binary,optional"`

	// ConfigRoot is the root of the cluster config hierarchy.
	ConfigRoot string `hcl:"config_root,optional"`

	// StateDir holds daemon state, e.g. the last applied batch.
	StateDir string `hcl:"state_dir,optional"`

	// MetricsListen is the prometheus listen address ("127.0.0.1:9641").
	// Empty disables the metrics endpoint.
	MetricsListen string `hcl:"metrics_listen,optional"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `hcl:"log_level,optional"`

	// ForceDisableFile makes the daemon skip sync cycles while the file
	// exists, so maintenance tooling can pause enforcement atomically.
	ForceDisableFile string `hcl:"force_disable_file,optional"`
}

const (
	DefaultSyncInterval     = 5 * time.Second
	DefaultConfigRoot       = "/etc/pve"
	DefaultForceDisableFile = "/run/proxmox-nftables-firewall-force-disable"
)

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		SyncInterval:     DefaultSyncInterval.String(),
		ConfigRoot:       DefaultConfigRoot,
		StateDir:         brand.DefaultStateDir,
		LogLevel:         "info",
		ForceDisableFile: DefaultForceDisableFile,
	}
}

// Load reads the config file at path. A missing file is not an error and
// yields the defaults, so a bare install runs without any setup.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadBytes(path, data)
}

// LoadBytes parses HCL config data. Attributes may interpolate the
// hostname and the default state dir.
func LoadBytes(filename string, data []byte) (*Config, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %s", filename, diags.Error())
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %s", filename, diags.Error())
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func evalContext() *hcl.EvalContext {
	hostname, _ := os.Hostname()
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"hostname":  cty.StringVal(hostname),
			"state_dir": cty.StringVal(brand.DefaultStateDir),
		},
	}
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.SyncInterval == "" {
		c.SyncInterval = def.SyncInterval
	}
	if c.ConfigRoot == "" {
		c.ConfigRoot = def.ConfigRoot
	}
	if c.StateDir == "" {
		c.StateDir = def.StateDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.ForceDisableFile == "" {
		c.ForceDisableFile = def.ForceDisableFile
	}
}

// Interval parses SyncInterval. Intervals under a second are rejected so
// a typo cannot turn the daemon into a busy loop against the engine.
func (c *Config) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(c.SyncInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid sync_interval %q: %w", c.SyncInterval, err)
	}
	if d < time.Second {
		return 0, fmt.Errorf("sync_interval %q is below 1s", c.SyncInterval)
	}
	return d, nil
}
