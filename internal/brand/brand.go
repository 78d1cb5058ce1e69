// Package brand provides centralized naming and default paths for the
// firewall daemon. The identity is loaded from brand.json at compile time
// via go:embed so packaging scripts can read the same file.
package brand

import (
	_ "embed"
	"encoding/json"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information.
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Description      string `json:"description"`
	BinaryName       string `json:"binaryName"`
	ServiceName      string `json:"serviceName"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	DefaultStateDir  string `json:"defaultStateDir"`
	DefaultRunDir    string `json:"defaultRunDir"`
	ConfigFileName   string `json:"configFileName"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Description = b.Description
	BinaryName = b.BinaryName
	ServiceName = b.ServiceName
	DefaultConfigDir = b.DefaultConfigDir
	DefaultStateDir = b.DefaultStateDir
	DefaultRunDir = b.DefaultRunDir
	ConfigFileName = b.ConfigFileName
}

// Exported variables for convenience
var (
	Name             string
	LowerName        string
	Description      string
	BinaryName       string
	ServiceName      string
	DefaultConfigDir string
	DefaultStateDir  string
	DefaultRunDir    string
	ConfigFileName   string
)

// Version is stamped at build time via -ldflags "-X ...brand.Version=v1.2.3".
var Version = "dev"

// DefaultConfigFile is the full path of the daemon's own config file.
func DefaultConfigFile() string {
	return DefaultConfigDir + "/" + ConfigFileName
}
