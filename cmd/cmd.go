// Package cmd implements the palisade subcommands. Each file carries
// one RunX entry point dispatched from main.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"grimm.is/palisade/internal/config"
	"grimm.is/palisade/internal/firewall"
	"grimm.is/palisade/internal/logging"
	"grimm.is/palisade/internal/nftjson"
)

// loadDaemonConfig reads the daemon config and applies its log level.
func loadDaemonConfig(configFile string) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", configFile, err)
	}
	logging.Default().SetLevel(level)

	return cfg, nil
}

// discardTunables keeps offline compilation from touching /proc.
type discardTunables struct{}

func (discardTunables) WriteTunable(path, value string) error { return nil }

// compileBatch builds the full command batch from the on-disk policy
// without talking to the engine. The live chain inventory is not
// consulted, so the reset phase covers only the statically owned chains.
func compileBatch(ctx context.Context, configRoot string) (nftjson.Commands, error) {
	cfg, err := firewall.LoadFirewallConfig(ctx, firewall.NewFsLoader(configRoot), nil)
	if err != nil {
		return nftjson.Commands{}, err
	}

	fw := firewall.New(cfg).WithTunables(discardTunables{})
	if !fw.Enabled() {
		return nftjson.Commands{}, nil
	}
	return fw.FullHostFirewall()
}

func lastBatchPath(stateDir string) string {
	return filepath.Join(stateDir, "last-batch.json")
}

// writeLastBatch records the applied batch for the diff subcommand.
func writeLastBatch(stateDir string, batch nftjson.Commands) error {
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return err
	}

	tmp := lastBatchPath(stateDir) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, lastBatchPath(stateDir))
}

// removeTables deletes both firewall tables. A table the engine does
// not know about is not an error.
func removeTables(ctx context.Context, client *nftjson.Client) error {
	for _, batch := range firewall.RemoveCommands() {
		if _, err := client.RunJSON(ctx, batch); err != nil && !nftjson.IsCommandError(err) {
			return err
		}
	}
	return nil
}
