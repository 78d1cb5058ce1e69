package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// RunCompile prints the command batch the current on-disk policy would
// produce, without touching the engine or the kernel.
func RunCompile(configFile, configRoot string, w io.Writer) error {
	cfg, err := loadDaemonConfig(configFile)
	if err != nil {
		return err
	}
	if configRoot == "" {
		configRoot = cfg.ConfigRoot
	}

	batch, err := compileBatch(context.Background(), configRoot)
	if err != nil {
		return err
	}
	if batch.Len() == 0 {
		fmt.Fprintln(w, "firewall disabled, empty batch")
		return nil
	}

	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}
