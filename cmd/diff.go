package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pmezard/go-difflib/difflib"
)

// RunDiff compares the batch the current policy compiles to against
// the batch the daemon last applied, as a unified diff.
func RunDiff(configFile, configRoot string, w io.Writer) error {
	cfg, err := loadDaemonConfig(configFile)
	if err != nil {
		return err
	}
	if configRoot == "" {
		configRoot = cfg.ConfigRoot
	}

	applied, err := os.ReadFile(lastBatchPath(cfg.StateDir))
	if os.IsNotExist(err) {
		applied = nil
	} else if err != nil {
		return fmt.Errorf("read applied batch: %w", err)
	}

	batch, err := compileBatch(context.Background(), configRoot)
	if err != nil {
		return err
	}
	compiled, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return err
	}
	compiled = append(compiled, '\n')

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(applied)),
		B:        difflib.SplitLines(string(compiled)),
		FromFile: "applied",
		ToFile:   "compiled",
		Context:  3,
	})
	if err != nil {
		return err
	}

	if diff == "" {
		fmt.Fprintln(w, "no changes")
		return nil
	}
	fmt.Fprint(w, diff)
	return nil
}
