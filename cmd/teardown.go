package cmd

import (
	"context"
	"time"

	"grimm.is/palisade/internal/nftjson"
)

// RunTeardown removes both firewall tables from the engine. Missing
// tables are fine; a stopped daemon may already have cleaned up.
func RunTeardown(configFile string) error {
	cfg, err := loadDaemonConfig(configFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := &nftjson.Client{Binary: cfg.NftBinary}
	return removeTables(ctx, client)
}
