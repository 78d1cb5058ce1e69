package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"grimm.is/palisade/internal/config"
	"grimm.is/palisade/internal/firewall"
	"grimm.is/palisade/internal/logging"
	"grimm.is/palisade/internal/metrics"
	"grimm.is/palisade/internal/nftjson"
)

// RunStart runs the sync daemon: every interval it reloads the cluster
// policy and brings the engine in line with it. On SIGTERM or SIGINT
// the firewall tables are removed before exiting.
func RunStart(configFile string) error {
	cfg, err := loadDaemonConfig(configFile)
	if err != nil {
		return err
	}
	interval, err := cfg.Interval()
	if err != nil {
		return err
	}

	if err := nftjson.Probe(); err != nil {
		return err
	}

	client := &nftjson.Client{Binary: cfg.NftBinary}
	reg := metrics.New()
	log := logging.WithComponent("daemon")
	log.Info("starting", "interval", interval, "config_root", cfg.ConfigRoot)

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	if cfg.MetricsListen != "" {
		log.Info("serving metrics", "addr", cfg.MetricsListen)
		g.Go(func() error {
			return reg.Serve(ctx, cfg.MetricsListen)
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			syncOnce(ctx, client, cfg, reg, log)
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	runErr := g.Wait()

	// The loop context is cancelled at this point; tear down with a
	// fresh one so the tables do not survive the daemon.
	teardownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("removing firewall tables on shutdown")
	if err := removeTables(teardownCtx, client); err != nil {
		log.Error("shutdown teardown failed", "error", err)
	}

	return runErr
}

// syncOnce runs one cycle and records its outcome.
func syncOnce(ctx context.Context, client *nftjson.Client, cfg *config.Config, reg *metrics.Registry, log *logging.Logger) {
	run := uuid.New().String()[:8]
	start := time.Now()

	result, applied, err := runCycle(ctx, client, cfg, reg)
	elapsed := time.Since(start)

	reg.CycleDuration.Observe(elapsed.Seconds())
	reg.CyclesTotal.WithLabelValues(result).Inc()

	if err != nil {
		log.Error("sync cycle failed", "run", run, "took", elapsed, "error", err)
		return
	}
	log.Debug("sync cycle", "run", run, "result", result, "commands", applied, "took", elapsed)
}

func runCycle(ctx context.Context, client *nftjson.Client, cfg *config.Config, reg *metrics.Registry) (string, int, error) {
	if _, err := os.Stat(cfg.ForceDisableFile); err == nil {
		return metrics.ResultSkipped, 0, nil
	}

	loader := firewall.NewFsLoader(cfg.ConfigRoot)
	fwCfg, err := firewall.LoadFirewallConfig(ctx, loader, &firewall.NftChainLoader{Client: client})
	if err != nil {
		return metrics.ResultError, 0, err
	}

	fw := firewall.New(fwCfg)
	if !fw.Enabled() {
		if err := removeTables(ctx, client); err != nil {
			return metrics.ResultError, 0, err
		}
		reg.AppliedCommands.Set(0)
		reg.Guests.Set(0)
		return metrics.ResultRemoved, 0, nil
	}

	// The skeleton must be in place before the batch: the generated
	// commands reference its chains, sets and verdict maps.
	if err := client.Run(ctx, firewall.Skeleton); err != nil {
		return metrics.ResultError, 0, fmt.Errorf("apply skeleton: %w", err)
	}

	batch, err := fw.FullHostFirewall()
	if err != nil {
		return metrics.ResultError, 0, err
	}
	if _, err := client.RunJSON(ctx, batch); err != nil {
		return metrics.ResultError, 0, fmt.Errorf("apply batch: %w", err)
	}

	reg.AppliedCommands.Set(float64(batch.Len()))
	reg.Guests.Set(float64(enabledGuestCount(fwCfg)))
	reg.LastApplied.SetToCurrentTime()

	if err := writeLastBatch(cfg.StateDir, batch); err != nil {
		logging.Warn("failed to record applied batch", "error", err)
	}

	return metrics.ResultApplied, batch.Len(), nil
}

func enabledGuestCount(cfg *firewall.FirewallConfig) int {
	count := 0
	for _, vmid := range cfg.GuestIDs() {
		if cfg.Guest(vmid).Enabled() {
			count++
		}
	}
	return count
}
