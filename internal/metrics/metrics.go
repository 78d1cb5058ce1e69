// Package metrics exposes the daemon's sync loop instrumentation as
// prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes used as the "result" label of CyclesTotal.
const (
	ResultApplied = "applied"
	ResultRemoved = "removed"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

// Registry holds the sync loop metrics on a private prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	// CycleDuration observes wall time of completed sync cycles.
	CycleDuration prometheus.Histogram

	// CyclesTotal counts cycles per outcome.
	CyclesTotal *prometheus.CounterVec

	// AppliedCommands is the size of the last applied batch.
	AppliedCommands prometheus.Gauge

	// Guests is the number of firewall-enabled guests on this node.
	Guests prometheus.Gauge

	// LastApplied is the unix timestamp of the last successful apply.
	LastApplied prometheus.Gauge
}

// New creates a registry with the standard go/process collectors plus
// the firewall cycle metrics.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &Registry{
		reg: reg,
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "palisade_cycle_duration_seconds",
			Help:    "Wall time of completed firewall sync cycles",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "palisade_cycles_total",
			Help: "Firewall sync cycles by outcome",
		}, []string{"result"}),
		AppliedCommands: factory.NewGauge(prometheus.GaugeOpts{
			Name: "palisade_applied_commands",
			Help: "Number of commands in the last applied batch",
		}),
		Guests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "palisade_guests",
			Help: "Firewall-enabled guests on this node",
		}),
		LastApplied: factory.NewGauge(prometheus.GaugeOpts{
			Name: "palisade_last_applied_timestamp_seconds",
			Help: "Unix time of the last successfully applied batch",
		}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve runs the metrics endpoint on addr until ctx is cancelled.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	server := &http.Server{Addr: addr, Handler: mux}

	done := make(chan error, 1)
	go func() {
		done <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		return nil
	case err := <-done:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
