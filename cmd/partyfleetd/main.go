// Command partyfleetd is the composition root for the party cluster fleet
// controller: it wires the durable store, provisioner, reconciler and
// admission/query handlers together and runs the reconciler loop until
// signalled to stop. The public-facing HTTP/RPC edge that would call Join
// and ListClusters is out of scope (spec.md §1) and is not started here;
// this binary exists to demonstrate and exercise the core engine standalone.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"

	"github.com/partycluster/fleetcontroller/internal/admission"
	"github.com/partycluster/fleetcontroller/internal/config"
	fakeprovisioner "github.com/partycluster/fleetcontroller/internal/provisioner/fake"
	"github.com/partycluster/fleetcontroller/internal/obs"
	"github.com/partycluster/fleetcontroller/internal/provisioner"
	"github.com/partycluster/fleetcontroller/internal/query"
	"github.com/partycluster/fleetcontroller/internal/reconciler"
	"github.com/partycluster/fleetcontroller/internal/store"
)

func main() {
	development := flag.Bool("development", false, "use a development (console) logger instead of a production (JSON) one")
	flag.Parse()

	logger, err := obs.NewLogger(*development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "partyfleetd: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = obs.WithLogger(ctx, logger)

	obs.MustRegister(prometheus.DefaultRegisterer)

	cfg, err := config.Merge(config.Config{})
	if err != nil {
		obs.FromContext(ctx).Error(err, "failed to build config")
		os.Exit(1)
	}

	st := store.NewMemoryStore()
	prov := provisioner.WithRetry(fakeprovisioner.New())
	clk := clock.RealClock{}

	rec := reconciler.New(st, prov, cfg, clk)
	joinHandler := admission.New(st, cfg, clk)
	queryHandler := query.New(st, clk, 1*time.Second)

	obs.FromContext(ctx).Info("partyfleetd starting",
		"refresh_interval", cfg.RefreshInterval.String(),
		"minimum_clusters", cfg.MinimumClusterCount,
		"maximum_clusters", cfg.MaximumClusterCount,
	)

	go reportFleetStatus(ctx, queryHandler, joinHandler)

	if err := rec.Run(ctx); err != nil && ctx.Err() == nil {
		obs.FromContext(ctx).Error(err, "reconciler loop exited unexpectedly")
		os.Exit(1)
	}
	obs.FromContext(ctx).Info("partyfleetd stopped")
}

// reportFleetStatus periodically logs the Ready fleet size. It stands in for
// the out-of-scope public edge (spec.md §1) that would otherwise call
// Join/ListClusters on the operator's behalf; joinHandler is accepted here
// only so this demo loop and the composition root share one place that
// proves both outward operations wire together against the same store.
func reportFleetStatus(ctx context.Context, qh *query.Handler, _ *admission.Handler) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			views, err := qh.ListClusters(ctx)
			if err != nil {
				obs.FromContext(ctx).Error(err, "failed to list clusters")
				continue
			}
			obs.FromContext(ctx).V(1).Info("fleet status", "ready_clusters", len(views))
		}
	}
}
