// Package reconciler implements the periodic three-phase driver (spec.md
// §4.4): advance every record, compute target, balance toward target.
// Grounded on the teacher's controller Reconcile/requeue pattern, adapted to
// a free-standing ticker loop since there is no controller-runtime manager
// in this domain (see DESIGN.md). Tick scheduling reuses the teacher's
// robfig/cron/v3 dependency via cron.Every's constant-delay schedule rather
// than a crontab expression.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"k8s.io/utils/clock"

	"github.com/partycluster/fleetcontroller/internal/balancer"
	"github.com/partycluster/fleetcontroller/internal/capacity"
	"github.com/partycluster/fleetcontroller/internal/clusterapi"
	"github.com/partycluster/fleetcontroller/internal/config"
	"github.com/partycluster/fleetcontroller/internal/ferrors"
	"github.com/partycluster/fleetcontroller/internal/lifecycle"
	"github.com/partycluster/fleetcontroller/internal/obs"
	"github.com/partycluster/fleetcontroller/internal/provisioner"
	"github.com/partycluster/fleetcontroller/internal/store"
)

// Reconciler drives the reconciler loop of spec.md §4.4 and §5.
type Reconciler struct {
	Store       store.Store
	Provisioner provisioner.Provisioner
	Config      config.Config
	Clock       clock.Clock

	mu      sync.Mutex
	lastErr error
}

// New builds a Reconciler. clk may be a clock.FakeClock in tests; production
// callers pass clock.RealClock{}.
func New(st store.Store, prov provisioner.Provisioner, cfg config.Config, clk clock.Clock) *Reconciler {
	return &Reconciler{Store: st, Provisioner: prov, Config: cfg, Clock: clk}
}

// LastError returns the error (possibly a multierr aggregate, possibly nil)
// surfaced by the most recently completed tick. It never stops the loop;
// it only lets an operator or health check observe reconciler health
// (spec.md §7's "observed but do not stop the loop").
func (r *Reconciler) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *Reconciler) setLastError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = err
}

// Run blocks, ticking every r.Config.RefreshInterval until ctx is cancelled.
// Cancellation is respected between phases and during the inter-tick sleep
// (spec.md §5); an in-flight tick is allowed to finish rather than being torn
// down mid-transaction.
func (r *Reconciler) Run(ctx context.Context) error {
	c := cron.New()
	c.Schedule(cron.Every(r.Config.RefreshInterval), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		_ = r.Tick(ctx)
	}))
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return ctx.Err()
}

// Tick runs one full reconciler pass: advance-all, compute-target, balance.
// It is exported directly (rather than only reachable through Run) so tests
// can drive deterministic single ticks against a fake clock and provisioner.
func (r *Reconciler) Tick(ctx context.Context) error {
	start := r.Clock.Now()
	var errs error

	if err := r.advanceAll(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if ctx.Err() != nil {
		r.finish(start, multierr.Append(errs, ctx.Err()))
		return multierr.Append(errs, ctx.Err())
	}

	fleet, err := r.snapshot(ctx)
	if err != nil {
		errs = multierr.Append(errs, err)
	} else {
		target := capacity.ComputeTarget(fleet, r.Config)
		if err := balancer.Balance(ctx, r.Store, target, r.Config); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	r.finish(start, errs)
	return errs
}

func (r *Reconciler) finish(start time.Time, errs error) {
	obs.ReconcileDuration.Observe(r.Clock.Now().Sub(start).Seconds())
	if errs != nil {
		obs.ReconcileErrorsTotal.Inc()
	}
	r.setLastError(errs)
	r.refreshGauges()
}

func (r *Reconciler) refreshGauges() {
	fleet, err := r.snapshot(context.Background())
	if err != nil {
		return
	}
	byStatus := map[string]int{}
	active := 0
	for _, rec := range fleet {
		byStatus[rec.Status.String()]++
		if rec.Status.Active() {
			active++
		}
	}
	obs.ClustersActiveGauge.Set(float64(active))
	for _, s := range []clusterapi.Status{
		clusterapi.StatusNew, clusterapi.StatusCreating, clusterapi.StatusReady,
		clusterapi.StatusRemove, clusterapi.StatusDeleting,
	} {
		obs.ClustersByStatusGauge.WithLabelValues(s.String()).Set(float64(byStatus[s.String()]))
	}
}

func (r *Reconciler) snapshot(ctx context.Context) ([]clusterapi.ClusterRecord, error) {
	dict, err := r.Store.GetOrCreate(ctx, store.DictionaryName)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.StoreFailure, "open cluster dictionary", err)
	}
	fleet, err := dict.Enumerate(ctx)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.StoreFailure, "enumerate fleet", err)
	}
	return fleet, nil
}

// advanceAll runs lifecycle.Advance over every record in one transaction,
// as spec.md §4.4 step 1 requires: a Deleted outcome removes the record, any
// other outcome is written back, and the whole pass commits once at the end.
func (r *Reconciler) advanceAll(ctx context.Context) error {
	dict, err := r.Store.GetOrCreate(ctx, store.DictionaryName)
	if err != nil {
		return ferrors.Wrap(ferrors.StoreFailure, "open cluster dictionary", err)
	}
	fleet, err := dict.Enumerate(ctx)
	if err != nil {
		return ferrors.Wrap(ferrors.StoreFailure, "enumerate fleet", err)
	}

	tx, err := r.Store.BeginTransaction(ctx)
	if err != nil {
		return ferrors.Wrap(ferrors.StoreFailure, "begin advance transaction", err)
	}

	var errs error
	now := r.Clock.Now()
	for _, rec := range fleet {
		if ctx.Err() != nil {
			break
		}
		current, ok, err := dict.TryGet(ctx, tx, rec.ID, store.LockUpdate)
		if err != nil {
			errs = multierr.Append(errs, ferrors.Wrap(ferrors.StoreFailure, "lock cluster for advance", err))
			continue
		}
		if !ok {
			continue
		}
		next, err := lifecycle.Advance(ctx, current, now, r.Provisioner, r.Config)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if next.Status == clusterapi.StatusDeleted {
			if _, err := dict.TryRemove(ctx, tx, current.ID); err != nil {
				errs = multierr.Append(errs, ferrors.Wrap(ferrors.StoreFailure, "remove deleted cluster", err))
			}
			continue
		}
		if err := dict.Set(ctx, tx, current.ID, next); err != nil {
			errs = multierr.Append(errs, ferrors.Wrap(ferrors.StoreFailure, "write advanced cluster", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return multierr.Append(errs, ferrors.Wrap(ferrors.StoreFailure, "commit advance transaction", err))
	}
	return errs
}
