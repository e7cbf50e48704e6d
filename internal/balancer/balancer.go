// Package balancer implements the fleet balancer (spec.md §4.3): a single
// store transaction that reshapes the fleet toward a target active-cluster
// count, inserting New records or flagging empty surplus ones for removal.
// Grounded on the teacher's deprovisioning candidate-selection pattern
// (filter, sort, shortlist) and provisioning's launch batching, generalized
// from node candidates to ClusterRecord candidates.
package balancer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/partycluster/fleetcontroller/internal/clusterapi"
	"github.com/partycluster/fleetcontroller/internal/config"
	"github.com/partycluster/fleetcontroller/internal/ferrors"
	"github.com/partycluster/fleetcontroller/internal/obs"
	"github.com/partycluster/fleetcontroller/internal/store"
)

// Balance runs one balancing pass: it clamps target to [Minimum, Maximum],
// inserts fresh New records if the active set is short, and flags empty
// active records Remove if the active set is over target — never flagging a
// record with users, and never dropping the active count below Minimum.
func Balance(ctx context.Context, st store.Store, target int, cfg config.Config) error {
	target = clamp(target, cfg.MinimumClusterCount, cfg.MaximumClusterCount)

	dict, err := st.GetOrCreate(ctx, store.DictionaryName)
	if err != nil {
		return ferrors.Wrap(ferrors.StoreFailure, "open cluster dictionary", err)
	}
	tx, err := st.BeginTransaction(ctx)
	if err != nil {
		return ferrors.Wrap(ferrors.StoreFailure, "begin balance transaction", err)
	}

	if err := balanceInTx(ctx, dict, tx, target, cfg); err != nil {
		_ = tx.Abort(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return ferrors.Wrap(ferrors.StoreFailure, "commit balance transaction", err)
	}
	return nil
}

func balanceInTx(ctx context.Context, dict store.Dictionary, tx store.Transaction, target int, cfg config.Config) error {
	fleet, err := dict.Enumerate(ctx)
	if err != nil {
		return ferrors.Wrap(ferrors.StoreFailure, "enumerate fleet", err)
	}

	active := lo.Filter(fleet, func(r clusterapi.ClusterRecord, _ int) bool { return r.Status.Active() })

	switch {
	case len(active) < target:
		return insertNew(ctx, dict, tx, target-len(active))
	case len(active) > target:
		removable := len(active) - cfg.MinimumClusterCount
		wanted := len(active) - target
		n := removable
		if wanted < n {
			n = wanted
		}
		if n <= 0 {
			return nil
		}
		return flagRemove(ctx, dict, tx, active, n)
	default:
		return nil
	}
}

func insertNew(ctx context.Context, dict store.Dictionary, tx store.Transaction, count int) error {
	for i := 0; i < count; i++ {
		id := uuid.NewString()
		rec := clusterapi.ClusterRecord{
			ID:        id,
			Status:    clusterapi.StatusNew,
			CreatedOn: clusterapi.MaxTime,
		}
		if err := dict.Add(ctx, tx, id, rec); err != nil {
			return ferrors.Wrap(ferrors.StoreFailure, fmt.Sprintf("insert new cluster %s", id), err)
		}
	}
	obs.FromContext(ctx).V(1).Info("balancer inserted clusters", "count", count)
	return nil
}

// flagRemove marks the first n zero-user active records Remove, in the
// fleet's enumeration order (spec.md §4.3 step 3 leaves the exact order
// implementation-defined as long as it is deterministic).
func flagRemove(ctx context.Context, dict store.Dictionary, tx store.Transaction, active []clusterapi.ClusterRecord, n int) error {
	flagged := 0
	for _, rec := range active {
		if flagged >= n {
			break
		}
		if len(rec.Users) != 0 {
			continue
		}
		current, ok, err := dict.TryGet(ctx, tx, rec.ID, store.LockUpdate)
		if err != nil {
			return ferrors.Wrap(ferrors.StoreFailure, fmt.Sprintf("lock cluster %s", rec.ID), err)
		}
		if !ok || !current.Status.Active() || len(current.Users) != 0 {
			// Raced with a concurrent join or reconcile; skip, the next
			// tick will reconsider.
			continue
		}
		current.Status = clusterapi.StatusRemove
		if err := dict.Set(ctx, tx, current.ID, current); err != nil {
			return ferrors.Wrap(ferrors.StoreFailure, fmt.Sprintf("flag cluster %s for removal", current.ID), err)
		}
		flagged++
	}
	obs.FromContext(ctx).V(1).Info("balancer flagged clusters for removal", "count", flagged, "requested", n)
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
