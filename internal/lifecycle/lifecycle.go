// Package lifecycle implements the per-record cluster state machine
// (spec.md §4.1), grounded on the teacher's pkg/controllers/nodeclaim/lifecycle
// and pkg/controllers/machine sub-reconcilers: one function per transition
// family, dispatched from a single entry point keyed on the record's current
// status. The machine is driven entirely by the provisioner's observed
// status, never by local assumptions, so replaying Advance after a crash
// converges to the provisioner's truth.
package lifecycle

import (
	"context"
	"time"

	"github.com/partycluster/fleetcontroller/internal/clusterapi"
	"github.com/partycluster/fleetcontroller/internal/config"
	"github.com/partycluster/fleetcontroller/internal/ferrors"
	"github.com/partycluster/fleetcontroller/internal/provisioner"
)

// Advance steps rec by one increment given the current wall time, the
// provisioner client and policy config. It returns the next record value;
// the caller is responsible for writing it back (or removing the record, if
// the returned status is StatusDeleted) within the enclosing transaction.
//
// Advance never mutates rec in place; the input is treated as an immutable
// snapshot, matching the store's ownership model (spec.md §3).
func Advance(ctx context.Context, rec clusterapi.ClusterRecord, now time.Time, prov provisioner.Provisioner, cfg config.Config) (clusterapi.ClusterRecord, error) {
	next := rec.Clone()
	from := rec.Status

	var err error
	switch rec.Status {
	case clusterapi.StatusNew:
		next, err = stepNew(ctx, next, prov)
	case clusterapi.StatusCreating:
		next, err = stepCreating(ctx, next, now, prov)
	case clusterapi.StatusReady:
		next, err = stepReady(ctx, next, now, prov, cfg)
	case clusterapi.StatusRemove:
		next, err = stepRemove(ctx, next, prov)
	case clusterapi.StatusDeleting:
		next, err = stepDeleting(ctx, next, prov)
	case clusterapi.StatusDeleted:
		// Terminal; nothing to do. The reconciler removes records that
		// reach this status instead of calling Advance on them again.
	}

	if err != nil {
		logFailure(ctx, rec, "advance", err)
		return rec, err
	}
	if next.Status != from {
		logTransition(ctx, next, from, "advance")
	}
	return next, nil
}

func stepNew(ctx context.Context, rec clusterapi.ClusterRecord, prov provisioner.Provisioner) (clusterapi.ClusterRecord, error) {
	name := newClusterName()
	address, err := prov.Create(ctx, name)
	if err != nil {
		return rec, ferrors.Wrap(ferrors.ProvisionerFailure, "create cluster", err)
	}
	rec.Address = address
	rec.Status = clusterapi.StatusCreating
	return rec, nil
}

func stepCreating(ctx context.Context, rec clusterapi.ClusterRecord, now time.Time, prov provisioner.Provisioner) (clusterapi.ClusterRecord, error) {
	status, err := prov.Status(ctx, rec.Address)
	if err != nil {
		return rec, ferrors.Wrap(ferrors.ProvisionerFailure, "poll creating cluster", err)
	}
	switch status {
	case provisioner.StatusCreating:
		// stays Creating
	case provisioner.StatusReady:
		ports, err := prov.Ports(ctx, rec.Address)
		if err != nil {
			return rec, ferrors.Wrap(ferrors.ProvisionerFailure, "fetch ports", err)
		}
		rec.Ports = ports
		rec.CreatedOn = now
		rec.Status = clusterapi.StatusReady
	case provisioner.StatusCreateFailed:
		// Revert to New for a fresh attempt. Per DESIGN.md (open question
		// 2), Address is cleared here so the retry regenerates a name
		// instead of reusing a handle the provisioner already rejected.
		rec.Address = ""
		rec.Status = clusterapi.StatusNew
	case provisioner.StatusDeleting:
		rec.Status = clusterapi.StatusDeleting
	}
	return rec, nil
}

func stepReady(ctx context.Context, rec clusterapi.ClusterRecord, now time.Time, prov provisioner.Provisioner, cfg config.Config) (clusterapi.ClusterRecord, error) {
	// Tie-break (spec.md §4.1): when a Ready cluster both expires by
	// uptime and is independently observed Deleting, the expiry action
	// runs first; either way the record ends in Deleting.
	if now.Sub(rec.CreatedOn) >= cfg.MaxClusterUptime {
		if err := prov.Delete(ctx, rec.Address); err != nil {
			return rec, ferrors.Wrap(ferrors.ProvisionerFailure, "delete expired cluster", err)
		}
		rec.Status = clusterapi.StatusDeleting
		return rec, nil
	}

	status, err := prov.Status(ctx, rec.Address)
	if err != nil {
		return rec, ferrors.Wrap(ferrors.ProvisionerFailure, "poll ready cluster", err)
	}
	if status == provisioner.StatusDeleting {
		rec.Status = clusterapi.StatusDeleting
		return rec, nil
	}
	// The app/service counter refresh is optional and observational
	// (spec.md §9.4); it has no bearing on lifecycle decisions, so a
	// reference implementation is free to skip it entirely.
	return rec, nil
}

func stepRemove(ctx context.Context, rec clusterapi.ClusterRecord, prov provisioner.Provisioner) (clusterapi.ClusterRecord, error) {
	status, err := prov.Status(ctx, rec.Address)
	if err != nil {
		return rec, ferrors.Wrap(ferrors.ProvisionerFailure, "poll cluster flagged for removal", err)
	}
	switch status {
	case provisioner.StatusCreating, provisioner.StatusReady, provisioner.StatusCreateFailed, provisioner.StatusDeleteFailed:
		if err := prov.Delete(ctx, rec.Address); err != nil {
			return rec, ferrors.Wrap(ferrors.ProvisionerFailure, "delete removed cluster", err)
		}
		rec.Status = clusterapi.StatusDeleting
	case provisioner.StatusDeleting:
		rec.Status = clusterapi.StatusDeleting
	case provisioner.StatusClusterNotFound:
		// Not in the spec's transition table, which assumes a Remove
		// record always still has something to tear down; a provisioner
		// that has already forgotten the cluster leaves nothing further
		// to delete, so treat it the same as Deleting observing
		// ClusterNotFound.
		rec.Status = clusterapi.StatusDeleted
	}
	return rec, nil
}

func stepDeleting(ctx context.Context, rec clusterapi.ClusterRecord, prov provisioner.Provisioner) (clusterapi.ClusterRecord, error) {
	status, err := prov.Status(ctx, rec.Address)
	if err != nil {
		return rec, ferrors.Wrap(ferrors.ProvisionerFailure, "poll deleting cluster", err)
	}
	switch status {
	case provisioner.StatusCreating, provisioner.StatusReady:
		// Idempotent retry: the delete call may have been lost, so issue
		// it again.
		if err := prov.Delete(ctx, rec.Address); err != nil {
			return rec, ferrors.Wrap(ferrors.ProvisionerFailure, "retry delete", err)
		}
		rec.Status = clusterapi.StatusDeleting
	case provisioner.StatusDeleting:
		// stays Deleting
	case provisioner.StatusClusterNotFound:
		rec.Status = clusterapi.StatusDeleted
	case provisioner.StatusCreateFailed, provisioner.StatusDeleteFailed:
		// Per DESIGN.md (open question 3), adopt the explicit retry-via-
		// Remove transition rather than leaving this a no-op.
		rec.Status = clusterapi.StatusRemove
	}
	return rec, nil
}
