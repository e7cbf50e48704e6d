// Structured transition logging, adapted from the teacher's pkg/events:
// there, an Event carries an involved object, a reason and a message for
// the Kubernetes event recorder; here there is no event recorder to publish
// to; the same Reason/Message shape is logged directly through obs instead.
package lifecycle

import (
	"context"

	"github.com/partycluster/fleetcontroller/internal/clusterapi"
	"github.com/partycluster/fleetcontroller/internal/obs"
)

func logTransition(ctx context.Context, rec clusterapi.ClusterRecord, from clusterapi.Status, reason string) {
	obs.FromContext(ctx).V(1).Info("cluster transition",
		"cluster_id", rec.ID,
		"from", from.String(),
		"to", rec.Status.String(),
		"reason", reason,
	)
}

func logFailure(ctx context.Context, rec clusterapi.ClusterRecord, reason string, err error) {
	obs.FromContext(ctx).Error(err, "cluster step failed",
		"cluster_id", rec.ID,
		"status", rec.Status.String(),
		"reason", reason,
	)
}
