// Package capacity implements the capacity planner (spec.md §4.2): a pure
// function from a fleet snapshot and policy config to an integer target
// active-cluster count. Grounded on the teacher's deprovisioning/disruption
// target-count arithmetic, generalized from node resource utilization to
// per-cluster user-capacity utilization.
package capacity

import (
	"math"

	"github.com/partycluster/fleetcontroller/internal/clusterapi"
	"github.com/partycluster/fleetcontroller/internal/config"
)

// ComputeTarget returns the target active-cluster count for fleet under cfg.
//
// The numerator U sums users across every record in fleet, including ones
// flagged Remove or already Deleting, not just the active set; this matches
// the source behaviour spec.md §9.1 calls out as a latent, test-relied-upon
// quirk: it is preserved here deliberately, not by oversight.
func ComputeTarget(fleet []clusterapi.ClusterRecord, cfg config.Config) int {
	var n, u int
	for _, rec := range fleet {
		u += len(rec.Users)
		if rec.Status.Active() {
			n++
		}
	}

	c := n * cfg.MaximumUsersPerCluster
	var f float64
	if c > 0 {
		f = float64(u) / float64(c)
	}

	switch {
	case f >= cfg.UserCapacityHighPercentThreshold:
		grow := int(math.Ceil(float64(n) * (1 - cfg.UserCapacityHighPercentThreshold)))
		return clamp(n+grow, cfg.MinimumClusterCount, cfg.MaximumClusterCount)
	case f <= cfg.UserCapacityLowPercentThreshold:
		shrink := int(math.Floor(float64(n) * (cfg.UserCapacityHighPercentThreshold - cfg.UserCapacityLowPercentThreshold)))
		return clampLow(n-shrink, cfg.MinimumClusterCount)
	default:
		return n
	}
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

func clampLow(v, lo int) int {
	if v < lo {
		return lo
	}
	return v
}
