package capacity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/partycluster/fleetcontroller/internal/capacity"
	"github.com/partycluster/fleetcontroller/internal/clusterapi"
	"github.com/partycluster/fleetcontroller/internal/config"
)

func readyWithUsers(n int) []clusterapi.ClusterRecord {
	out := make([]clusterapi.ClusterRecord, n)
	for i := range out {
		out[i] = clusterapi.ClusterRecord{
			ID:        "c",
			Status:    clusterapi.StatusReady,
			CreatedOn: clusterapi.MaxTime,
		}
	}
	return out
}

func withUsers(rec clusterapi.ClusterRecord, n int) clusterapi.ClusterRecord {
	for i := 0; i < n; i++ {
		rec.Users = append(rec.Users, clusterapi.User{Name: "u", Port: i})
	}
	return rec
}

func TestComputeTarget_EmptyFleetReturnsMinimum(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, cfg.MinimumClusterCount, capacity.ComputeTarget(nil, cfg))
}

func TestComputeTarget_UpscaleByLoad(t *testing.T) {
	// Boundary scenario 5: 10 Ready clusters, each holding ceil(10*0.75)=8
	// users -> target = 10 + ceil(10*0.25) = 13.
	cfg := config.Default()
	fleet := readyWithUsers(cfg.MinimumClusterCount)
	for i := range fleet {
		fleet[i] = withUsers(fleet[i], 8)
	}
	assert.Equal(t, 13, capacity.ComputeTarget(fleet, cfg))
}

func TestComputeTarget_MidRangeHoldsSteady(t *testing.T) {
	cfg := config.Default()
	fleet := readyWithUsers(20)
	for i := range fleet[:20] {
		// 5 users per cluster of 10 capacity = 0.5 utilization, between
		// 0.25 and 0.75.
		fleet[i] = withUsers(fleet[i], 5)
	}
	assert.Equal(t, 20, capacity.ComputeTarget(fleet, cfg))
}

func TestComputeTarget_DownscaleClampsToMinimum(t *testing.T) {
	cfg := config.Default()
	fleet := readyWithUsers(15) // all empty, f = 0 <= low threshold; 15 - floor(15*0.5) = 8 < Minimum
	assert.Equal(t, cfg.MinimumClusterCount, capacity.ComputeTarget(fleet, cfg))
}

func TestComputeTarget_UpscaleClampsToMaximum(t *testing.T) {
	cfg := config.Default()
	fleet := readyWithUsers(cfg.MaximumClusterCount)
	for i := range fleet {
		fleet[i] = withUsers(fleet[i], cfg.MaximumUsersPerCluster) // f = 1.0
	}
	assert.Equal(t, cfg.MaximumClusterCount, capacity.ComputeTarget(fleet, cfg))
}

func TestComputeTarget_NumeratorIncludesRemoveAndDeletingUsers(t *testing.T) {
	// Open question spec.md §9.1: the numerator sums users across the
	// *entire* mapping, including Remove/Deleting records, while the
	// denominator is capacity of the active set only. A Remove record
	// carrying users should still be able to push utilization over the
	// high threshold even though it doesn't contribute to the denominator.
	cfg := config.Default()
	fleet := readyWithUsers(cfg.MinimumClusterCount) // all active, all empty
	removed := clusterapi.ClusterRecord{
		ID:        "removed",
		Status:    clusterapi.StatusRemove,
		CreatedOn: clusterapi.MaxTime,
		Users:     make([]clusterapi.User, cfg.MinimumClusterCount*cfg.MaximumUsersPerCluster),
	}
	fleet = append(fleet, removed)

	target := capacity.ComputeTarget(fleet, cfg)
	assert.Greater(t, target, cfg.MinimumClusterCount, "users stranded on a Remove record should still count toward the numerator")
}
