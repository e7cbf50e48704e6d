// Package query implements the read-only projections consumed by the edge
// (spec.md §4.6). ListClusters is a short-TTL cached view over the store so
// a burst of edge polling doesn't force a full enumeration per request;
// grounded on the teacher's use of patrickmn/go-cache for the same
// short-lived-snapshot role in its settings layer.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"k8s.io/utils/clock"

	"github.com/partycluster/fleetcontroller/internal/clusterapi"
	"github.com/partycluster/fleetcontroller/internal/ferrors"
	"github.com/partycluster/fleetcontroller/internal/store"
)

// ClusterView is the user-facing projection of one Ready cluster
// (spec.md §4.6).
type ClusterView struct {
	Name         string
	AppCount     int
	ServiceCount int
	Uptime       time.Duration
	UserCount    int
}

// ClusterStatusView is the operator-facing supplement (SPEC_FULL.md): every
// cluster regardless of status, for operability rather than end-user display.
type ClusterStatusView struct {
	ID     string
	Status clusterapi.Status
	Users  int
}

const cacheKey = "ready-clusters"

// Handler implements ListClusters/ListClustersDetailed.
type Handler struct {
	Store store.Store
	Clock clock.Clock
	cache *cache.Cache
}

// New builds a Handler whose cache entries expire after ttl (the teacher's
// settings cache defaults similarly to a short fixed TTL with no sliding
// expiration).
func New(st store.Store, clk clock.Clock, ttl time.Duration) *Handler {
	return &Handler{Store: st, Clock: clk, cache: cache.New(ttl, 2*ttl)}
}

// ListClusters returns the Ready-cluster view of spec.md §4.6, in the
// store's enumeration order.
func (h *Handler) ListClusters(ctx context.Context) ([]ClusterView, error) {
	if cached, ok := h.cache.Get(cacheKey); ok {
		return cached.([]ClusterView), nil
	}

	fleet, err := h.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	now := h.Clock.Now()
	views := make([]ClusterView, 0, len(fleet))
	for _, rec := range fleet {
		if rec.Status != clusterapi.StatusReady {
			continue
		}
		views = append(views, ClusterView{
			Name:         fmt.Sprintf("Party Cluster %s", rec.ID),
			AppCount:     rec.AppCount,
			ServiceCount: rec.ServiceCount,
			Uptime:       now.Sub(rec.CreatedOn),
			UserCount:    len(rec.Users),
		})
	}

	h.cache.SetDefault(cacheKey, views)
	return views, nil
}

// ListClustersDetailed returns every cluster with its raw status, bypassing
// the Ready-only cache (operators need to see New/Creating/Remove/Deleting
// clusters too).
func (h *Handler) ListClustersDetailed(ctx context.Context) ([]ClusterStatusView, error) {
	fleet, err := h.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ClusterStatusView, 0, len(fleet))
	for _, rec := range fleet {
		views = append(views, ClusterStatusView{ID: rec.ID, Status: rec.Status, Users: len(rec.Users)})
	}
	return views, nil
}

func (h *Handler) snapshot(ctx context.Context) ([]clusterapi.ClusterRecord, error) {
	dict, err := h.Store.GetOrCreate(ctx, store.DictionaryName)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.StoreFailure, "open cluster dictionary", err)
	}
	fleet, err := dict.Enumerate(ctx)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.StoreFailure, "enumerate fleet", err)
	}
	return fleet, nil
}
