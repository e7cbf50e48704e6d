// Package admission implements the Join transaction (spec.md §4.5): select a
// free port on a Ready, non-expiring cluster and append a user. Port
// selection is grounded on the teacher's pkg/scheduling host-port
// bookkeeping (reserved vs. available ports on a node), generalized here to
// reserved vs. available ports on a cluster.
package admission

import (
	"context"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/partycluster/fleetcontroller/internal/clusterapi"
	"github.com/partycluster/fleetcontroller/internal/config"
	"github.com/partycluster/fleetcontroller/internal/ferrors"
	"github.com/partycluster/fleetcontroller/internal/obs"
	"github.com/partycluster/fleetcontroller/internal/store"
)

// Notifier is the external notification sink (spec.md §1, out of scope):
// the engine calls it after a successful commit and never blocks admission
// on its result.
type Notifier interface {
	Notify(ctx context.Context, clusterID string, user clusterapi.User)
}

// NoopNotifier discards every notification; New installs it as the
// Handler's default.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, string, clusterapi.User) {}

// Handler implements the Join operation.
type Handler struct {
	Store    store.Store
	Config   config.Config
	Clock    clock.Clock
	Notifier Notifier
}

// New builds a Handler with a NoopNotifier; set Handler.Notifier afterward
// to wire a real outbound notification.
func New(st store.Store, cfg config.Config, clk clock.Clock) *Handler {
	return &Handler{Store: st, Config: cfg, Clock: clk, Notifier: NoopNotifier{}}
}

// Join runs the admission transaction of spec.md §4.5.
func (h *Handler) Join(ctx context.Context, username, clusterID string) (clusterapi.User, error) {
	username = strings.TrimSpace(username)
	clusterID = strings.TrimSpace(clusterID)
	if username == "" || clusterID == "" {
		err := ferrors.New(ferrors.InvalidArgument, "username and clusterId must be non-empty")
		h.recordReject(err)
		return clusterapi.User{}, err
	}

	dict, err := h.Store.GetOrCreate(ctx, store.DictionaryName)
	if err != nil {
		wrapped := ferrors.Wrap(ferrors.StoreFailure, "open cluster dictionary", err)
		h.recordReject(wrapped)
		return clusterapi.User{}, wrapped
	}
	tx, err := h.Store.BeginTransaction(ctx)
	if err != nil {
		wrapped := ferrors.Wrap(ferrors.StoreFailure, "begin join transaction", err)
		h.recordReject(wrapped)
		return clusterapi.User{}, wrapped
	}

	user, rec, err := h.joinInTx(ctx, dict, tx, username, clusterID)
	if err != nil {
		_ = tx.Abort(ctx)
		h.recordReject(err)
		return clusterapi.User{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		wrapped := ferrors.Wrap(ferrors.StoreFailure, "commit join transaction", err)
		h.recordReject(wrapped)
		return clusterapi.User{}, wrapped
	}

	obs.JoinsTotal.Inc()
	obs.FromContext(ctx).V(1).Info("user joined cluster",
		"cluster_id", clusterID, "username", username, "port", user.Port,
		"users", obs.Slice(rec.Users, 5))
	h.Notifier.Notify(ctx, clusterID, user)
	return user, nil
}

func (h *Handler) joinInTx(ctx context.Context, dict store.Dictionary, tx store.Transaction, username, clusterID string) (clusterapi.User, clusterapi.ClusterRecord, error) {
	rec, ok, err := dict.TryGet(ctx, tx, clusterID, store.LockUpdate)
	if err != nil {
		return clusterapi.User{}, clusterapi.ClusterRecord{}, ferrors.Wrap(ferrors.StoreFailure, "lock cluster", err)
	}
	if !ok {
		return clusterapi.User{}, clusterapi.ClusterRecord{}, ferrors.New(ferrors.NotFound, "cluster not found")
	}
	if rec.Status != clusterapi.StatusReady {
		return clusterapi.User{}, clusterapi.ClusterRecord{}, ferrors.New(ferrors.NotJoinable, "cluster is not ready")
	}
	if h.Clock.Now().Sub(rec.CreatedOn) > h.Config.MaxClusterUptime-config.JoinExpiryGuard {
		return clusterapi.User{}, clusterapi.ClusterRecord{}, ferrors.New(ferrors.NotJoinable, "cluster is expiring soon")
	}

	port, ok := firstFreePort(rec)
	if !ok {
		return clusterapi.User{}, clusterapi.ClusterRecord{}, ferrors.New(ferrors.NoCapacity, "no free port on cluster")
	}

	user := clusterapi.User{Name: username, Port: port}
	rec.Users = append(rec.Users, user)
	if err := dict.Set(ctx, tx, clusterID, rec); err != nil {
		return clusterapi.User{}, clusterapi.ClusterRecord{}, ferrors.Wrap(ferrors.StoreFailure, "write joined cluster", err)
	}
	return user, rec, nil
}

// firstFreePort returns the first port in rec.Ports (in order) not already
// claimed by a user, mirroring the teacher's reserved-vs-available host port
// bookkeeping.
func firstFreePort(rec clusterapi.ClusterRecord) (int, bool) {
	used := sets.New[int]()
	for _, u := range rec.Users {
		used.Insert(u.Port)
	}
	for _, p := range rec.Ports {
		if !used.Has(p) {
			return p, true
		}
	}
	return 0, false
}

func (h *Handler) recordReject(err error) {
	var kind ferrors.Kind = "unknown"
	if fe, ok := asFerror(err); ok {
		kind = fe.Kind
	}
	obs.JoinErrorsTotal.WithLabelValues(string(kind)).Inc()
}

func asFerror(err error) (*ferrors.Error, bool) {
	fe, ok := err.(*ferrors.Error)
	return fe, ok
}
