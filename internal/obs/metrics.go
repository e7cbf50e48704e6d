// Metrics registered here are internal observability only, consulted by
// nothing inside the engine's decision logic — spec.md's "does not provide
// historical metrics" non-goal governs the outward query surface
// (query.Handler.ListClusters), not this ambient instrumentation, the same
// way the teacher instruments controllers that have no outward metrics API
// of their own. Naming mirrors the teacher's pkg/metrics layout
// (Namespace/Subsystem/label constants feeding prometheus.*Vec).
package obs

import "github.com/prometheus/client_golang/prometheus"

const (
	// Namespace is the Prometheus namespace prefix for every metric below.
	Namespace = "partyfleet"

	clusterSubsystem   = "clusters"
	admissionSubsystem = "admission"
	reconcilerSubsystem = "reconciler"

	StatusLabel = "status"
	KindLabel   = "kind"
)

var (
	// ClustersActiveGauge tracks the current active-cluster count (New +
	// Creating + Ready), the quantity the planner and balancer both reason
	// about.
	ClustersActiveGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: clusterSubsystem,
		Name:      "active",
		Help:      "Number of clusters currently in an active lifecycle state (New, Creating, Ready).",
	})

	// ClustersByStatusGauge is labeled per lifecycle status so an operator
	// can see the full fleet shape, not just the active total.
	ClustersByStatusGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: clusterSubsystem,
		Name:      "by_status",
		Help:      "Number of clusters in each lifecycle status.",
	}, []string{StatusLabel})

	// JoinsTotal counts successful admissions.
	JoinsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: admissionSubsystem,
		Name:      "joins_total",
		Help:      "Number of users successfully admitted onto a cluster.",
	})

	// JoinErrorsTotal counts rejected admissions, labeled by error kind.
	JoinErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: admissionSubsystem,
		Name:      "join_errors_total",
		Help:      "Number of rejected Join calls, labeled by error kind.",
	}, []string{KindLabel})

	// ReconcileDuration observes the wall-clock cost of a full tick
	// (advance + compute-target + balance).
	ReconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: reconcilerSubsystem,
		Name:      "tick_duration_seconds",
		Help:      "Duration of a full reconciler tick.",
		Buckets:   prometheus.DefBuckets,
	})

	// ReconcileErrorsTotal counts ticks that surfaced at least one error
	// from any phase.
	ReconcileErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: reconcilerSubsystem,
		Name:      "errors_total",
		Help:      "Number of reconciler ticks that surfaced one or more errors.",
	})
)

// MustRegister registers every metric above against reg. Call once at
// process startup (cmd/partyfleetd); tests that don't care about metrics
// never need to call it, since prometheus collectors are safe to construct
// but unregistered.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		ClustersActiveGauge,
		ClustersByStatusGauge,
		JoinsTotal,
		JoinErrorsTotal,
		ReconcileDuration,
		ReconcileErrorsTotal,
	)
}
