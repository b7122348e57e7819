package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics of the access-control and
// resource-allocation core. Registration is the caller's concern; the core
// never serves an export endpoint itself.
type Metrics struct {
	// Permission metrics
	PermissionChecksTotal *prometheus.CounterVec
	PermissionCacheHits   prometheus.Counter
	PermissionCacheMisses prometheus.Counter
	RoleMutationsTotal    *prometheus.CounterVec

	// Resource binding metrics
	AccountSelectionsTotal *prometheus.CounterVec
	SelectionFailuresTotal *prometheus.CounterVec
	ExclusiveSwapsTotal    prometheus.Counter

	// Quota metrics
	QuotaUsageRecordsTotal *prometheus.CounterVec
	QuotaThresholdState    *prometheus.GaugeVec

	// Allocator metrics
	AllocatorRefreshTotal    *prometheus.CounterVec
	AllocatorSnapshotGroups  prometheus.Gauge
	AllocatorLastRefreshUnix prometheus.Gauge
}

// NewMetrics creates and registers all metrics on the given registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carpool_permission_checks_total",
				Help: "Total permission checks by result",
			},
			[]string{"result"},
		),
		PermissionCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "carpool_permission_cache_hits_total",
				Help: "Permission cache hits",
			},
		),
		PermissionCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "carpool_permission_cache_misses_total",
				Help: "Permission cache misses",
			},
		),
		RoleMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carpool_role_mutations_total",
				Help: "Role assignments and revocations by operation",
			},
			[]string{"operation"},
		),
		AccountSelectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carpool_account_selections_total",
				Help: "Successful account selections by binding mode and platform",
			},
			[]string{"mode", "platform"},
		),
		SelectionFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carpool_selection_failures_total",
				Help: "Failed account selections by reason",
			},
			[]string{"reason"},
		),
		ExclusiveSwapsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "carpool_exclusive_swaps_total",
				Help: "Exclusive account bindings moved between groups",
			},
		),
		QuotaUsageRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carpool_quota_usage_records_total",
				Help: "Usage events recorded by subject kind",
			},
			[]string{"subject"},
		),
		QuotaThresholdState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "carpool_quota_threshold_state",
				Help: "Threshold state per group (0=ok, 1=warning, 2=alert)",
			},
			[]string{"group"},
		),
		AllocatorRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carpool_allocator_refresh_total",
				Help: "Candidate list refresh runs by outcome",
			},
			[]string{"outcome"},
		),
		AllocatorSnapshotGroups: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "carpool_allocator_snapshot_groups",
				Help: "Groups with a precomputed candidate list",
			},
		),
		AllocatorLastRefreshUnix: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "carpool_allocator_last_refresh_timestamp_seconds",
				Help: "Unix time of the last successful candidate refresh",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.PermissionChecksTotal,
			m.PermissionCacheHits,
			m.PermissionCacheMisses,
			m.RoleMutationsTotal,
			m.AccountSelectionsTotal,
			m.SelectionFailuresTotal,
			m.ExclusiveSwapsTotal,
			m.QuotaUsageRecordsTotal,
			m.QuotaThresholdState,
			m.AllocatorRefreshTotal,
			m.AllocatorSnapshotGroups,
			m.AllocatorLastRefreshUnix,
		)
	}

	return m
}
