// Package metrics exposes Prometheus collectors for the caches, the API catalogue,
// the configuration reconcilers and service discovery.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Namespace is the Prometheus metrics namespace
	Namespace = "gkcs"
)

var (
	// CacheEvents counts watch events per kind and outcome (applied, absorbed, error)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_events_total",
			Help:      "Watch events handled by resource caches, per kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// CacheSize tracks the number of cached resources per kind and partition
	CacheSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cache_resources",
			Help:      "Number of resources held per kind and namespace partition",
		},
		[]string{"kind", "namespace"},
	)

	// WatchRestarts counts re-watches and re-lists per kind
	WatchRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "watch_restarts_total",
			Help:      "Number of watch restarts per kind and reason",
		},
		[]string{"kind", "reason"},
	)

	// CatalogRefreshDuration measures API discovery document fetches
	CatalogRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "catalog_refresh_duration_seconds",
			Help:      "Duration of API discovery catalogue refreshes in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// CatalogRefreshErrors counts failed catalogue refreshes
	CatalogRefreshErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "catalog_refresh_errors_total",
			Help:      "Total number of failed API discovery catalogue refreshes",
		},
	)

	// ConfigChanges counts published configuration change events per kind
	ConfigChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "config_changes_total",
			Help:      "Configuration change events published, per originating kind",
		},
		[]string{"kind"},
	)

	// ConfigTransformErrors counts resources whose payload could not be transformed
	ConfigTransformErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "config_transform_errors_total",
			Help:      "ConfigMaps/Secrets whose payload could not be turned into property sources",
		},
		[]string{"kind"},
	)

	// DroppedNotifications counts change events not delivered to slow subscribers
	DroppedNotifications = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "config_notifications_dropped_total",
			Help:      "Change notifications dropped because a subscriber was not keeping up",
		},
	)

	// PlaceholderFailures counts property values that could not be fully resolved, per reason
	// (missing, template, overflow, external)
	PlaceholderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "placeholder_failures_total",
			Help:      "Property placeholders or templates that could not be resolved, per reason",
		},
		[]string{"reason"},
	)

	// ResolutionFailures counts service instance resolution failures per reason
	ResolutionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "instance_resolution_failures_total",
			Help:      "Service instance resolution failures, per reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		CacheEvents,
		CacheSize,
		WatchRestarts,
		CatalogRefreshDuration,
		CatalogRefreshErrors,
		ConfigChanges,
		ConfigTransformErrors,
		DroppedNotifications,
		PlaceholderFailures,
		ResolutionFailures,
	)
}
