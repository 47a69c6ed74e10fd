// Package telemetry holds the prometheus instruments and the otel tracer
// shared by the hierarchy build and route resolution.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of every span this module starts
const TracerName = "github.com/conduit-lang/hierroutes"

var (
	// BuildTotal counts completed builds by source ("cache" or "rebuild")
	BuildTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hierroutes_build_total",
		Help: "Total hierarchy builds by source",
	}, []string{"source"})

	// BuildDuration tracks full rebuild latency
	BuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hierroutes_build_duration_seconds",
		Help:    "Hierarchy rebuild duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	})

	// BuildNodes reports the node count of the current snapshot
	BuildNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hierroutes_nodes",
		Help: "Number of nodes in the current hierarchy snapshot",
	})

	// ResolveTotal counts resolutions by result
	// ("record", "listing", "fuzzy", "not_found", "error")
	ResolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hierroutes_resolve_total",
		Help: "Total path resolutions by result",
	}, []string{"result"})

	// ImportSkipped counts menu items and rules left out of a build
	ImportSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hierroutes_import_skipped_total",
		Help: "Menu items and rules skipped during import",
	}, []string{"kind"}) // "menu" or "rule"

	// CacheLoads counts route cache reads by outcome ("hit", "miss", "stale")
	CacheLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hierroutes_cache_loads_total",
		Help: "Route cache reads by outcome",
	}, []string{"outcome"})
)

// Tracer returns the module tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
