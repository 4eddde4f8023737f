package devserver

import (
	"github.com/prometheus/client_golang/prometheus"
)

// registry is the dev server's own metric registry so repeated server
// instances in one process never collide with the default registry.
var registry = prometheus.NewRegistry()

var (
	buildsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webpack_devserver_builds_total",
			Help: "Number of completed rebuilds since the dev server started.",
		},
	)
	buildErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webpack_devserver_build_errors_total",
			Help: "Number of rebuilds that finished with compilation errors.",
		},
	)

	buildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webpack_devserver_build_duration_seconds",
			Help:    "Time taken by each rebuild.",
			Buckets: prometheus.DefBuckets,
		},
	)

	connectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webpack_devserver_connected_clients",
			Help: "Number of live-reload clients currently connected.",
		},
	)

	emittedAssetBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webpack_devserver_emitted_asset_bytes",
			Help: "Total bytes of assets emitted by the most recent build.",
		},
	)
)

func init() {
	registry.MustRegister(
		buildsTotal,
		buildErrorsTotal,
		buildDuration,
		connectedClients,
		emittedAssetBytes,
	)
}
