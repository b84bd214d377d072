package daemon

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsExporter is an optional Prometheus endpoint, added the way
// adred-codev-ws_poc's ws service exposes its own connection-count gauge
// (ws/metrics.go). It is gated on Config.MetricsAddr and listens on that
// address exactly as configured (it is not restricted to localhost); it
// never reports message contents, only counts — per
// SPEC_FULL.md §4.6: connected client count, per-queue depth, messages
// dispatched, and per-server connection state.
type metricsExporter struct {
	addr   string
	server *http.Server
}

func newMetricsExporter(addr string, d *Daemon) *metricsExporter {
	registry := prometheus.NewRegistry()

	promauto.With(registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "hircd",
		Name:      "connected_clients",
		Help:      "Number of clients currently connected to the daemon.",
	}, func() float64 { return float64(d.ClientCount()) })

	promauto.With(registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "hircd",
		Name:      "daemon_queue_depth",
		Help:      "Number of unprocessed items on the daemon request queue.",
	}, func() float64 { return float64(d.daemonQueue.Len()) })

	promauto.With(registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "hircd",
		Name:      "irc_queue_depth",
		Help:      "Number of unprocessed items on the IRC inbound queue.",
	}, func() float64 { return float64(d.ircQueue.Len()) })

	promauto.With(registry).NewCounterFunc(prometheus.CounterOpts{
		Namespace: "hircd",
		Name:      "messages_dispatched_total",
		Help:      "Number of items the dispatcher has handled off either queue.",
	}, func() float64 { return float64(d.dispatcher.DispatchedCount()) })

	// One GaugeFunc per configured server rather than a GaugeVec, since the
	// server set is fixed at startup; each reads the dispatcher-maintained
	// model.State.IsConnected rather than polling the connector directly.
	for name := range d.connectors {
		server := name
		promauto.With(registry).NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "hircd",
			Name:        "server_connected",
			Help:        "Whether the IRC connector for a configured server currently holds a live session (1) or not (0).",
			ConstLabels: prometheus.Labels{"server": string(server)},
		}, func() float64 {
			if d.state.IsConnected(server) {
				return 1
			}
			return 0
		})
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &metricsExporter{
		addr:   addr,
		server: &http.Server{Addr: addr, Handler: mux},
	}
}

// Run serves /metrics until ctx is canceled.
func (m *metricsExporter) Run(ctx context.Context, logger *slog.Logger) {
	go func() {
		<-ctx.Done()
		m.server.Close()
	}()
	if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server stopped", "error", err)
	}
}

// RunMetrics starts the metrics exporter if MetricsAddr is configured, and
// is a no-op otherwise.
func (d *Daemon) RunMetrics(ctx context.Context) {
	if d.cfg.MetricsAddr == "" {
		return
	}
	exporter := newMetricsExporter(d.cfg.MetricsAddr, d)
	exporter.Run(ctx, d.logger)
}
