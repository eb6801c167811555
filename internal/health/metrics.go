package health

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowforge/mediaflow/internal/platform/logger"
)

// Metrics exports per-queue depth gauges in Prometheus format, grounded on
// the pack's ai/metrics.PrometheusExporter (a registry plus a set of named
// gauges/counters, refreshed from a polled source rather than pushed
// inline). Namespaced "mediaflow" in place of that package's "divinesense".
type Metrics struct {
	registry *prometheus.Registry
	queue    QueueCounter
	log      *logger.Logger

	waiting   *prometheus.GaugeVec
	active    *prometheus.GaugeVec
	completed *prometheus.GaugeVec
	failed    *prometheus.GaugeVec
	delayed   *prometheus.GaugeVec
}

func NewMetrics(q QueueCounter, log *logger.Logger) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		queue:    q,
		log:      log.With("service", "HealthMetrics"),
		waiting:   gaugeVec(registry, "waiting", "Jobs waiting on the ready list"),
		active:    gaugeVec(registry, "active", "Jobs currently claimed"),
		completed: gaugeVec(registry, "completed", "Jobs completed"),
		failed:    gaugeVec(registry, "failed", "Jobs permanently failed"),
		delayed:   gaugeVec(registry, "delayed", "Jobs scheduled for delayed retry"),
	}
	return m
}

func gaugeVec(reg *prometheus.Registry, name, help string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mediaflow",
		Subsystem: "queue",
		Name:      name,
		Help:      help,
	}, []string{"queue"})
	reg.MustRegister(gv)
	return gv
}

// Refresh re-polls Counts for every queue and sets the gauges. Intended to
// be called right before a scrape (via Handler) rather than on a separate
// ticker, since queue depth is cheap to read and scrape intervals already
// bound the staleness window.
func (m *Metrics) Refresh(ctx context.Context) {
	for _, qn := range queueNames {
		counts, err := m.queue.Counts(ctx, qn)
		if err != nil {
			m.log.Warn("counts failed", "queue", qn, "error", err)
			continue
		}
		m.waiting.WithLabelValues(qn).Set(float64(counts.Waiting))
		m.active.WithLabelValues(qn).Set(float64(counts.Active))
		m.completed.WithLabelValues(qn).Set(float64(counts.Completed))
		m.failed.WithLabelValues(qn).Set(float64(counts.Failed))
		m.delayed.WithLabelValues(qn).Set(float64(counts.Delayed))
	}
}

// Handler refreshes the gauges from their live source and serves the
// Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Refresh(r.Context())
		inner.ServeHTTP(w, r)
	})
}
