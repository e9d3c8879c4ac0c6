package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusHandler serves Collector's accumulated metrics as rendered by
// ExportPrometheus, followed by the Go-runtime metrics of a client_golang
// registry.
type PrometheusHandler struct {
	collector *Collector
	registry  *prometheus.Registry
}

// NewPrometheusHandler wraps collector behind an http.Handler suitable
// for mounting at /metrics.
func NewPrometheusHandler(collector *Collector) *PrometheusHandler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	return &PrometheusHandler{collector: collector, registry: reg}
}

// Handler returns the http.Handler to mount. It serves the collector's
// own text exposition format directly rather than round-tripping through
// client_golang's collector interface, since Collector's counters are
// free-form composite keys rather than pre-declared vector metrics; the
// registered Go-runtime collector still rides along for process stats.
func (h *PrometheusHandler) Handler() http.Handler {
	base := promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.Write([]byte(h.collector.ExportPrometheus()))
		base.ServeHTTP(w, r)
	})
}
