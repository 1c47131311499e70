// Package metrics exposes Prometheus instrumentation for the refresh pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch stages.
const (
	StageListing = "listing"
	StageFile    = "file"
)

// Fetch results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Recorder holds the pipeline collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	fetches      *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	products     prometheus.Gauge
	sources      prometheus.Gauge
}

// New registers the pipeline collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "esim_dashboard_fetches_total",
			Help: "Remote fetches performed, by stage and result.",
		}, []string{"stage", "result"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "esim_dashboard_cache_lookups_total",
			Help: "Cache lookups, by cache and outcome.",
		}, []string{"cache", "outcome"}),
		products: f.NewGauge(prometheus.GaugeOpts{
			Name: "esim_dashboard_products",
			Help: "Rows in the unified dataset of the last refresh.",
		}),
		sources: f.NewGauge(prometheus.GaugeOpts{
			Name: "esim_dashboard_sources",
			Help: "Provider files found by the last discovery.",
		}),
	}
}

// ObserveFetch counts one fetch.
func (r *Recorder) ObserveFetch(stage string, err error) {
	if r == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	r.fetches.WithLabelValues(stage, result).Inc()
}

// ObserveCache counts one cache lookup.
func (r *Recorder) ObserveCache(cache string, hit bool) {
	if r == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.cacheLookups.WithLabelValues(cache, outcome).Inc()
}

// SetProducts records the size of the last loaded dataset.
func (r *Recorder) SetProducts(n int) {
	if r == nil {
		return
	}
	r.products.Set(float64(n))
}

// SetSources records how many plan files the last discovery found.
func (r *Recorder) SetSources(n int) {
	if r == nil {
		return
	}
	r.sources.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
