package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esim-dashboard/metrics"
)

func TestRecorderCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	r := metrics.New(reg)

	r.ObserveFetch(metrics.StageListing, nil)
	r.ObserveFetch(metrics.StageFile, errors.New("404"))
	r.ObserveCache("discovery", true)
	r.ObserveCache("discovery", false)
	r.SetProducts(42)
	r.SetSources(3)

	count, err := testutil.GatherAndCount(reg,
		"esim_dashboard_fetches_total", "esim_dashboard_cache_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count, "Expected one series per label combination")
}

func TestNilRecorderIsNoop(t *testing.T) {
	t.Parallel()

	var r *metrics.Recorder
	assert.NotPanics(t, func() {
		r.ObserveFetch(metrics.StageFile, nil)
		r.ObserveCache("load", true)
		r.SetProducts(1)
		r.SetSources(1)
	})
}

func TestHandlerServesMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics.New(reg).SetProducts(7)

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "esim_dashboard_products 7")
}
