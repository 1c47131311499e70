package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"esim-dashboard/metrics"
	"esim-dashboard/models"
	"esim-dashboard/utils"
)

// Discoverer enumerates provider plan files below a base URL.
type Discoverer interface {
	Discover(ctx context.Context, baseURL string) ([]models.ProviderFile, error)
}

// Snapshot is the output of one refresh: the normalized dataset and its report.
type Snapshot struct {
	Dataset *models.Dataset
	Report  *models.Report
}

type discoveryOutcome struct {
	files       []models.ProviderFile
	diagnostics []models.Diagnostic
}

// Dashboard runs Discovery → Loader → Normalizer → Aggregator. Discovery and
// load outcomes are memoized for the cache TTL, diagnostics included, so a
// cache hit replays the same messages without touching the network.
type Dashboard struct {
	baseURL    string
	discoverer Discoverer
	loader     *Loader
	normalizer *Normalizer
	insights   *InsightService
	logger     *utils.Logger
	metrics    *metrics.Recorder

	discoveries *utils.TTLCache[string, discoveryOutcome]
	loads       *utils.TTLCache[string, *LoadResult]

	mu sync.Mutex
}

// DashboardDeps groups the collaborators of a Dashboard.
type DashboardDeps struct {
	Discoverer Discoverer
	Loader     *Loader
	Normalizer *Normalizer
	Insights   *InsightService
	Logger     *utils.Logger
	Metrics    *metrics.Recorder
}

// NewDashboard creates a Dashboard reading providers below baseURL.
func NewDashboard(baseURL string, ttl time.Duration, deps DashboardDeps) *Dashboard {
	return &Dashboard{
		baseURL:     baseURL,
		discoverer:  deps.Discoverer,
		loader:      deps.Loader,
		normalizer:  deps.Normalizer,
		insights:    deps.Insights,
		logger:      deps.Logger.Named("dashboard"),
		metrics:     deps.Metrics,
		discoveries: utils.NewTTLCache[string, discoveryOutcome](ttl),
		loads:       utils.NewTTLCache[string, *LoadResult](ttl),
	}
}

// WithClock swaps the time source of both caches.
func (d *Dashboard) WithClock(now func() time.Time) *Dashboard {
	d.discoveries.WithClock(now)
	d.loads.WithClock(now)
	return d
}

// Refresh runs the pipeline once. Refreshes are serialized; failures never
// escape as errors but surface as diagnostics in the report. If ctx ends
// mid-refresh the partial outcome is returned but not cached.
func (d *Dashboard) Refresh(ctx context.Context) *Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	disc, hit := d.discoveries.GetOrCompute(d.baseURL, func() (discoveryOutcome, bool) {
		out := d.discover(ctx)
		return out, d.storable(ctx, "discovery")
	})
	d.metrics.ObserveCache("discovery", hit)
	d.metrics.SetSources(len(disc.files))

	loaded, hit := d.loads.GetOrCompute(loadKey(disc.files), func() (*LoadResult, bool) {
		res := d.loader.Load(ctx, disc.files)
		return res, d.storable(ctx, "load")
	})
	d.metrics.ObserveCache("load", hit)
	d.metrics.SetProducts(loaded.Dataset.Len())

	ds := d.normalizer.Normalize(loaded.Dataset)

	diags := make([]models.Diagnostic, 0, len(disc.diagnostics)+len(loaded.Diagnostics))
	diags = append(diags, disc.diagnostics...)
	diags = append(diags, loaded.Diagnostics...)

	return &Snapshot{
		Dataset: ds,
		Report:  d.insights.Generate(ds, disc.files, diags),
	}
}

// Invalidate drops both caches so the next Refresh refetches everything.
func (d *Dashboard) Invalidate() {
	d.discoveries.Purge()
	d.loads.Purge()
}

func (d *Dashboard) discover(ctx context.Context) discoveryOutcome {
	files, err := d.discoverer.Discover(ctx, d.baseURL)
	if err != nil {
		d.logger.Error("No sources found: %v", err)
		return discoveryOutcome{
			files: []models.ProviderFile{},
			diagnostics: []models.Diagnostic{{
				Kind:    models.DiagnosticDiscoveryFailure,
				Source:  d.baseURL,
				Message: "no sources found: " + err.Error(),
			}},
		}
	}
	if files == nil {
		files = []models.ProviderFile{}
	}
	return discoveryOutcome{files: files}
}

// storable reports whether an outcome computed under ctx may be cached.
// Outcomes of a cancelled or expired refresh are never stored.
func (d *Dashboard) storable(ctx context.Context, stage string) bool {
	if err := ctx.Err(); err != nil {
		d.logger.Warn("Not caching %s outcome: %v", stage, err)
		return false
	}
	return true
}

func loadKey(files []models.ProviderFile) string {
	urls := make([]string, len(files))
	for i, f := range files {
		urls[i] = f.URL
	}
	return strings.Join(urls, "\n")
}
