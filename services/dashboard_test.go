package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esim-dashboard/models"
	"esim-dashboard/utils"
)

type stubDiscoverer struct {
	files []models.ProviderFile
	err   error
	calls int
}

func (s *stubDiscoverer) Discover(_ context.Context, _ string) ([]models.ProviderFile, error) {
	s.calls++
	return s.files, s.err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestDashboard(disc Discoverer, f Fetcher) (*Dashboard, *clock) {
	logger := utils.Discard()
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	d := NewDashboard("http://files.test/", time.Hour, DashboardDeps{
		Discoverer: disc,
		Loader:     NewLoader(f, logger, nil),
		Normalizer: NewNormalizer(testCols.PricePerUnit, NumericParser{DecimalSeparator: ","}, logger),
		Insights:   NewInsightService(testCols, 10, 100, logger),
		Logger:     logger,
	}).WithClock(clk.now)
	return d, clk
}

const airaloCSV = "NOM ENTREPRISE,PRIX,DATA (GO),PRIX/GO,PAYS\n" +
	"Airalo,4.5,1,\"4,5\",\"France, Spain\"\n" +
	"Airalo,20,10,\"2,0\",France\n"

const ubigiCSV = "NOM ENTREPRISE,PRIX,DATA (GO),PRIX/GO,PAYS\n" +
	"Ubigi,9,5,\"1,8\",Japan\n"

func TestRefreshRunsPipeline(t *testing.T) {
	disc := &stubDiscoverer{files: []models.ProviderFile{
		{Provider: "Airalo", URL: "a"}, {Provider: "Ubigi", URL: "u"},
	}}
	f := &mapFetcher{bodies: map[string]string{"a": airaloCSV, "u": ubigiCSV}}
	d, _ := newTestDashboard(disc, f)

	snap := d.Refresh(context.Background())

	require.Equal(t, 3, snap.Dataset.Len())
	assert.Equal(t, 3, snap.Report.TotalProducts)
	assert.Empty(t, snap.Report.Diagnostics)

	v, ok := snap.Dataset.Rows[0].Number("PRIX/GO")
	require.True(t, ok, "price per GB is normalized before aggregation")
	assert.InDelta(t, 4.5, v, 1e-12)

	require.Len(t, snap.Report.UnitPrices, 2)
	assert.Equal(t, "Ubigi", snap.Report.UnitPrices[0].Company)
	assert.Equal(t, "France", snap.Report.TopCountries[0].Country)
}

func TestRefreshReusesCacheWithinTTL(t *testing.T) {
	disc := &stubDiscoverer{files: []models.ProviderFile{{Provider: "Airalo", URL: "a"}}}
	f := &mapFetcher{bodies: map[string]string{"a": airaloCSV}}
	d, clk := newTestDashboard(disc, f)

	first := d.Refresh(context.Background())
	clk.t = clk.t.Add(30 * time.Minute)
	second := d.Refresh(context.Background())

	assert.Equal(t, 1, disc.calls)
	assert.Equal(t, []string{"a"}, f.calls)
	assert.Equal(t, first.Dataset, second.Dataset, "identical row order across refreshes")

	clk.t = clk.t.Add(31 * time.Minute)
	d.Refresh(context.Background())

	assert.Equal(t, 2, disc.calls)
	assert.Equal(t, []string{"a", "a"}, f.calls)
}

func TestRefreshDiscoveryFailure(t *testing.T) {
	disc := &stubDiscoverer{err: errors.New("discovery failed: 503")}
	d, _ := newTestDashboard(disc, &mapFetcher{})

	snap := d.Refresh(context.Background())

	assert.Equal(t, 0, snap.Dataset.Len())
	assert.Empty(t, snap.Report.Sources)
	require.Len(t, snap.Report.Diagnostics, 2)
	assert.Equal(t, models.DiagnosticDiscoveryFailure, snap.Report.Diagnostics[0].Kind)
	assert.Equal(t, models.DiagnosticEmptyDataset, snap.Report.Diagnostics[1].Kind)
	assert.Empty(t, snap.Report.PriceRanges)

	// The failed outcome is cached too, diagnostics included.
	again := d.Refresh(context.Background())
	assert.Equal(t, 1, disc.calls)
	assert.Equal(t, snap.Report.Diagnostics, again.Report.Diagnostics)
}

func TestRefreshPartialLoadFailure(t *testing.T) {
	disc := &stubDiscoverer{files: []models.ProviderFile{
		{Provider: "Airalo", URL: "a"}, {Provider: "maya", URL: "m"}, {Provider: "Ubigi", URL: "u"},
	}}
	f := &mapFetcher{bodies: map[string]string{"a": airaloCSV, "u": ubigiCSV}}
	d, _ := newTestDashboard(disc, f)

	snap := d.Refresh(context.Background())

	assert.Equal(t, []string{"Airalo", "Airalo", "Ubigi"}, companies(snap.Dataset))
	require.Len(t, snap.Report.Diagnostics, 1)
	assert.Equal(t, "m", snap.Report.Diagnostics[0].Source)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	disc := &stubDiscoverer{files: []models.ProviderFile{{Provider: "Airalo", URL: "a"}}}
	f := &mapFetcher{bodies: map[string]string{"a": airaloCSV}}
	d, _ := newTestDashboard(disc, f)

	d.Refresh(context.Background())
	d.Invalidate()
	d.Refresh(context.Background())

	assert.Equal(t, 2, disc.calls)
}

// ctxFetcher behaves like an HTTP fetch: it fails once ctx is done.
type ctxFetcher struct {
	mapFetcher
}

func (c *ctxFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		c.calls = append(c.calls, url)
		return nil, err
	}
	return c.mapFetcher.Fetch(ctx, url)
}

type ctxDiscoverer struct {
	stubDiscoverer
}

func (c *ctxDiscoverer) Discover(ctx context.Context, baseURL string) ([]models.ProviderFile, error) {
	if err := ctx.Err(); err != nil {
		c.calls++
		return nil, err
	}
	return c.stubDiscoverer.Discover(ctx, baseURL)
}

func TestRefreshCancelledLoadIsNotCached(t *testing.T) {
	disc := &stubDiscoverer{files: []models.ProviderFile{{Provider: "Airalo", URL: "a"}}}
	f := &ctxFetcher{mapFetcher{bodies: map[string]string{"a": airaloCSV}}}
	d, _ := newTestDashboard(disc, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	aborted := d.Refresh(ctx)
	assert.Equal(t, 0, aborted.Dataset.Len())

	snap := d.Refresh(context.Background())

	assert.Equal(t, 2, snap.Dataset.Len())
	assert.Empty(t, snap.Report.Diagnostics)
	assert.Equal(t, []string{"a", "a"}, f.calls)
}

func TestRefreshCancelledDiscoveryIsNotCached(t *testing.T) {
	disc := &ctxDiscoverer{stubDiscoverer{files: []models.ProviderFile{{Provider: "Airalo", URL: "a"}}}}
	f := &ctxFetcher{mapFetcher{bodies: map[string]string{"a": airaloCSV}}}
	d, _ := newTestDashboard(disc, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	aborted := d.Refresh(ctx)
	require.Len(t, aborted.Report.Diagnostics, 2)
	assert.Equal(t, models.DiagnosticDiscoveryFailure, aborted.Report.Diagnostics[0].Kind)

	snap := d.Refresh(context.Background())

	assert.Equal(t, 2, disc.calls)
	assert.Equal(t, []string{"Airalo", "Airalo"}, companies(snap.Dataset))
	assert.Empty(t, snap.Report.Diagnostics)

	d.Refresh(context.Background())
	assert.Equal(t, 2, disc.calls, "a healthy outcome is cached")
}
