package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esim-dashboard/models"
	"esim-dashboard/utils"
)

func listingPage(hrefs ...string) string {
	page := "<html><body><h1>Index of /csv</h1><pre>"
	for _, h := range hrefs {
		page += fmt.Sprintf(`<a href="%s">%s</a>`+"\n", h, h)
	}
	return page + "</pre></body></html>"
}

func newListingServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestDiscoverer() *Discoverer {
	return NewDiscoverer(NewHTTPFetcher(5*time.Second), "csv/", "Plans.csv", utils.Discard(), nil)
}

func TestDiscoverTwoLevelCrawl(t *testing.T) {
	srv := newListingServer(t, map[string]string{
		"/csv/": listingPage("?C=N;O=D", "../", "/", "csv/", "Ubigi/", "Airalo/", ""),
		"/csv/Airalo/": listingPage("../", "AiraloPlans.csv", "notes.txt", "?C=M;O=A"),
		"/csv/Ubigi/":  listingPage("../", "UbigiPlans.csv", "UbigiPlans.csv", "old.csv"),
	})

	files, err := newTestDiscoverer().Discover(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, []models.ProviderFile{
		{Provider: "Airalo", URL: srv.URL + "/csv/Airalo/AiraloPlans.csv"},
		{Provider: "Ubigi", URL: srv.URL + "/csv/Ubigi/UbigiPlans.csv"},
	}, files)
}

func TestDiscoverAbsoluteHrefs(t *testing.T) {
	srv := newListingServer(t, map[string]string{
		"/csv/":        listingPage("/csv/", "/csv/yesim/"),
		"/csv/yesim/": listingPage("/csv/yesim/yesimPlans.csv"),
	})

	files, err := newTestDiscoverer().Discover(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "yesim", files[0].Provider)
	assert.Equal(t, srv.URL+"/csv/yesim/yesimPlans.csv", files[0].URL)
}

func TestDiscoverEmptyListing(t *testing.T) {
	srv := newListingServer(t, map[string]string{
		"/csv/": listingPage(),
	})

	files, err := newTestDiscoverer().Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)
}

func TestDiscoverTopLevelFailure(t *testing.T) {
	srv := newListingServer(t, map[string]string{})

	files, err := newTestDiscoverer().Discover(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDiscovery)
	assert.Nil(t, files)
}

func TestDiscoverSubdirectoryFailureIsNotPartial(t *testing.T) {
	srv := newListingServer(t, map[string]string{
		"/csv/":        listingPage("Airalo/", "maya/"),
		"/csv/Airalo/": listingPage("AiraloPlans.csv"),
	})

	files, err := newTestDiscoverer().Discover(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrDiscovery)
	assert.Contains(t, err.Error(), "/csv/maya/")
	assert.Nil(t, files)
}

func TestDiscoverUsesInjectedFetcher(t *testing.T) {
	pages := map[string]string{
		"http://files.test/csv/":       listingPage("saily/"),
		"http://files.test/csv/saily/": listingPage("sailyPlans.csv"),
	}
	var calls []string
	fetch := FetcherFunc(func(_ context.Context, u string) ([]byte, error) {
		calls = append(calls, u)
		body, ok := pages[u]
		if !ok {
			return nil, errors.New("not found")
		}
		return []byte(body), nil
	})

	d := NewDiscoverer(fetch, "/csv/", "Plans.csv", utils.Discard(), nil)
	files, err := d.Discover(context.Background(), "http://files.test")
	require.NoError(t, err)

	assert.Equal(t, []string{"http://files.test/csv/", "http://files.test/csv/saily/"}, calls)
	assert.Equal(t, []models.ProviderFile{{Provider: "saily", URL: "http://files.test/csv/saily/sailyPlans.csv"}}, files)
}
