// Package directory discovers provider plan files by crawling a browsable
// directory listing two levels deep: one subdirectory per provider, each
// holding the provider's plans CSV.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"esim-dashboard/metrics"
	"esim-dashboard/models"
	"esim-dashboard/utils"
)

// ErrDiscovery marks a failed crawl. Discovery never returns partial results.
var ErrDiscovery = errors.New("discovery failed")

// Discoverer enumerates provider plan files below a base URL.
type Discoverer struct {
	fetcher     Fetcher
	listingPath string
	suffix      string
	logger      *utils.Logger
	metrics     *metrics.Recorder
}

// NewDiscoverer creates a Discoverer crawling listingPath (e.g. "csv/") and
// keeping files whose name ends with suffix (e.g. "Plans.csv").
func NewDiscoverer(fetcher Fetcher, listingPath, suffix string, logger *utils.Logger, rec *metrics.Recorder) *Discoverer {
	return &Discoverer{
		fetcher:     fetcher,
		listingPath: listingPath,
		suffix:      suffix,
		logger:      logger.Named("discovery"),
		metrics:     rec,
	}
}

// Discover crawls the listing below baseURL and returns the matching files,
// deduplicated and sorted by URL. An empty listing yields an empty slice.
func (d *Discoverer) Discover(ctx context.Context, baseURL string) ([]models.ProviderFile, error) {
	listingURL, err := d.listingURL(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	d.logger.Info("Listing providers at %s", listingURL)
	hrefs, err := d.list(ctx, listingURL)
	if err != nil {
		return nil, err
	}

	dirs := d.providerDirs(listingURL, hrefs)
	d.logger.Debug("Found %d provider directories", len(dirs))

	seen := utils.NewURLSet()
	providers := make(map[string]string)

	for _, dir := range dirs {
		entries, err := d.list(ctx, dir)
		if err != nil {
			return nil, err
		}

		provider := providerName(dir)
		for _, href := range entries {
			fileURL, ok := d.planFile(dir, href)
			if !ok {
				continue
			}
			if seen.Add(fileURL) {
				providers[fileURL] = provider
			}
		}
	}

	files := make([]models.ProviderFile, 0, seen.Size())
	for _, u := range seen.Sorted() {
		files = append(files, models.ProviderFile{Provider: providers[u], URL: u})
	}

	d.logger.Info("Discovered %d plan files across %d providers", len(files), len(dirs))
	return files, nil
}

func (d *Discoverer) listingURL(baseURL string) (*url.URL, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	ref, err := url.Parse(strings.TrimLeft(d.listingPath, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse listing path %q: %w", d.listingPath, err)
	}
	return asDir(base.ResolveReference(ref)), nil
}

func (d *Discoverer) list(ctx context.Context, u *url.URL) ([]string, error) {
	body, err := d.fetcher.Fetch(ctx, u.String())
	d.metrics.ObserveFetch(metrics.StageListing, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDiscovery, u, err)
	}

	hrefs, err := ExtractLinks(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDiscovery, u, err)
	}
	return hrefs, nil
}

// providerDirs keeps the top-level entries that point to provider
// subdirectories, in listing order.
func (d *Discoverer) providerDirs(listing *url.URL, hrefs []string) []*url.URL {
	self := strings.Trim(d.listingPath, "/")
	seen := utils.NewURLSet()
	var dirs []*url.URL

	for _, href := range hrefs {
		if skipHref(href) || strings.Trim(href, "/") == self {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			d.logger.Debug("Ignoring unparsable entry %q: %v", href, err)
			continue
		}
		dir := asDir(listing.ResolveReference(ref))
		if !within(listing, dir) {
			continue
		}
		if seen.Add(dir.String()) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func (d *Discoverer) planFile(dir *url.URL, href string) (string, bool) {
	if skipHref(href) {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := dir.ResolveReference(ref)
	if !strings.HasSuffix(path.Base(abs.Path), d.suffix) {
		return "", false
	}
	return abs.String(), true
}

func skipHref(href string) bool {
	switch {
	case href == "", href == "..", href == "../", href == "/":
		return true
	case strings.HasPrefix(href, "?"), strings.HasPrefix(href, "#"):
		return true
	}
	return false
}

// within reports whether u lies strictly below root on the same host.
func within(root, u *url.URL) bool {
	if u.Scheme != root.Scheme || u.Host != root.Host {
		return false
	}
	return u.Path != root.Path && strings.HasPrefix(u.Path, root.Path)
}

func asDir(u *url.URL) *url.URL {
	cp := *u
	cp.RawQuery = ""
	cp.Fragment = ""
	if !strings.HasSuffix(cp.Path, "/") {
		cp.Path += "/"
		cp.RawPath = ""
	}
	return &cp
}

func providerName(dir *url.URL) string {
	return path.Base(strings.TrimSuffix(dir.Path, "/"))
}
