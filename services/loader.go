package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"esim-dashboard/metrics"
	"esim-dashboard/models"
	"esim-dashboard/utils"
)

// ErrEmptyDataset is reported when no source could be loaded.
var ErrEmptyDataset = errors.New("no data loaded")

// Fetcher retrieves the body of a remote resource.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// naValues mirrors the strings pandas treats as missing by default.
var naValues = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// LoadResult is the unified dataset plus the diagnostics raised while building it.
type LoadResult struct {
	Dataset     *models.Dataset
	Diagnostics []models.Diagnostic
}

// Loader fetches provider CSV files and concatenates them.
type Loader struct {
	fetcher Fetcher
	logger  *utils.Logger
	metrics *metrics.Recorder
}

// NewLoader creates a Loader with the given fetcher.
func NewLoader(fetcher Fetcher, logger *utils.Logger, rec *metrics.Recorder) *Loader {
	return &Loader{fetcher: fetcher, logger: logger.Named("loader"), metrics: rec}
}

// Load fetches every file in order. A failing file is reported and skipped;
// it never aborts the whole load.
func (l *Loader) Load(ctx context.Context, files []models.ProviderFile) *LoadResult {
	res := &LoadResult{Dataset: models.NewDataset()}
	loaded := 0

	for _, f := range files {
		header, rows, err := l.loadOne(ctx, f)
		if err != nil {
			l.logger.Error("Failed to load %s: %v", f.URL, err)
			res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
				Kind:    models.DiagnosticSourceLoadFailure,
				Source:  f.URL,
				Message: fmt.Sprintf("failed to load %s: %v", f.URL, err),
			})
			continue
		}

		for _, col := range header {
			res.Dataset.AddColumn(col)
		}
		res.Dataset.Rows = append(res.Dataset.Rows, rows...)
		loaded++
		l.logger.Debug("Loaded %d rows from %s", len(rows), f.URL)
	}

	if loaded == 0 {
		l.logger.Error("%v", ErrEmptyDataset)
		res.Dataset = models.NewDataset()
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			Kind:    models.DiagnosticEmptyDataset,
			Message: ErrEmptyDataset.Error(),
		})
		return res
	}

	l.logger.Info("Loaded %d rows from %d/%d sources", res.Dataset.Len(), loaded, len(files))
	return res
}

func (l *Loader) loadOne(ctx context.Context, f models.ProviderFile) ([]string, []models.Row, error) {
	body, err := l.fetcher.Fetch(ctx, f.URL)
	l.metrics.ObserveFetch(metrics.StageFile, err)
	if err != nil {
		return nil, nil, err
	}
	return ParseCSV(bytes.NewReader(body))
}

// ParseCSV reads a CSV document whose first record is the header. Empty and
// NA-like fields are left out of the row, so they read as missing.
func ParseCSV(r io.Reader) ([]string, []models.Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, errors.New("csv: no columns to parse")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("csv: read header: %w", err)
	}
	header = dedupeHeader(header)

	var rows []models.Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("csv: read row: %w", err)
		}
		if len(rec) > len(header) {
			line, _ := cr.FieldPos(0)
			return nil, nil, fmt.Errorf("csv: line %d: expected %d fields, saw %d", line, len(header), len(rec))
		}

		row := make(models.Row, len(rec))
		for i, v := range rec {
			if _, na := naValues[strings.TrimSpace(v)]; na {
				continue
			}
			row[header[i]] = models.NewCell(v)
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// dedupeHeader strips a UTF-8 BOM and renames repeated columns X, X.1, X.2...
func dedupeHeader(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]bool, len(header))
	counts := make(map[string]int)

	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		name := h
		for used[name] {
			counts[h]++
			name = h + "." + strconv.Itoa(counts[h])
		}
		used[name] = true
		out[i] = name
	}
	return out
}
