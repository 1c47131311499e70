package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"esim-dashboard/models"
)

// CSVWriter exports the unified dataset as CSV, using the union of all source
// columns as header. Missing values are written as empty fields.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	closer io.Closer
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path.
// Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	return &CSVWriter{closer: f, writer: csv.NewWriter(f)}, nil
}

// NewCSVWriterTo writes to w. Closing the CSVWriter closes w if it is an io.Closer.
func NewCSVWriterTo(w io.Writer) *CSVWriter {
	c := &CSVWriter{writer: csv.NewWriter(w)}
	if cl, ok := w.(io.Closer); ok {
		c.closer = cl
	}
	return c
}

// Write writes the header row followed by every row of ds.
func (c *CSVWriter) Write(ds *models.Dataset) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ds == nil {
		ds = models.NewDataset()
	}

	if err := c.writer.Write(ds.Columns); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}

	record := make([]string, len(ds.Columns))
	for _, r := range ds.Rows {
		for i, col := range ds.Columns {
			record[i], _ = r.Text(col)
		}
		if err := c.writer.Write(record); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	if c.closer == nil {
		return c.writer.Error()
	}
	return c.closer.Close()
}
