package storage

import "esim-dashboard/models"

// DatasetWriter is the interface any storage backend must satisfy.
type DatasetWriter interface {
	Write(ds *models.Dataset) error
	Close() error
}

// DatasetReader reads back a previously stored dataset.
type DatasetReader interface {
	FetchAll() (*models.Dataset, error)
}
