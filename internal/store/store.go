package store

import (
	"context"

	"questionpaper-ingest/internal/models"
)

// Store is the document collection the ingestor reads from and appends to.
type Store interface {
	// FindByURL returns every record whose url field equals url exactly.
	FindByURL(ctx context.Context, url string) ([]models.Record, error)

	// Insert appends rec as a new document and returns its ID.
	Insert(ctx context.Context, rec models.Record) (string, error)

	Close() error
}
