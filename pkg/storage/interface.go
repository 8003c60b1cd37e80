package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/filmlog-scraper/pkg/models"
)

// CatalogCache holds catalog API results between runs
type CatalogCache interface {
	// GetCatalog decodes the cached value for key into out.
	// Returns false when the key is absent or expired.
	GetCatalog(key string, out any) (found bool, err error)

	// PutCatalog stores v under key; ttl <= 0 keeps it forever
	PutCatalog(key string, v any, ttl time.Duration) error

	// DropCatalog removes every cached catalog entry
	DropCatalog() error
}

// CheckpointStore persists the progress of a run so collected records survive a crash
type CheckpointStore interface {
	// SaveCheckpoint writes cp under its run ID and marks it as the latest run
	SaveCheckpoint(cp *models.RunCheckpoint) error

	// LoadCheckpoint returns the checkpoint for runID, or the latest one when runID is empty.
	// Returns (nil, nil) when nothing has been saved.
	LoadCheckpoint(runID string) (*models.RunCheckpoint, error)
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// CountKeys returns the number of live keys with the given prefix ("" for all)
	CountKeys(prefix string) (int, error)

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// Store combines all store interfaces for components that need full access
type Store interface {
	CatalogCache
	CheckpointStore
	StoreAdmin
}
