// Package reconcile runs imports: it streams batches out of a connector,
// matches records against the CI store per the source's reconciliation
// policy, merges changes, and keeps the run's ImportLog and audit artifacts
// current after every batch.
package reconcile

import (
	"context"
	"time"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

// Store is the persistence surface a run needs. *db.Client satisfies it; the
// service tests use an in-memory fake.
type Store interface {
	GetSource(ctx context.Context, id int64) (*models.ImportSource, error)

	// Find methods return (nil, nil) when nothing matches.
	FindCIByExternalID(ctx context.Context, externalID string, sourceID int64) (*models.ConfigurationItem, error)
	FindCIByField(ctx context.Context, field, value string, caseInsensitive bool) (*models.ConfigurationItem, error)
	FindCIByName(ctx context.Context, name string) (*models.ConfigurationItem, error)

	CreateCI(ctx context.Context, ci *models.ConfigurationItem) error
	UpdateCI(ctx context.Context, ci *models.ConfigurationItem) error

	CreateImportLog(ctx context.Context, l *models.ImportLog) error
	UpdateImportLog(ctx context.Context, l *models.ImportLog) error

	SetSourceLastRun(ctx context.Context, id int64, t time.Time) error

	// CreateRelationship is idempotent; created reports whether a new row was
	// written.
	CreateRelationship(ctx context.Context, r *models.Relationship) (created bool, err error)
}
