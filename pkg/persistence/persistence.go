// Package persistence provides the storage contract for process instance
// records and its implementations.
package persistence

import (
	"context"

	"github.com/dukex/procshift/pkg/models"
)

// Store persists the records of process instances. Every write goes through
// Commit, which applies a whole changeset atomically.
type Store interface {
	// LoadSnapshot returns a consistent view of every record of the instance.
	// It returns ErrInstanceNotFound when the instance does not exist.
	LoadSnapshot(ctx context.Context, instanceID string) (*models.Snapshot, error)

	// Commit applies the changeset atomically if the persisted revision of the
	// instance equals c.ExpectedRevision, where 0 means the instance must not
	// exist yet. On mismatch nothing is written and a *ConflictError is
	// returned. On success the persisted revision is c.ExpectedRevision+1.
	Commit(ctx context.Context, c *models.Changeset) error

	// InstanceIDsByDefinition lists the ids of the instances currently
	// referencing definitionID, ordered by id.
	InstanceIDsByDefinition(ctx context.Context, definitionID string) ([]string, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
