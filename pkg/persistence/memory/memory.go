// Package memory provides an in-memory persistence.Store.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dukex/procshift/pkg/models"
	"github.com/dukex/procshift/pkg/persistence"
)

// Store keeps every instance snapshot in memory. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	instances map[string]*models.Snapshot
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{instances: map[string]*models.Snapshot{}}
}

func (s *Store) LoadSnapshot(_ context.Context, instanceID string) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.instances[instanceID]
	if !ok {
		return nil, persistence.NewInstanceError("LoadSnapshot", instanceID, persistence.ErrInstanceNotFound)
	}

	return snapshot.Clone(), nil
}

func (s *Store) Commit(_ context.Context, c *models.Changeset) error {
	if c.InstanceID == "" {
		return persistence.NewInstanceError("Commit", c.InstanceID, persistence.ErrInvalidInstanceID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.instances[c.InstanceID]

	var actual uint64
	if current != nil {
		actual = current.Instance.Revision
	}

	if actual != c.ExpectedRevision {
		return &persistence.ConflictError{
			InstanceID:       c.InstanceID,
			ExpectedRevision: c.ExpectedRevision,
			ActualRevision:   actual,
		}
	}

	s.instances[c.InstanceID] = models.Apply(current, c)

	return nil
}

func (s *Store) InstanceIDsByDefinition(_ context.Context, definitionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []string{}

	for id, snapshot := range s.instances {
		if snapshot.Instance.DefinitionID == definitionID {
			ids = append(ids, id)
		}
	}

	slices.Sort(ids)

	return ids, nil
}

func (s *Store) HealthCheck(context.Context) error {
	return nil
}

func (s *Store) Close(context.Context) error {
	return nil
}
