// Package file provides file-based persistence of process instances, one JSON
// document per instance.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/procshift/pkg/models"
	"github.com/dukex/procshift/pkg/persistence"
)

// Store implements persistence.Store using the file system. Commits are
// serialized within the process; a document is replaced through an atomic
// rename so readers never see a partial write.
type Store struct {
	root string
	mu   sync.RWMutex
}

// NewStore creates a new Store with the specified root directory.
func NewStore(root string) *Store {
	return &Store{root: strings.Replace(root, "file://", "", 1)}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (s *Store) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the root directory exists.
func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (s *Store) LoadSnapshot(_ context.Context, instanceID string) (*models.Snapshot, error) {
	if err := validateInstanceID(instanceID); err != nil {
		return nil, persistence.NewInstanceError("LoadSnapshot", instanceID, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, err := s.read(instanceID)
	if err != nil {
		return nil, persistence.NewInstanceError("LoadSnapshot", instanceID, err)
	}

	if snapshot == nil {
		return nil, persistence.NewInstanceError("LoadSnapshot", instanceID, persistence.ErrInstanceNotFound)
	}

	return snapshot, nil
}

func (s *Store) Commit(_ context.Context, c *models.Changeset) error {
	if err := validateInstanceID(c.InstanceID); err != nil {
		return persistence.NewInstanceError("Commit", c.InstanceID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(c.InstanceID)
	if err != nil {
		return persistence.NewInstanceError("Commit", c.InstanceID, err)
	}

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

	if err := s.write(models.Apply(current, c)); err != nil {
		return persistence.NewInstanceError("Commit", c.InstanceID, err)
	}

	return nil
}

func (s *Store) InstanceIDsByDefinition(_ context.Context, definitionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jsonFiles, err := fs.Glob(os.DirFS(s.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list instance files: %w", err)
	}

	ids := []string{}

	for _, file := range jsonFiles {
		snapshot, err := s.read(strings.TrimSuffix(file, ".json"))
		if err != nil {
			return nil, err
		}

		if snapshot != nil && snapshot.Instance.DefinitionID == definitionID {
			ids = append(ids, snapshot.Instance.ID)
		}
	}

	slices.Sort(ids)

	return ids, nil
}

func (s *Store) dir() string {
	return filepath.Join(s.root, "instances")
}

func (s *Store) path(instanceID string) string {
	return filepath.Join(s.dir(), instanceID+".json")
}

// read returns nil without error when the instance has no document.
func (s *Store) read(instanceID string) (*models.Snapshot, error) {
	body, err := os.ReadFile(s.path(instanceID)) // #nosec G304 -- instance id is validated
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read instance %s: %w", instanceID, err)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance %s: %w", instanceID, err)
	}

	normalize(&snapshot)

	return &snapshot, nil
}

func (s *Store) write(snapshot *models.Snapshot) error {
	if err := os.MkdirAll(s.dir(), 0750); err != nil {
		return fmt.Errorf("failed to create instances directory: %w", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal instance %s: %w", snapshot.Instance.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir(), snapshot.Instance.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write instance %s: %w", snapshot.Instance.ID, err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync instance %s: %w", snapshot.Instance.ID, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close instance %s: %w", snapshot.Instance.ID, err)
	}

	return os.Rename(tmp.Name(), s.path(snapshot.Instance.ID))
}

// validateInstanceID validates that the instance ID is safe for file operations.
func validateInstanceID(instanceID string) error {
	if instanceID == "" {
		return fmt.Errorf("%w: empty", persistence.ErrInvalidInstanceID)
	}

	if strings.Contains(instanceID, "..") || strings.ContainsAny(instanceID, `/\`) {
		return fmt.Errorf("%w: %q contains path characters", persistence.ErrInvalidInstanceID, instanceID)
	}

	return nil
}

func normalize(s *models.Snapshot) {
	if s.Executions == nil {
		s.Executions = map[string]models.Execution{}
	}

	if s.ActivityInstances == nil {
		s.ActivityInstances = map[string]models.ActivityInstance{}
	}

	if s.EventSubscriptions == nil {
		s.EventSubscriptions = map[string]models.EventSubscription{}
	}

	if s.Jobs == nil {
		s.Jobs = map[string]models.Job{}
	}

	if s.Variables == nil {
		s.Variables = map[string]map[string]any{}
	}
}
