// Package boltdb provides a persistence.Store backed by an embedded bbolt
// database.
package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/dukex/procshift/internal/bboltx"
	"github.com/dukex/procshift/pkg/models"
	"github.com/dukex/procshift/pkg/persistence"
)

var (
	// instancesBucketKey holds one JSON encoded snapshot per instance id.
	instancesBucketKey = []byte("instances")

	// definitionsBucketKey indexes instance ids by definition id. Each key is
	// a definition id whose value is a bucket of instance ids.
	definitionsBucketKey = []byte("definitions")
)

// Store implements persistence.Store on a bbolt database. Every commit runs in
// a single read-write transaction.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the database at path. A "bolt://" prefix is stripped.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := *bbolt.DefaultOptions
	opts.Timeout = time.Second

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < opts.Timeout {
			opts.Timeout = remaining
		}
	}

	db, err := bbolt.Open(strings.TrimPrefix(path, "bolt://"), 0600, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = bboltx.Update(db, func(tx *bbolt.Tx) error {
		bboltx.CreateBucketIfNotExists(tx, instancesBucketKey)
		bboltx.CreateBucketIfNotExists(tx, definitionsBucketKey)

		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize bolt database: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) LoadSnapshot(_ context.Context, instanceID string) (_ *models.Snapshot, err error) {
	defer bboltx.Recover(&err)

	var snapshot *models.Snapshot

	bboltx.View(s.db, func(tx *bbolt.Tx) {
		snapshot = loadSnapshot(tx, instanceID)
	})

	if snapshot == nil {
		return nil, persistence.NewInstanceError("LoadSnapshot", instanceID, persistence.ErrInstanceNotFound)
	}

	return snapshot, nil
}

func (s *Store) Commit(_ context.Context, c *models.Changeset) error {
	if c.InstanceID == "" {
		return persistence.NewInstanceError("Commit", c.InstanceID, persistence.ErrInvalidInstanceID)
	}

	err := bboltx.Update(s.db, func(tx *bbolt.Tx) error {
		current := loadSnapshot(tx, c.InstanceID)

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

		next := models.Apply(current, c)

		data, err := json.Marshal(next)
		bboltx.Must(err)

		bboltx.Put(bboltx.Bucket(tx, instancesBucketKey), []byte(c.InstanceID), data)

		if current != nil && current.Instance.DefinitionID != next.Instance.DefinitionID {
			if index := bboltx.Bucket(tx, definitionsBucketKey, []byte(current.Instance.DefinitionID)); index != nil {
				bboltx.Delete(index, []byte(c.InstanceID))
			}
		}

		index := bboltx.CreateBucketIfNotExists(tx, definitionsBucketKey, []byte(next.Instance.DefinitionID))
		bboltx.Put(index, []byte(c.InstanceID), []byte{})

		return nil
	})

	if err != nil && !persistence.IsConflict(err) {
		return persistence.NewInstanceError("Commit", c.InstanceID, err)
	}

	return err
}

func (s *Store) InstanceIDsByDefinition(_ context.Context, definitionID string) (_ []string, err error) {
	defer bboltx.Recover(&err)

	ids := []string{}

	bboltx.View(s.db, func(tx *bbolt.Tx) {
		index := bboltx.Bucket(tx, definitionsBucketKey, []byte(definitionID))
		if index == nil {
			return
		}

		bboltx.Must(index.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		}))
	})

	return ids, nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(instancesBucketKey) == nil {
			return fmt.Errorf("bolt database is not initialized")
		}

		return nil
	})
}

func (s *Store) Close(_ context.Context) error {
	return s.db.Close()
}

// loadSnapshot returns nil if the instance does not exist.
func loadSnapshot(tx *bbolt.Tx, instanceID string) *models.Snapshot {
	data := bboltx.Bucket(tx, instancesBucketKey).Get([]byte(instanceID))
	if data == nil {
		return nil
	}

	snapshot := models.NewSnapshot(models.ProcessInstance{})
	bboltx.Must(json.Unmarshal(data, snapshot))

	return snapshot
}
