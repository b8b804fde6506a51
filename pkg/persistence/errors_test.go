package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dukex/procshift/pkg/persistence"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		notFound := persistence.NewInstanceError("LoadSnapshot", "pi-123", persistence.ErrInstanceNotFound)

		assert.True(t, persistence.IsInstanceNotFound(notFound))
		assert.False(t, persistence.IsConflict(notFound))
		assert.True(t, errors.Is(notFound, persistence.ErrInstanceNotFound))
	})

	t.Run("instance error contains context", func(t *testing.T) {
		err := persistence.NewInstanceError("Commit", "pi-123", persistence.ErrInvalidInstanceID)

		assert.Contains(t, err.Error(), "Commit")
		assert.Contains(t, err.Error(), "pi-123")
		assert.Contains(t, err.Error(), "invalid process instance id")
	})

	t.Run("conflict error matches sentinel through wrapping", func(t *testing.T) {
		conflict := &persistence.ConflictError{InstanceID: "pi-123", ExpectedRevision: 2, ActualRevision: 3}
		wrapped := fmt.Errorf("commit: %w", persistence.NewInstanceError("Commit", "pi-123", conflict))

		assert.True(t, persistence.IsConflict(wrapped))

		var target *persistence.ConflictError
		assert.True(t, errors.As(wrapped, &target))
		assert.Equal(t, uint64(3), target.ActualRevision)
		assert.Contains(t, conflict.Error(), "expected revision 2, found 3")
	})
}
