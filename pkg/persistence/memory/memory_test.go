package memory_test

import (
	"testing"

	"github.com/dukex/procshift/pkg/persistence"
	"github.com/dukex/procshift/pkg/persistence/memory"
	"github.com/dukex/procshift/pkg/persistence/persistencetest"
)

func TestStore(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Store {
		return memory.NewStore()
	})
}
