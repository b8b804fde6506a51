package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/procshift/pkg/persistence"
	"github.com/dukex/procshift/pkg/persistence/boltdb"
	"github.com/dukex/procshift/pkg/persistence/file"
	"github.com/dukex/procshift/pkg/persistence/memory"
	"github.com/dukex/procshift/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"memory", "file", "bolt", "postgres", "postgresql"}

// NewPersistence opens the store selected by the scheme of databaseURL. A URL
// without a known scheme is treated as a file store directory.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Store, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "memory":
		return memory.NewStore(), nil
	case "bolt":
		store, err := boltdb.Open(ctx, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt store: %w", err)
		}

		return store, nil
	case "postgres", "postgresql":
		store, err := postgresql.NewStore(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}

		return store, nil
	default:
		return file.NewStore(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
