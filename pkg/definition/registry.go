package definition

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Provider supplies parsed process definitions. Definitions are immutable, so
// callers may cache what they get.
type Provider interface {
	GetDefinition(ctx context.Context, id string) (*Definition, error)
	GetActivity(ctx context.Context, definitionID, activityID string) (Activity, error)
}

// Registry is an in-memory Provider holding every registered version of every
// definition key.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
	latest      map[string]int
	logger      *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		definitions: map[string]*Definition{},
		latest:      map[string]int{},
		logger:      logger.With("module", "definition_registry"),
	}
}

// Register adds def under its own id.
func (r *Registry) Register(def *Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.definitions[def.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDefinitionExists, def.ID())
	}

	r.definitions[def.ID()] = def
	if def.Version() > r.latest[def.Key()] {
		r.latest[def.Key()] = def.Version()
	}

	r.logger.Debug("Registered process definition", "definition_id", def.ID(), "activities", len(def.declared))

	return nil
}

// Deploy registers doc as the next version of its key, ignoring doc.Version.
func (r *Registry) Deploy(doc Document) (*Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc.Version = r.latest[doc.Key] + 1

	def, err := New(doc)
	if err != nil {
		return nil, err
	}

	r.definitions[def.ID()] = def
	r.latest[def.Key()] = def.Version()

	r.logger.Info("Deployed process definition", "definition_id", def.ID())

	return def, nil
}

// Latest returns the highest registered version of key.
func (r *Registry) Latest(key string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	version, ok := r.latest[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, key)
	}

	return r.definitions[FormatID(key, version)], nil
}

// Definitions returns every registered definition ordered by key and version.
func (r *Registry) Definitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0, len(r.definitions))
	for _, def := range r.definitions {
		out = append(out, def)
	}

	slices.SortFunc(out, func(a, b *Definition) int {
		return cmp.Or(cmp.Compare(a.Key(), b.Key()), cmp.Compare(a.Version(), b.Version()))
	})

	return out
}

// GetDefinition implements Provider.
func (r *Registry) GetDefinition(_ context.Context, id string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.definitions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}

	return def, nil
}

// GetActivity implements Provider.
func (r *Registry) GetActivity(ctx context.Context, definitionID, activityID string) (Activity, error) {
	def, err := r.GetDefinition(ctx, definitionID)
	if err != nil {
		return Activity{}, err
	}

	a, ok := def.Activity(activityID)
	if !ok {
		return Activity{}, fmt.Errorf("%w: %s in %s", ErrActivityNotFound, activityID, definitionID)
	}

	return a, nil
}

// LoadDir registers every .yaml, .yml and .json definition document in dir.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read definitions directory %s: %w", dir, err)
	}

	count := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}

		def, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return count, err
		}

		if err := r.Register(def); err != nil {
			return count, err
		}

		count++
	}

	return count, nil
}
