package definition

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(slog.Default())

	def := MustNew(boundaryDocument())
	require.NoError(t, registry.Register(def))

	err := registry.Register(def)
	assert.ErrorIs(t, err, ErrDefinitionExists)

	got, err := registry.GetDefinition(ctx, "process:1")
	require.NoError(t, err)
	assert.Same(t, def, got)

	a, err := registry.GetActivity(ctx, "process:1", "boundary")
	require.NoError(t, err)
	assert.Equal(t, KindBoundaryEvent, a.Kind)

	_, err = registry.GetActivity(ctx, "process:1", "missing")
	assert.ErrorIs(t, err, ErrActivityNotFound)

	_, err = registry.GetDefinition(ctx, "process:9")
	assert.ErrorIs(t, err, ErrDefinitionNotFound)
}

func TestRegistry_Deploy(t *testing.T) {
	registry := NewRegistry(slog.Default())

	first, err := registry.Deploy(boundaryDocument())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version())

	doc := boundaryDocument()
	doc.Version = 42

	second, err := registry.Deploy(doc)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version())

	latest, err := registry.Latest("process")
	require.NoError(t, err)
	assert.Equal(t, "process:2", latest.ID())

	defs := registry.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "process:1", defs[0].ID())
	assert.Equal(t, "process:2", defs[1].ID())

	_, err = registry.Latest("unknown")
	assert.ErrorIs(t, err, ErrDefinitionNotFound)
}

func TestRegistry_DeployInvalid(t *testing.T) {
	registry := NewRegistry(slog.Default())

	_, err := registry.Deploy(Document{Key: "empty", Activities: []Activity{{ID: "x", Kind: "bogus"}}})
	require.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = registry.Latest("empty")
	assert.ErrorIs(t, err, ErrDefinitionNotFound)
}
