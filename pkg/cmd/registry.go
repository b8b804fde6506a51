// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/procshift/pkg/definition"
)

// NewRegistry returns a definition registry holding every document found in
// definitionsPath. An empty path yields an empty registry.
func NewRegistry(ctx context.Context, log *slog.Logger, definitionsPath string) (*definition.Registry, error) {
	reg := definition.NewRegistry(log)

	if definitionsPath == "" {
		return reg, nil
	}

	count, err := reg.LoadDir(definitionsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load process definitions: %w", err)
	}

	log.InfoContext(ctx, "Loaded process definitions", "path", definitionsPath, "count", count)

	return reg, nil
}
