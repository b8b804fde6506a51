package main

import (
	"context"
	"fmt"
	"log/slog"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/dukex/procshift/pkg/cmd"
	"github.com/dukex/procshift/pkg/definition"
	"github.com/dukex/procshift/pkg/eventbus"
	"github.com/dukex/procshift/pkg/lock"
	"github.com/dukex/procshift/pkg/migration"
	"github.com/dukex/procshift/pkg/otelhelper"
	"github.com/dukex/procshift/pkg/persistence"
	"github.com/dukex/procshift/pkg/runtime"
	"github.com/dukex/procshift/pkg/services"
)

// components holds the collaborators shared by every command.
type components struct {
	logger   *slog.Logger
	registry *definition.Registry
	store    persistence.Store
	locker   lock.Locker
	eventBus eventbus.EventBus
	tracer   trace.Tracer

	workers    int
	maxRetries int

	closers []func(ctx context.Context) error
}

func newComponents(ctx context.Context, logger *slog.Logger, command *cli.Command) (*components, error) {
	c := &components{
		logger:     logger,
		tracer:     otelhelper.NoopTracer(),
		workers:    command.Int("workers"),
		maxRetries: command.Int("max-retries"),
	}

	registry, err := cmd.NewRegistry(ctx, logger, command.String("definitions-path"))
	if err != nil {
		return nil, err
	}

	c.registry = registry

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, err
	}

	c.store = store
	c.closers = append(c.closers, store.Close)

	locker, closeLocker, err := cmd.NewLocker(ctx, logger, command.String("lock-provider"), command.String("redis-url"))
	if err != nil {
		_ = c.Close(ctx)

		return nil, err
	}

	c.locker = locker
	c.closers = append(c.closers, func(context.Context) error { return closeLocker() })

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		_ = c.Close(ctx)

		return nil, err
	}

	c.eventBus = eventBus
	c.closers = append(c.closers, func(context.Context) error { return eventBus.Close() })

	if command.Bool("tracing") {
		tracer, err := otelhelper.NewTracer(ctx, "procshift")
		if err != nil {
			_ = c.Close(ctx)

			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		c.tracer = tracer
	}

	return c, nil
}

func (c *components) migrator() *migration.Migrator {
	return migration.NewMigrator(c.registry, c.store, c.locker,
		migration.WithLogger(c.logger),
		migration.WithPublisher(c.eventBus),
		migration.WithTracer(c.tracer),
	)
}

func (c *components) migrationService() *services.Migration {
	return services.NewMigration(c.registry, c.store, c.migrator(), c.eventBus, c.logger,
		migration.WithWorkers(c.workers),
		migration.WithMaxRetries(c.maxRetries),
	)
}

func (c *components) instancesService() *services.Instances {
	return services.NewInstances(runtime.NewEngine(c.registry, c.store, c.locker,
		runtime.WithLogger(c.logger),
		runtime.WithPublisher(c.eventBus),
		runtime.WithTracer(c.tracer),
	))
}

// Close releases every opened resource in reverse order.
func (c *components) Close(ctx context.Context) error {
	var errs error

	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, c.closers[i](ctx))
	}

	c.closers = nil

	return errs
}
