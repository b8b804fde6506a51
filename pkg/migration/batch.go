package migration

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/dukex/procshift/pkg/events"
	"github.com/dukex/procshift/pkg/otelhelper"
)

const (
	DefaultWorkers    = 4
	DefaultMaxRetries = 3
)

// Status is the final state of one instance in a batch.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled" // Never started because the batch was cancelled
)

// Outcome reports what happened to one instance of a batch.
type Outcome struct {
	InstanceID string `json:"instance_id"`
	Status     Status `json:"status"`
	Err        error  `json:"-"`
	Attempts   int    `json:"attempts"`
}

// Batch applies one plan to many instances. Instances are independent: a
// failure of one never affects the others.
type Batch struct {
	migrator   *Migrator
	workers    int
	maxRetries int
	logger     *slog.Logger
}

type BatchOption func(*Batch)

// WithWorkers bounds the number of instances migrated in parallel.
func WithWorkers(n int) BatchOption {
	return func(b *Batch) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithMaxRetries sets how often an instance is retried after losing a commit
// race. 0 disables retries.
func WithMaxRetries(n int) BatchOption {
	return func(b *Batch) {
		if n >= 0 {
			b.maxRetries = n
		}
	}
}

func NewBatch(migrator *Migrator, opts ...BatchOption) *Batch {
	b := &Batch{
		migrator:   migrator,
		workers:    DefaultWorkers,
		maxRetries: DefaultMaxRetries,
	}

	for _, opt := range opts {
		opt(b)
	}

	b.logger = migrator.logger.With("component", "batch")

	return b
}

// ExecuteAll migrates every instance and returns one outcome per distinct id.
// Cancelling ctx stops new instances from starting; instances already being
// migrated run to completion.
func (b *Batch) ExecuteAll(ctx context.Context, plan *Plan, instanceIDs []string) map[string]Outcome {
	ctx, span := otelhelper.StartSpan(ctx, b.migrator.tracer, "migration.batch",
		attribute.String(otelhelper.PlanIDKey, plan.ID()),
		attribute.Int(otelhelper.BatchSizeKey, len(instanceIDs)),
	)
	defer span.End()

	started := time.Now()

	var mu sync.Mutex

	outcomes := make(map[string]Outcome, len(instanceIDs))

	record := func(o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		outcomes[o.InstanceID] = o
	}

	// Started instances run to completion after ctx is cancelled.
	runCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(b.workers)

	seen := map[string]bool{}

	for _, id := range instanceIDs {
		if seen[id] {
			continue
		}

		seen[id] = true

		if ctx.Err() != nil {
			record(Outcome{InstanceID: id, Status: StatusCancelled, Err: ctx.Err()})
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				record(Outcome{InstanceID: id, Status: StatusCancelled, Err: err})
				return nil
			}

			record(b.migrate(runCtx, plan, id))

			return nil
		})
	}

	_ = g.Wait()

	completed := events.MigrationBatchCompleted{
		BaseEvent: events.NewBaseEvent(events.MigrationBatchCompletedEvent, ""),
		PlanID:    plan.ID(),
		Total:     len(outcomes),
		Duration:  time.Since(started),
	}

	for _, o := range outcomes {
		switch o.Status {
		case StatusSucceeded:
			completed.Succeeded++
		case StatusFailed:
			completed.Failed++
		case StatusCancelled:
			completed.Cancelled++
		}
	}

	b.logger.InfoContext(ctx, "Migration batch completed",
		"plan_id", plan.ID(),
		"total", completed.Total,
		"succeeded", completed.Succeeded,
		"failed", completed.Failed,
		"cancelled", completed.Cancelled,
		"duration", completed.Duration,
	)

	b.migrator.publish(ctx, plan.ID(), completed)

	return outcomes
}

func (b *Batch) migrate(ctx context.Context, plan *Plan, instanceID string) Outcome {
	outcome := Outcome{InstanceID: instanceID}

	for {
		outcome.Attempts++

		_, err := b.migrator.Apply(ctx, plan, instanceID)
		if err == nil {
			outcome.Status = StatusSucceeded
			outcome.Err = nil

			return outcome
		}

		outcome.Status = StatusFailed
		outcome.Err = err

		if !IsRetryable(err) || outcome.Attempts > b.maxRetries {
			return outcome
		}

		b.logger.DebugContext(ctx, "Retrying process instance after concurrent modification",
			"process_instance_id", instanceID,
			"attempt", outcome.Attempts,
		)
	}
}
