package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/dukex/procshift/pkg/models"
	"github.com/dukex/procshift/pkg/persistence"
)

const uniqueViolation = pq.ErrorCode("23505")

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// LoadSnapshot reads every record of the instance in one read-only transaction.
func (s *Store) LoadSnapshot(ctx context.Context, instanceID string) (*models.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	instance, err := loadInstance(ctx, tx, instanceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewInstanceError("LoadSnapshot", instanceID, persistence.ErrInstanceNotFound)
	}

	if err != nil {
		return nil, persistence.NewInstanceError("LoadSnapshot", instanceID, err)
	}

	snapshot := models.NewSnapshot(instance)

	loaders := []func(context.Context, queryer, *models.Snapshot) error{
		loadExecutions,
		loadActivityInstances,
		loadEventSubscriptions,
		loadJobs,
		loadVariables,
	}

	for _, load := range loaders {
		if err := load(ctx, tx, snapshot); err != nil {
			return nil, persistence.NewInstanceError("LoadSnapshot", instanceID, err)
		}
	}

	return snapshot, nil
}

// Commit writes the changeset if the instance row still carries the expected
// revision. The row is locked for the duration of the transaction.
func (s *Store) Commit(ctx context.Context, c *models.Changeset) (err error) {
	if c.InstanceID == "" {
		return persistence.NewInstanceError("Commit", c.InstanceID, persistence.ErrInvalidInstanceID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewInstanceError("Commit", c.InstanceID, fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var actual uint64

	err = tx.QueryRowContext(ctx,
		"SELECT revision FROM process_instances WHERE id = $1 FOR UPDATE", c.InstanceID).Scan(&actual)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return persistence.NewInstanceError("Commit", c.InstanceID, fmt.Errorf("failed to lock instance: %w", err))
	}

	if actual != c.ExpectedRevision {
		return &persistence.ConflictError{
			InstanceID:       c.InstanceID,
			ExpectedRevision: c.ExpectedRevision,
			ActualRevision:   actual,
		}
	}

	err = writeInstance(ctx, tx, c)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return &persistence.ConflictError{
				InstanceID:       c.InstanceID,
				ExpectedRevision: c.ExpectedRevision,
				ActualRevision:   1,
			}
		}

		return persistence.NewInstanceError("Commit", c.InstanceID, err)
	}

	writers := []func(context.Context, *sql.Tx, *models.Changeset) error{
		writeExecutions,
		writeActivityInstances,
		writeEventSubscriptions,
		writeJobs,
		writeVariables,
	}

	for _, write := range writers {
		if err = write(ctx, tx, c); err != nil {
			return persistence.NewInstanceError("Commit", c.InstanceID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return persistence.NewInstanceError("Commit", c.InstanceID, fmt.Errorf("failed to commit transaction: %w", err))
	}

	s.logger.DebugContext(ctx, "Committed process instance",
		"instance_id", c.InstanceID,
		"revision", c.ExpectedRevision+1)

	return nil
}

func loadInstance(ctx context.Context, q queryer, instanceID string) (models.ProcessInstance, error) {
	var (
		instance models.ProcessInstance
		endedAt  sql.NullTime
	)

	err := q.QueryRowContext(ctx, `
		SELECT id, definition_id, state, business_key, revision, started_at, ended_at
		FROM process_instances WHERE id = $1
	`, instanceID).Scan(
		&instance.ID,
		&instance.DefinitionID,
		&instance.State,
		&instance.BusinessKey,
		&instance.Revision,
		&instance.StartedAt,
		&endedAt,
	)
	if err != nil {
		return instance, err
	}

	instance.StartedAt = instance.StartedAt.UTC()

	if endedAt.Valid {
		t := endedAt.Time.UTC()
		instance.EndedAt = &t
	}

	return instance, nil
}

func loadExecutions(ctx context.Context, q queryer, s *models.Snapshot) error {
	return scanRows(ctx, q, `
		SELECT id, parent_id, definition_id, activity_id, variable_scope_id, is_scope
		FROM executions WHERE process_instance_id = $1
	`, s.Instance.ID, func(rows *sql.Rows) error {
		e := models.Execution{ProcessInstanceID: s.Instance.ID}

		err := rows.Scan(&e.ID, &e.ParentID, &e.DefinitionID, &e.ActivityID, &e.VariableScopeID, &e.IsScope)
		if err != nil {
			return fmt.Errorf("failed to scan execution: %w", err)
		}

		s.Executions[e.ID] = e

		return nil
	})
}

func loadActivityInstances(ctx context.Context, q queryer, s *models.Snapshot) error {
	return scanRows(ctx, q, `
		SELECT id, activity_id, parent_id, execution_id
		FROM activity_instances WHERE process_instance_id = $1
	`, s.Instance.ID, func(rows *sql.Rows) error {
		var ai models.ActivityInstance

		err := rows.Scan(&ai.ID, &ai.ActivityID, &ai.ParentID, &ai.ExecutionID)
		if err != nil {
			return fmt.Errorf("failed to scan activity instance: %w", err)
		}

		s.ActivityInstances[ai.ID] = ai

		return nil
	})
}

func loadEventSubscriptions(ctx context.Context, q queryer, s *models.Snapshot) error {
	return scanRows(ctx, q, `
		SELECT id, kind, event_name, activity_id, execution_id, created_at
		FROM event_subscriptions WHERE process_instance_id = $1
	`, s.Instance.ID, func(rows *sql.Rows) error {
		sub := models.EventSubscription{ProcessInstanceID: s.Instance.ID}

		err := rows.Scan(&sub.ID, &sub.Kind, &sub.EventName, &sub.ActivityID, &sub.ExecutionID, &sub.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to scan event subscription: %w", err)
		}

		sub.CreatedAt = sub.CreatedAt.UTC()
		s.EventSubscriptions[sub.ID] = sub

		return nil
	})
}

func loadJobs(ctx context.Context, q queryer, s *models.Snapshot) error {
	return scanRows(ctx, q, `
		SELECT id, kind, due_time, activity_id, execution_id, retries
		FROM jobs WHERE process_instance_id = $1
	`, s.Instance.ID, func(rows *sql.Rows) error {
		job := models.Job{ProcessInstanceID: s.Instance.ID}

		err := rows.Scan(&job.ID, &job.Kind, &job.DueTime, &job.ActivityID, &job.ExecutionID, &job.Retries)
		if err != nil {
			return fmt.Errorf("failed to scan job: %w", err)
		}

		job.DueTime = job.DueTime.UTC()
		s.Jobs[job.ID] = job

		return nil
	})
}

func loadVariables(ctx context.Context, q queryer, s *models.Snapshot) error {
	return scanRows(ctx, q, `
		SELECT scope_id, payload FROM variables WHERE process_instance_id = $1
	`, s.Instance.ID, func(rows *sql.Rows) error {
		var (
			scopeID string
			payload []byte
		)

		if err := rows.Scan(&scopeID, &payload); err != nil {
			return fmt.Errorf("failed to scan variables: %w", err)
		}

		vars := map[string]any{}
		if err := json.Unmarshal(payload, &vars); err != nil {
			return fmt.Errorf("failed to unmarshal variables of scope %s: %w", scopeID, err)
		}

		s.Variables[scopeID] = vars

		return nil
	})
}

func scanRows(ctx context.Context, q queryer, query, instanceID string, scan func(*sql.Rows) error) error {
	rows, err := q.QueryContext(ctx, query, instanceID)
	if err != nil {
		return fmt.Errorf("failed to query: %w", err)
	}

	defer func() { _ = rows.Close() }()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate rows: %w", err)
	}

	return nil
}

func writeInstance(ctx context.Context, tx *sql.Tx, c *models.Changeset) error {
	instance := c.Instance
	revision := c.ExpectedRevision + 1

	if c.ExpectedRevision == 0 {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO process_instances (id, definition_id, state, business_key, revision, started_at, ended_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, c.InstanceID, instance.DefinitionID, instance.State, instance.BusinessKey, revision, instance.StartedAt, instance.EndedAt)
		if err != nil {
			return fmt.Errorf("failed to insert instance: %w", err)
		}

		return nil
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE process_instances
		SET definition_id = $2, state = $3, business_key = $4, revision = $5, started_at = $6, ended_at = $7
		WHERE id = $1
	`, c.InstanceID, instance.DefinitionID, instance.State, instance.BusinessKey, revision, instance.StartedAt, instance.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}

	return nil
}

func deleteRows(ctx context.Context, tx *sql.Tx, table, instanceID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	column := "id"
	if table == "variables" {
		column = "scope_id"
	}

	_, err := tx.ExecContext(ctx,
		"DELETE FROM "+table+" WHERE process_instance_id = $1 AND "+column+" = ANY($2)",
		instanceID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}

	return nil
}

func writeExecutions(ctx context.Context, tx *sql.Tx, c *models.Changeset) error {
	if err := deleteRows(ctx, tx, "executions", c.InstanceID, c.DeleteExecutions); err != nil {
		return err
	}

	for _, e := range c.PutExecutions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO executions (process_instance_id, id, parent_id, definition_id, activity_id, variable_scope_id, is_scope)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (process_instance_id, id) DO UPDATE SET
				parent_id = EXCLUDED.parent_id,
				definition_id = EXCLUDED.definition_id,
				activity_id = EXCLUDED.activity_id,
				variable_scope_id = EXCLUDED.variable_scope_id,
				is_scope = EXCLUDED.is_scope
		`, c.InstanceID, e.ID, e.ParentID, e.DefinitionID, e.ActivityID, e.VariableScopeID, e.IsScope)
		if err != nil {
			return fmt.Errorf("failed to save execution %s: %w", e.ID, err)
		}
	}

	return nil
}

func writeActivityInstances(ctx context.Context, tx *sql.Tx, c *models.Changeset) error {
	if err := deleteRows(ctx, tx, "activity_instances", c.InstanceID, c.DeleteActivityInstances); err != nil {
		return err
	}

	for _, ai := range c.PutActivityInstances {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO activity_instances (process_instance_id, id, activity_id, parent_id, execution_id)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (process_instance_id, id) DO UPDATE SET
				activity_id = EXCLUDED.activity_id,
				parent_id = EXCLUDED.parent_id,
				execution_id = EXCLUDED.execution_id
		`, c.InstanceID, ai.ID, ai.ActivityID, ai.ParentID, ai.ExecutionID)
		if err != nil {
			return fmt.Errorf("failed to save activity instance %s: %w", ai.ID, err)
		}
	}

	return nil
}

func writeEventSubscriptions(ctx context.Context, tx *sql.Tx, c *models.Changeset) error {
	if err := deleteRows(ctx, tx, "event_subscriptions", c.InstanceID, c.DeleteEventSubscriptions); err != nil {
		return err
	}

	for _, sub := range c.PutEventSubscriptions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO event_subscriptions (process_instance_id, id, kind, event_name, activity_id, execution_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (process_instance_id, id) DO UPDATE SET
				kind = EXCLUDED.kind,
				event_name = EXCLUDED.event_name,
				activity_id = EXCLUDED.activity_id,
				execution_id = EXCLUDED.execution_id,
				created_at = EXCLUDED.created_at
		`, c.InstanceID, sub.ID, sub.Kind, sub.EventName, sub.ActivityID, sub.ExecutionID, sub.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save event subscription %s: %w", sub.ID, err)
		}
	}

	return nil
}

func writeJobs(ctx context.Context, tx *sql.Tx, c *models.Changeset) error {
	if err := deleteRows(ctx, tx, "jobs", c.InstanceID, c.DeleteJobs); err != nil {
		return err
	}

	for _, job := range c.PutJobs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO jobs (process_instance_id, id, kind, due_time, activity_id, execution_id, retries)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (process_instance_id, id) DO UPDATE SET
				kind = EXCLUDED.kind,
				due_time = EXCLUDED.due_time,
				activity_id = EXCLUDED.activity_id,
				execution_id = EXCLUDED.execution_id,
				retries = EXCLUDED.retries
		`, c.InstanceID, job.ID, job.Kind, job.DueTime, job.ActivityID, job.ExecutionID, job.Retries)
		if err != nil {
			return fmt.Errorf("failed to save job %s: %w", job.ID, err)
		}
	}

	return nil
}

func writeVariables(ctx context.Context, tx *sql.Tx, c *models.Changeset) error {
	if err := deleteRows(ctx, tx, "variables", c.InstanceID, c.DeleteVariables); err != nil {
		return err
	}

	for scopeID, vars := range c.PutVariables {
		if vars == nil {
			vars = map[string]any{}
		}

		payload, err := json.Marshal(vars)
		if err != nil {
			return fmt.Errorf("failed to marshal variables of scope %s: %w", scopeID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO variables (process_instance_id, scope_id, payload)
			VALUES ($1, $2, $3)
			ON CONFLICT (process_instance_id, scope_id) DO UPDATE SET payload = EXCLUDED.payload
		`, c.InstanceID, scopeID, string(payload))
		if err != nil {
			return fmt.Errorf("failed to save variables of scope %s: %w", scopeID, err)
		}
	}

	return nil
}
