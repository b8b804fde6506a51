package services

import (
	"context"

	"github.com/dukex/procshift/pkg/models"
	"github.com/dukex/procshift/pkg/runtime"
	"github.com/dukex/procshift/pkg/tree"
)

// Instances drives process instances through the runtime and returns their
// read model after every step.
type Instances struct {
	engine *runtime.Engine
}

// NewInstances creates a new process instance service.
func NewInstances(engine *runtime.Engine) *Instances {
	return &Instances{engine: engine}
}

// Start creates an instance of definitionID. With activityIDs the instance is
// started directly at those activities instead of the start events.
func (i *Instances) Start(ctx context.Context, definitionID string, activityIDs []string, vars map[string]any) (*InstanceTree, error) {
	if definitionID == "" {
		return nil, NewValidationError("Start", "DEFINITION_ID_REQUIRED", "definition id is required", ErrInvalidRequest)
	}

	var (
		s   *models.Snapshot
		err error
	)

	if len(activityIDs) > 0 {
		s, err = i.engine.StartAt(ctx, definitionID, activityIDs, vars)
	} else {
		s, err = i.engine.Start(ctx, definitionID, vars)
	}

	if err != nil {
		return nil, err
	}

	return describe(s), nil
}

func (i *Instances) Complete(ctx context.Context, instanceID, activityInstanceID string) (*InstanceTree, error) {
	return i.step("Complete", instanceID, func() (*models.Snapshot, error) {
		return i.engine.Complete(ctx, instanceID, activityInstanceID)
	})
}

func (i *Instances) CorrelateMessage(ctx context.Context, instanceID, name string) (*InstanceTree, error) {
	return i.step("CorrelateMessage", instanceID, func() (*models.Snapshot, error) {
		return i.engine.CorrelateMessage(ctx, instanceID, name)
	})
}

func (i *Instances) SendSignal(ctx context.Context, instanceID, name string) (*InstanceTree, error) {
	return i.step("SendSignal", instanceID, func() (*models.Snapshot, error) {
		return i.engine.SendSignal(ctx, instanceID, name)
	})
}

func (i *Instances) ExecuteJob(ctx context.Context, instanceID, jobID string) (*InstanceTree, error) {
	return i.step("ExecuteJob", instanceID, func() (*models.Snapshot, error) {
		return i.engine.ExecuteJob(ctx, instanceID, jobID)
	})
}

func (i *Instances) step(op, instanceID string, fn func() (*models.Snapshot, error)) (*InstanceTree, error) {
	if instanceID == "" {
		return nil, NewValidationError(op, "INSTANCE_ID_REQUIRED", "process instance id is required", ErrInstanceIDRequired)
	}

	s, err := fn()
	if err != nil {
		return nil, err
	}

	return describe(s), nil
}

func describe(s *models.Snapshot) *InstanceTree {
	t := tree.New(s)

	return &InstanceTree{
		ProcessInstance:    s.Instance,
		Executions:         tree.DescribeExecutions(s),
		ActivityInstances:  tree.DescribeActivityInstances(s),
		EventSubscriptions: t.EventSubscriptions(),
		Jobs:               t.Jobs(),
	}
}
