package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/procshift/pkg/models"
)

// MockStore is a mock implementation of persistence.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) LoadSnapshot(ctx context.Context, instanceID string) (*models.Snapshot, error) {
	args := m.Called(ctx, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Snapshot), args.Error(1)
}

func (m *MockStore) Commit(ctx context.Context, c *models.Changeset) error {
	args := m.Called(ctx, c)

	return args.Error(0)
}

func (m *MockStore) InstanceIDsByDefinition(ctx context.Context, definitionID string) ([]string, error) {
	args := m.Called(ctx, definitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
