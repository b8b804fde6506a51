package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockLocker is a mock implementation of lock.Locker interface.
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Lock(ctx context.Context, instanceID string) (func(), error) {
	args := m.Called(ctx, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(func()), args.Error(1)
}
