// Package lock provides per process instance mutual exclusion shared by the
// migrator and the runtime.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotHeld is returned when releasing a lock that expired or was taken over.
var ErrNotHeld = errors.New("lock not held")

// Locker serializes work on a single process instance. The returned unlock
// function must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, instanceID string) (func(), error)
}

// Local is an in-process Locker. Each key is guarded by a one slot channel so
// waiting honors context cancellation.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch      chan struct{}
	waiters int
}

// NewLocal creates an empty in-process locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) Lock(ctx context.Context, instanceID string) (func(), error) {
	l.mu.Lock()

	s, ok := l.slots[instanceID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[instanceID] = s
	}

	s.waiters++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(instanceID, s, false)

		return nil, ctx.Err()
	}

	var once sync.Once

	return func() {
		once.Do(func() { l.release(instanceID, s, true) })
	}, nil
}

func (l *Local) release(instanceID string, s *slot, held bool) {
	if held {
		<-s.ch
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s.waiters--
	if s.waiters == 0 {
		delete(l.slots, instanceID)
	}
}

// Size returns the number of keys currently held or waited on.
func (l *Local) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.slots)
}
