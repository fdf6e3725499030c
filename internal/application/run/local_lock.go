package run

import (
	"context"
	"sync"

	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
)

// LocalRunLock serializes runs per classroom within a single process.
// Deployments with several instances need the Redis-backed lock instead.
type LocalRunLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalRunLock creates an in-process run lock.
func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{held: make(map[string]struct{})}
}

var _ RunLock = (*LocalRunLock)(nil)

// Acquire takes the classroom lock, or reports a run in progress.
func (l *LocalRunLock) Acquire(ctx context.Context, classroom string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[classroom]; ok {
		return shared.NewDomainError("run", "Acquire", shared.ErrRunInProgress,
			"a run is already processing this classroom")
	}
	l.held[classroom] = struct{}{}
	return nil
}

// Release frees the classroom lock.
func (l *LocalRunLock) Release(ctx context.Context, classroom string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, classroom)
	return nil
}
