// Package task manages the goroutines owned by a connection or device:
// the reader loop, status handlers and pollers.
//
// A Manager ties every goroutine it starts to one cancelable context.
// Stop cancels that context; Wait joins all goroutines.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/go-apt/logger"
	"go.uber.org/atomic"
)

// ErrStopped is returned when a task is started on a stopped Manager.
var ErrStopped = errors.New("task: manager already stopped")

// startTimeout bounds how long Start waits for the goroutine to come up.
const startTimeout = 5 * time.Second

// Func is one iteration of a looping task. It returns false to end the loop.
// ctx is cancelled when the manager is stopped.
type Func func(ctx context.Context) bool

// Manager starts, stops and joins a group of goroutines.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.Mutex // orders wg.Add against Stop
}

// NewManager creates a Manager whose tasks are cancelled when ctx is done
// or Stop is called.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context shared by every task of the manager.
func (mgr *Manager) Context() context.Context {
	return mgr.ctx
}

// Start runs fn in a new goroutine, calling it repeatedly until it returns
// false or the manager is stopped. A panic inside fn is logged and ends the
// task.
func (mgr *Manager) Start(name string, fn Func) error {
	return mgr.Go(name, func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if !mgr.callWithRecover(name, func() bool { return fn(ctx) }) {
				return
			}
		}
	})
}

// Go runs body once in a new goroutine. body must return when ctx is done.
func (mgr *Manager) Go(name string, body func(ctx context.Context)) error {
	mgr.mu.Lock()
	select {
	case <-mgr.ctx.Done():
		mgr.mu.Unlock()
		return fmt.Errorf("%w: cannot start %s", ErrStopped, name)
	default:
	}
	mgr.wg.Add(1)
	mgr.mu.Unlock()

	started := make(chan struct{})

	go func() {
		defer mgr.wg.Done()

		mgr.count.Inc()
		close(started)

		defer func() {
			mgr.count.Dec()
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
		}()

		body(mgr.ctx)
	}()

	select {
	case <-started:
		mgr.logger.Debug("task started", "name", name)
		return nil
	case <-time.After(startTimeout):
		return fmt.Errorf("task: timeout waiting for %s to start", name)
	}
}

// StartConsumer runs fn for every value received from in until in is
// closed or the manager is stopped. Panics in fn are logged and the
// consumer keeps going.
func StartConsumer[T any](mgr *Manager, name string, in <-chan T, fn func(T)) error {
	if in == nil {
		return fmt.Errorf("task: input channel of %s is nil", name)
	}

	return mgr.Go(name, func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					return
				}

				mgr.callWithRecover(name, func() bool {
					fn(v)
					return true
				})
			}
		}
	})
}

// Stop cancels the context of every task. It does not wait for them.
// No task can be started after Stop returns.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	mgr.cancel()
}

// Wait blocks until all tasks have returned. Call it after Stop, or when
// every task is known to end on its own.
func (mgr *Manager) Wait() {
	mgr.wg.Wait()
}

// WaitTimeout is Wait bounded by d. It reports whether every task returned.
func (mgr *Manager) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		mgr.Wait()
		close(done)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// TaskCount returns the number of running tasks.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) callWithRecover(name string, fn func() bool) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			cont = false
		}
	}()

	return fn()
}
