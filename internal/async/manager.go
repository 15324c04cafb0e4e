// Package async tracks outstanding phase work for the cluster pipeline.
package async

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrTerminated is returned by tasks launched after Terminate.
var ErrTerminated = eris.New("async: manager terminated")

// Task is one unit of work inside a phase.
type Task func(ctx context.Context) error

// Manager fans tasks out onto a bounded worker pool and reports when every
// launched group has finished. A task failure is recorded and never aborts
// its siblings; phase barriers only wait for completion.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	limit  int

	pending atomic.Int64
	wg      sync.WaitGroup
	wake    chan struct{}

	mu   sync.Mutex
	errs []error

	terminated atomic.Bool
	stopOnce   sync.Once
	log        *zap.Logger
}

// New creates a manager bounded to maxWorkers concurrent tasks per group.
// A non-positive maxWorkers leaves groups unbounded.
func New(parent context.Context, maxWorkers int) *Manager {
	ctx, cancel := context.WithCancel(parent)
	if maxWorkers <= 0 {
		maxWorkers = -1
	}
	return &Manager{
		ctx:    ctx,
		cancel: cancel,
		limit:  maxWorkers,
		wake:   make(chan struct{}, 1),
		log:    zap.L().With(zap.String("component", "async")),
	}
}

// Launch starts a group of tasks. The manager is not idle until every task
// of the group has returned. Tasks may launch further groups; the new group
// is counted before the launching task returns.
func (m *Manager) Launch(name string, tasks ...Task) {
	if m.terminated.Load() {
		m.record(eris.Wrap(ErrTerminated, name))
		return
	}
	if len(tasks) == 0 {
		return
	}

	m.pending.Add(1)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		g, gctx := errgroup.WithContext(m.ctx)
		g.SetLimit(m.limit)
		for i, task := range tasks {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return nil
				}
				if err := task(gctx); err != nil {
					m.log.Warn("task failed",
						zap.String("group", name),
						zap.Int("task", i),
						zap.Error(err),
					)
					m.record(eris.Wrapf(err, "%s[%d]", name, i))
				}
				return nil // don't abort the group on individual failure
			})
		}
		_ = g.Wait()

		m.pending.Add(-1)
		m.Wake()
	}()
}

// Idle reports whether no launched group is still running.
func (m *Manager) Idle() bool {
	return m.pending.Load() == 0
}

// Pending returns the number of groups still running.
func (m *Manager) Pending() int {
	return int(m.pending.Load())
}

// Wake signals the driver that state may have changed. It never blocks.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// WakeC is signalled whenever a group finishes or Wake is called.
func (m *Manager) WakeC() <-chan struct{} {
	return m.wake
}

// Errors drains the task errors recorded so far.
func (m *Manager) Errors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.errs
	m.errs = nil
	return out
}

// Wait blocks until every launched group has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Terminate cancels outstanding work and waits for it to drain. Safe to call
// more than once.
func (m *Manager) Terminate() {
	m.stopOnce.Do(func() {
		m.terminated.Store(true)
		m.cancel()
		m.wg.Wait()
	})
}

// Terminated reports whether Terminate has been called.
func (m *Manager) Terminated() bool {
	return m.terminated.Load()
}

// Context is cancelled on Terminate.
func (m *Manager) Context() context.Context {
	return m.ctx
}

func (m *Manager) record(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
}
