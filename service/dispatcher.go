package service

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/harshraj78/legal-check-ai/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// ErrDispatcherStopped is returned by Submit after Stop has been called.
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// RunFunc processes one contract id.
type RunFunc func(ctx context.Context, id string)

// Dispatcher runs contract ids on a fixed set of workers fed by a bounded
// queue. Submit never waits for a worker.
type Dispatcher struct {
	run     RunFunc
	workers int
	queue   chan string

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu       sync.RWMutex
	closed   bool
	overflow sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
	done     chan struct{}
}

func NewDispatcher(run RunFunc, workers, queueSize int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		run:     run,
		workers: workers,
		queue:   make(chan string, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start launches the workers. Running tasks are canceled when parent is done
// or when Stop gives up waiting.
func (d *Dispatcher) Start(parent context.Context) {
	context.AfterFunc(parent, d.cancel)
	d.group = &errgroup.Group{}
	for i := 0; i < d.workers; i++ {
		worker := i
		d.group.Go(func() error {
			for id := range d.queue {
				d.runOne(worker, id)
			}
			return nil
		})
	}
	slog.Info("dispatcher started", "workers", d.workers, "queue_size", cap(d.queue))
}

func (d *Dispatcher) runOne(worker int, id string) {
	ctx := logger.WithContractID(d.ctx, id)
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "task panic recovered", "worker", worker, "error", r, "stack", string(debug.Stack()))
		}
	}()
	d.run(ctx, id)
}

// Submit schedules id. When the queue is full the id is handed to a goroutine
// that waits for space, so the caller is never blocked.
func (d *Dispatcher) Submit(id string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherStopped
	}

	select {
	case d.queue <- id:
	default:
		d.overflow.Add(1)
		go func() {
			defer d.overflow.Done()
			select {
			case d.queue <- id:
			case <-d.ctx.Done():
				slog.Warn("dispatcher stopped before task was queued", "contract_id", id)
			}
		}()
	}
	return nil
}

// QueueDepth returns the number of ids waiting for a worker.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// Stop refuses new work and waits for queued and running tasks to finish. If
// ctx expires first, running tasks are canceled and ctx's error is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		go func() {
			d.overflow.Wait()
			close(d.queue)
			if d.group != nil {
				_ = d.group.Wait()
			}
			close(d.done)
		}()

		select {
		case <-d.done:
			slog.Info("dispatcher drained")
		case <-ctx.Done():
			d.stopErr = ctx.Err()
			slog.Warn("dispatcher stop timed out, canceling running tasks", "pending", len(d.queue))
		}
		d.cancel()
	})
	return d.stopErr
}

// Done is closed once every worker has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}
