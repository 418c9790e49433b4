// Package notify runs fire-and-forget notification tasks on a bounded worker
// queue. Task failures are logged and never reach the caller that queued them.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a unit of outbound delivery work.
type Task func(ctx context.Context) error

// Config controls the worker queue.
type Config struct {
	Workers   int
	QueueSize int
	// Timeout bounds each task. Zero means no per-task deadline.
	Timeout time.Duration
}

type job struct {
	name string
	run  Task
}

// Dispatcher executes queued tasks on a fixed set of workers.
type Dispatcher struct {
	cfg    Config
	logger *slog.Logger
	jobs   chan job

	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
	mu        sync.RWMutex

	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewDispatcher starts cfg.Workers workers.
func NewDispatcher(cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		cfg:    cfg,
		logger: logger,
		jobs:   make(chan job, cfg.QueueSize),
	}
	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.execute(j)
	}
}

func (d *Dispatcher) execute(j job) {
	ctx := context.Background()
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("notification task panicked", "task", j.name, "panic", r)
		}
	}()
	if err := j.run(ctx); err != nil {
		d.failed.Add(1)
		d.logger.Warn("notification delivery failed", "task", j.name, "error", err)
	}
}

// Go queues a task. When the queue is full or the dispatcher is closed the
// task is dropped and logged.
func (d *Dispatcher) Go(name string, task Task) {
	if d == nil || task == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		d.dropped.Add(1)
		d.logger.Warn("notification dropped after close", "task", name)
		return
	}
	select {
	case d.jobs <- job{name: name, run: task}:
	default:
		d.dropped.Add(1)
		d.logger.Warn("notification queue full", "task", name)
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed.Store(true)
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

// Failed returns how many tasks returned an error or panicked.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}

// Dropped returns how many tasks were never run.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
