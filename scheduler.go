// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Task is a unit of host work.  The context is cancelled when the task's
// handle is cancelled or the scheduler stops.
type Task func(ctx context.Context) error

// Scheduler runs host work.  Schedule must never run the task on the calling
// goroutine; it only enqueues.
type Scheduler interface {
	Schedule(ctx context.Context, task Task) (*TaskHandle, error)
}

// TaskHandle tracks a scheduled Task.
type TaskHandle struct {
	// ID uniquely identifies the task in logs.
	ID uuid.UUID

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func newTaskHandle(parent context.Context) *TaskHandle {
	ctx, cancel := context.WithCancel(parent)
	return &TaskHandle{
		ID:     uuid.New(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Done is closed once the task has returned or was dropped.
func (h *TaskHandle) Done() <-chan struct{} { return h.done }

// Err returns the task's result.  Only valid after Done is closed.
func (h *TaskHandle) Err() error { return h.err }

// Cancel cancels the task's context.  A task that has not started yet is
// dropped; a running task is expected to observe its context.
func (h *TaskHandle) Cancel() { h.cancel() }

func (h *TaskHandle) finish(err error) {
	h.err = err
	h.cancel()
	close(h.done)
}

// workerKey marks contexts handed to tasks by a WorkerPool.
type workerKey struct{}

// onWorker reports whether ctx belongs to a task running on s.
func onWorker(ctx context.Context, s Scheduler) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(workerKey{}).(Scheduler)
	return owner != nil && owner == s
}

// WorkerPool is the default Scheduler: a fixed set of goroutines draining a
// bounded queue.
//
// Thread Safety: all methods are safe for concurrent use.
type WorkerPool struct {
	// Workers is the number of goroutines running tasks.
	// Default: 1.
	Workers int

	// QueueSize bounds the number of tasks waiting to run.  Schedule fails
	// with ErrScheduleRejected when the queue is full.
	// Default: 64.
	QueueSize int

	// Logger is the logger instance (same interface as franz-go).
	// Optional. If nil, a no-op logger will be used.
	Logger kgo.Logger

	mu      sync.RWMutex
	queue   chan *queuedTask
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  kgo.Logger
	started bool
	stopped bool
}

type queuedTask struct {
	handle *TaskHandle
	task   Task
}

// Start launches the workers.
func (wp *WorkerPool) Start() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.started {
		return ErrAlreadyStarted
	}

	workers := wp.Workers
	if workers <= 0 {
		workers = 1
	}
	size := wp.QueueSize
	if size <= 0 {
		size = 64
	}

	wp.logger = wp.Logger
	if wp.logger == nil {
		wp.logger = &nopLogger{}
	}

	wp.queue = make(chan *queuedTask, size)
	wp.ctx, wp.cancel = context.WithCancel(context.WithValue(context.Background(), workerKey{}, Scheduler(wp)))
	wp.started = true

	for i := 0; i < workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	wp.logger.Log(kgo.LogLevelInfo, "worker pool started", "workers", workers, "queue_size", size)
	return nil
}

// Stop rejects new tasks, cancels queued and running ones and waits for the
// workers to exit or ctx to end.  Safe to call multiple times.
func (wp *WorkerPool) Stop(ctx context.Context) error {
	wp.mu.Lock()
	if !wp.started || wp.stopped {
		wp.mu.Unlock()
		return nil
	}
	wp.stopped = true
	wp.cancel()
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Drain what the workers left behind so every handle completes.
	for {
		select {
		case qt := <-wp.queue:
			qt.handle.finish(ErrClosed)
		default:
			wp.logger.Log(kgo.LogLevelInfo, "worker pool stopped")
			return nil
		}
	}
}

// Schedule enqueues task.  ctx only bounds the task itself; Schedule never
// blocks.
func (wp *WorkerPool) Schedule(ctx context.Context, task Task) (*TaskHandle, error) {
	if task == nil {
		return nil, errors.Join(ErrScheduleRejected, fmt.Errorf("nil task"))
	}

	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.started {
		return nil, errors.Join(ErrScheduleRejected, ErrNotStarted)
	}
	if wp.stopped {
		return nil, errors.Join(ErrScheduleRejected, ErrClosed)
	}

	h := newTaskHandle(mergeCancel(wp.ctx, ctx))
	select {
	case wp.queue <- &queuedTask{handle: h, task: task}:
		return h, nil
	default:
		h.cancel()
		return nil, errors.Join(ErrScheduleRejected, fmt.Errorf("queue full"))
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case qt := <-wp.queue:
			wp.run(id, qt)
		}
	}
}

func (wp *WorkerPool) run(id int, qt *queuedTask) {
	h := qt.handle
	if err := h.ctx.Err(); err != nil {
		if wp.ctx.Err() != nil {
			err = ErrClosed
		}
		h.finish(err)
		return
	}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
				wp.logger.Log(kgo.LogLevelError, "task panicked",
					"worker", id, "task", h.ID.String(), "panic", fmt.Sprint(r))
			}
		}()
		err = qt.task(h.ctx)
	}()
	h.finish(err)
}

// mergeCancel returns a context carrying base's values that is cancelled when
// either base or extra is done.
func mergeCancel(base, extra context.Context) context.Context {
	if extra == nil {
		return base
	}
	ctx, cancel := context.WithCancel(base)
	stop := context.AfterFunc(extra, cancel)
	context.AfterFunc(ctx, func() { stop() })
	return ctx
}
