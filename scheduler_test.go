// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startPool starts a WorkerPool that is stopped when the test ends.
func startPool(t *testing.T, workers int) *WorkerPool {
	t.Helper()
	wp := &WorkerPool{Workers: workers}
	require.NoError(t, wp.Start())
	t.Cleanup(func() {
		_ = wp.Stop(context.Background())
	})
	return wp
}

// waitDone fails the test if h does not finish in time.
func waitDone(t *testing.T, h *TaskHandle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("task did not finish")
	}
}

func TestWorkerPool_Lifecycle(t *testing.T) {
	t.Parallel()

	wp := &WorkerPool{}

	_, err := wp.Schedule(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrScheduleRejected)
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, wp.Start())
	assert.ErrorIs(t, wp.Start(), ErrAlreadyStarted)

	require.NoError(t, wp.Stop(context.Background()))
	require.NoError(t, wp.Stop(context.Background()), "stop is idempotent")

	_, err = wp.Schedule(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrScheduleRejected)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWorkerPool_RunsTasks(t *testing.T) {
	t.Parallel()

	wp := startPool(t, 2)
	boom := errors.New("boom")

	ok, err := wp.Schedule(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	failing, err := wp.Schedule(context.Background(), func(context.Context) error { return boom })
	require.NoError(t, err)
	panicking, err := wp.Schedule(context.Background(), func(context.Context) error { panic("oops") })
	require.NoError(t, err)

	waitDone(t, ok)
	waitDone(t, failing)
	waitDone(t, panicking)

	assert.NoError(t, ok.Err())
	assert.ErrorIs(t, failing.Err(), boom)
	require.Error(t, panicking.Err())
	assert.Contains(t, panicking.Err().Error(), "oops")
	assert.NotEqual(t, ok.ID, failing.ID)

	_, err = wp.Schedule(context.Background(), nil)
	assert.ErrorIs(t, err, ErrScheduleRejected)
}

func TestWorkerPool_QueueFull(t *testing.T) {
	t.Parallel()

	wp := &WorkerPool{Workers: 1, QueueSize: 1}
	require.NoError(t, wp.Start())

	running := make(chan struct{})
	release := make(chan struct{})
	blocker, err := wp.Schedule(context.Background(), func(context.Context) error {
		close(running)
		<-release
		return nil
	})
	require.NoError(t, err)
	<-running

	queued, err := wp.Schedule(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)

	_, err = wp.Schedule(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrScheduleRejected)

	close(release)
	waitDone(t, blocker)
	waitDone(t, queued)
	assert.NoError(t, queued.Err())

	require.NoError(t, wp.Stop(context.Background()))
}

func TestWorkerPool_StopDropsQueued(t *testing.T) {
	t.Parallel()

	wp := &WorkerPool{Workers: 1, QueueSize: 4}
	require.NoError(t, wp.Start())

	running := make(chan struct{})
	blocker, err := wp.Schedule(context.Background(), func(ctx context.Context) error {
		close(running)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	<-running

	var ran bool
	queued, err := wp.Schedule(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, wp.Stop(context.Background()))

	waitDone(t, blocker)
	waitDone(t, queued)
	assert.ErrorIs(t, blocker.Err(), context.Canceled)
	assert.ErrorIs(t, queued.Err(), ErrClosed)
	assert.False(t, ran)
}

func TestWorkerPool_Cancel(t *testing.T) {
	t.Parallel()

	wp := &WorkerPool{Workers: 1}
	require.NoError(t, wp.Start())
	defer func() { _ = wp.Stop(context.Background()) }()

	running := make(chan struct{})
	release := make(chan struct{})
	_, err := wp.Schedule(context.Background(), func(context.Context) error {
		close(running)
		<-release
		return nil
	})
	require.NoError(t, err)
	<-running

	var ran bool
	h, err := wp.Schedule(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	h.Cancel()
	close(release)

	waitDone(t, h)
	assert.ErrorIs(t, h.Err(), context.Canceled)
	assert.False(t, ran)
}

func TestWorkerPool_CallerContext(t *testing.T) {
	t.Parallel()

	wp := startPool(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	h, err := wp.Schedule(ctx, func(tctx context.Context) error {
		close(started)
		<-tctx.Done()
		return tctx.Err()
	})
	require.NoError(t, err)

	<-started
	cancel()
	waitDone(t, h)
	assert.ErrorIs(t, h.Err(), context.Canceled)
}

func TestOnWorker(t *testing.T) {
	t.Parallel()

	wp := startPool(t, 1)
	other := startPool(t, 1)

	assert.False(t, onWorker(context.Background(), wp))

	results := make(chan [2]bool, 1)
	h, err := wp.Schedule(context.Background(), func(ctx context.Context) error {
		results <- [2]bool{onWorker(ctx, wp), onWorker(ctx, other)}
		return nil
	})
	require.NoError(t, err)
	waitDone(t, h)

	got := <-results
	assert.True(t, got[0], "task context belongs to its pool")
	assert.False(t, got[1], "task context does not belong to another pool")
}
