// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"
	"sync"
)

// lane hands out turns in the order they were taken.  A turn is taken on the
// calling goroutine, so the order is fixed even when the work itself runs
// later on another goroutine.
type lane struct {
	mu   sync.Mutex
	tail chan struct{}
}

// turn is one position in a lane.
type turn struct {
	prev <-chan struct{}
	next chan struct{}
	once sync.Once
}

// take reserves the next turn.
func (l *lane) take() *turn {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := &turn{
		prev: l.tail,
		next: make(chan struct{}),
	}
	l.tail = t.next
	return t
}

// wait blocks until every earlier turn is done or ctx ends.  On ctx expiry the
// turn is still released in order, after its predecessor.
func (t *turn) wait(ctx context.Context) error {
	if t.prev == nil {
		return nil
	}

	select {
	case <-t.prev:
		return nil
	case <-ctx.Done():
		go func() {
			<-t.prev
			t.done()
		}()
		return ctx.Err()
	}
}

// skip releases the turn once its predecessor is done, without blocking.
func (t *turn) skip() {
	if t.prev == nil {
		t.done()
		return
	}
	go func() {
		<-t.prev
		t.done()
	}()
}

// done releases the turn.  Safe to call more than once.
func (t *turn) done() {
	t.once.Do(func() {
		close(t.next)
	})
}
