// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kgo"
)

// RebalanceKind tells whether partitions were taken away or handed out.
type RebalanceKind int

const (
	RebalanceRevoked RebalanceKind = iota
	RebalanceAssigned
)

// String returns the string representation of the RebalanceKind.
func (k RebalanceKind) String() string {
	switch k {
	case RebalanceRevoked:
		return "revoked"
	case RebalanceAssigned:
		return "assigned"
	default:
		return "unknown"
	}
}

// RebalanceEvent is a group membership change as delivered by the broker
// client.
type RebalanceEvent struct {
	Kind       RebalanceKind
	Partitions []PartitionRef
}

// RebalanceHandler is user code run on the Scheduler when partitions change.
// It receives the Consumer it was registered on and its own copy of the
// partitions.  A returned error is reported, never retried.
type RebalanceHandler func(ctx context.Context, c *Consumer, partitions []PartitionRef) error

// RebalanceHandlers is the pair registered by SubscribeWithRebalance.
type RebalanceHandlers struct {
	OnRevoked  RebalanceHandler
	OnAssigned RebalanceHandler
}

// rebalanceBridge forwards partition changes from the broker client's
// goroutine to the Scheduler.  It never waits for a handler: the broker
// client's group loop only pays for an enqueue.
//
// Handlers start in delivery order even on a multi-worker Scheduler; each
// waits for the previous one to finish.
type rebalanceBridge struct {
	consumer  *Consumer
	scheduler Scheduler
	handlers  RebalanceHandlers
	logger    kgo.Logger

	// report receives scheduling and handler failures.
	report func(op, resource string, err error)

	// notify receives every event delivered while registered.
	notify func(RebalanceEvent)

	registered atomic.Bool
	order      lane
}

var _ rebalanceListener = (*rebalanceBridge)(nil)

func newRebalanceBridge(c *Consumer, s Scheduler, h RebalanceHandlers) *rebalanceBridge {
	b := &rebalanceBridge{
		consumer:  c,
		scheduler: s,
		handlers:  h,
		logger:    c.logger,
		report:    c.recordError,
		notify:    c.listeners.recordRebalance,
	}
	if b.logger == nil {
		b.logger = &nopLogger{}
	}
	return b
}

func (b *rebalanceBridge) register()   { b.registered.Store(true) }
func (b *rebalanceBridge) unregister() { b.registered.Store(false) }

func (b *rebalanceBridge) partitionsRevoked(ps []PartitionRef) {
	b.dispatch(RebalanceRevoked, b.handlers.OnRevoked, ps)
}

func (b *rebalanceBridge) partitionsAssigned(ps []PartitionRef) {
	b.dispatch(RebalanceAssigned, b.handlers.OnAssigned, ps)
}

func (b *rebalanceBridge) dispatch(kind RebalanceKind, h RebalanceHandler, ps []PartitionRef) {
	if !b.registered.Load() {
		b.logger.Log(kgo.LogLevelDebug, "ignoring partition change, no rebalance handlers registered",
			"kind", kind.String(), "partitions", len(ps))
		return
	}

	if b.notify != nil {
		b.notify(RebalanceEvent{Kind: kind, Partitions: slices.Clone(ps)})
	}
	if h == nil {
		return
	}

	partitions := slices.Clone(ps)
	t := b.order.take()

	handle, err := b.scheduler.Schedule(context.Background(), func(ctx context.Context) error {
		if err := t.wait(ctx); err != nil {
			return err
		}
		defer t.done()

		if err := b.run(ctx, kind, h, partitions); err != nil {
			b.report(OpRebalance, kind.String(), err)
			return err
		}
		return nil
	})
	if err != nil {
		t.skip()
		b.logger.Log(kgo.LogLevelError, "failed to schedule rebalance handler",
			"kind", kind.String(), "partitions", len(partitions), "error", err.Error())
		b.report(OpRebalance, kind.String(), err)
		return
	}

	// A task dropped before running still has to give up its turn.
	go func() {
		<-handle.Done()
		t.skip()
	}()
}

func (b *rebalanceBridge) run(ctx context.Context, kind RebalanceKind, h RebalanceHandler, ps []PartitionRef) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(ErrHandlerFailure, fmt.Errorf("%s handler panicked: %v", kind, r))
		}
	}()

	if err := h(ctx, b.consumer, ps); err != nil {
		return errors.Join(ErrHandlerFailure, fmt.Errorf("%s handler: %w", kind, err))
	}
	return nil
}
