// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SubscriptionMode is how a Consumer selects topics.
type SubscriptionMode int

const (
	ModeNone SubscriptionMode = iota
	ModeTopics
	ModePattern
)

// String returns the string representation of the SubscriptionMode.
func (m SubscriptionMode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeTopics:
		return "topics"
	case ModePattern:
		return "pattern"
	default:
		return "unknown"
	}
}

// SubscriptionState is a snapshot of what a Consumer is subscribed to.
type SubscriptionState struct {
	Mode SubscriptionMode

	// Topics is set in ModeTopics.  It may be empty.
	Topics []string

	// Pattern is set in ModePattern.
	Pattern string

	// Rebalance is set when the subscription was made with
	// SubscribeWithRebalance.
	Rebalance *RebalanceHandlers
}

func (s SubscriptionState) clone() SubscriptionState {
	s.Topics = slices.Clone(s.Topics)
	if s.Rebalance != nil {
		h := *s.Rebalance
		s.Rebalance = &h
	}
	return s
}

// SubscribeTopics replaces the current subscription with exactly topics.  An
// empty list is legal and consumes nothing.
//
// On error the previous subscription stays in effect.
func (c *Consumer) SubscribeTopics(ctx context.Context, topics []string) error {
	topics = dedupe(topics)
	return c.serialize(ctx, OpSubscribe, func(ctx context.Context, span trace.Span) error {
		span.SetAttributes(attribute.StringSlice("kafka.topics", topics))
		if err := validateTopics(topics); err != nil {
			return err
		}
		previous := c.liveTopics()
		if err := c.broker.Subscribe(ctx, topics, nil); err != nil {
			return rejected(ErrSubscribeRejected, OpSubscribe, err)
		}
		c.apply(previous, SubscriptionState{Mode: ModeTopics, Topics: topics}, nil)
		return nil
	})
}

// SubscribePattern replaces the current subscription with every topic
// matching pattern, now and as topics are created.  The pattern uses Go
// regexp syntax and is checked before the broker client is touched.
func (c *Consumer) SubscribePattern(ctx context.Context, pattern string) error {
	return c.serialize(ctx, OpSubscribePattern, func(ctx context.Context, span trace.Span) error {
		span.SetAttributes(attribute.String("kafka.pattern", pattern))
		if pattern == "" {
			return errors.Join(ErrInvalidPattern, fmt.Errorf("pattern must not be empty"))
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return errors.Join(ErrInvalidPattern, err)
		}
		previous := c.liveTopics()
		if err := c.broker.SubscribePattern(ctx, pattern, nil); err != nil {
			return rejected(ErrSubscribeRejected, OpSubscribePattern, err)
		}
		c.apply(previous, SubscriptionState{Mode: ModePattern, Pattern: pattern}, nil)
		return nil
	})
}

// SubscribeWithRebalance replaces the current subscription with topics and
// registers handlers for partition changes.  It returns at once; the
// returned channel yields the result exactly once and is then closed.
//
// Calls made after this one on the same Consumer still run after it.
func (c *Consumer) SubscribeWithRebalance(ctx context.Context, topics []string, onRevoked, onAssigned RebalanceHandler) <-chan error {
	result := make(chan error, 1)
	topics = dedupe(topics)
	handlers := RebalanceHandlers{OnRevoked: onRevoked, OnAssigned: onAssigned}

	run := c.serializeAsync(ctx, OpSubscribeRebalance, func(ctx context.Context, span trace.Span) error {
		span.SetAttributes(attribute.StringSlice("kafka.topics", topics))
		if err := validateTopics(topics); err != nil {
			return err
		}

		previous := c.liveTopics()
		bridge := newRebalanceBridge(c, c.Scheduler, handlers)
		bridge.register()
		if err := c.broker.Subscribe(ctx, topics, bridge); err != nil {
			bridge.unregister()
			return rejected(ErrSubscribeRejected, OpSubscribeRebalance, err)
		}
		c.apply(previous, SubscriptionState{Mode: ModeTopics, Topics: topics, Rebalance: &handlers}, bridge)
		return nil
	})

	go func() {
		defer close(result)
		result <- run()
	}()
	return result
}

// Unsubscribe drops the current subscription and any rebalance handlers.
func (c *Consumer) Unsubscribe(ctx context.Context) error {
	return c.serialize(ctx, OpUnsubscribe, func(ctx context.Context, _ trace.Span) error {
		previous := c.liveTopics()
		if err := c.broker.Unsubscribe(ctx); err != nil {
			return rejected(ErrUnsubscribeRejected, OpUnsubscribe, err)
		}
		c.apply(previous, SubscriptionState{}, nil)
		return nil
	})
}

// Subscription returns a copy of the current subscription.
func (c *Consumer) Subscription() SubscriptionState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state.clone()
}

// CurrentTopics returns the topics the broker client is consuming.  For a
// pattern subscription these are the matched topics.
func (c *Consumer) CurrentTopics() []string {
	c.lifecycleMu.Lock()
	broker := c.broker
	c.lifecycleMu.Unlock()

	if broker == nil {
		return nil
	}
	return broker.Topics()
}

// topicsFor is what subscription events report for s: the explicit topics,
// or the matched topics for a pattern.
func (c *Consumer) topicsFor(s SubscriptionState) []string {
	switch s.Mode {
	case ModeTopics:
		return slices.Clone(s.Topics)
	case ModePattern:
		return c.broker.Topics()
	}
	return nil
}

// liveTopics is what the current subscription consumes right now.  Pattern
// matches are read from the broker client because they change after the
// subscribe returns.
func (c *Consumer) liveTopics() []string {
	c.stateMu.RLock()
	mode := c.state.Mode
	active := c.active
	c.stateMu.RUnlock()

	if mode == ModePattern {
		return c.broker.Topics()
	}
	return slices.Clone(active)
}

// apply installs next as the current subscription and swaps the rebalance
// bridge.  prevActive is the previous subscription's topics, read before the
// broker client changed.  Callers hold their lane turn.
func (c *Consumer) apply(prevActive []string, next SubscriptionState, bridge *rebalanceBridge) {
	active := c.topicsFor(next)

	c.stateMu.Lock()
	prevBridge := c.rebalance
	c.state = next
	c.active = active
	c.rebalance = bridge
	c.stateMu.Unlock()

	if prevBridge != nil && prevBridge != bridge {
		prevBridge.unregister()
	}

	c.recordSubscriptionChange(difference(prevActive, active), SubscriptionRemoved)
	c.recordSubscriptionChange(difference(active, prevActive), SubscriptionAdded)

	c.logger.Log(kgo.LogLevelInfo, "subscription changed",
		"mode", next.Mode.String(), "topics", next.Topics, "pattern", next.Pattern,
		"rebalance", bridge != nil)
}

type subscriptionOp func(ctx context.Context, span trace.Span) error

// serialize runs op in call order with every other subscription change on c.
func (c *Consumer) serialize(ctx context.Context, name string, op subscriptionOp) error {
	return c.serializeAsync(ctx, name, op)()
}

// serializeAsync takes c's next turn now and returns a func that waits for
// the turn and runs op.
func (c *Consumer) serializeAsync(ctx context.Context, name string, op subscriptionOp) func() error {
	t := c.ops.take()

	return func() error {
		ctx, span := c.tracer().Start(ctx, spanPrefix+name)
		defer span.End()

		err := c.runTurn(ctx, t, span, op)
		if err != nil {
			c.recordError(name, "", err)
			endSpan(span, err)
		}
		return err
	}
}

func (c *Consumer) runTurn(ctx context.Context, t *turn, span trace.Span, op subscriptionOp) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	defer t.done()

	if err := c.usable(); err != nil {
		return err
	}
	return op(ctx, span)
}

func validateTopics(topics []string) error {
	for i, topic := range topics {
		if topic == "" {
			return errors.Join(ErrInvalidValue, fmt.Errorf("topic %d is empty", i))
		}
	}
	return nil
}

// dedupe returns topics without repeats, keeping first occurrence order.
func dedupe(topics []string) []string {
	out := make([]string, 0, len(topics))
	seen := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		out = append(out, topic)
	}
	return out
}

// difference returns the entries of a missing from b.
func difference(a, b []string) []string {
	var out []string
	for _, s := range a {
		if !slices.Contains(b, s) {
			out = append(out, s)
		}
	}
	return out
}
