// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
)

// kgoConsumer implements brokerConsumer on franz-go.
//
// franz-go fixes the consumed topics and the regex mode when a client is
// built, so every subscribe builds a fresh group client and closes the old
// one.  The new client must answer a ping before it replaces the old one; a
// failed subscribe leaves the previous client untouched.
type kgoConsumer struct {
	base    []kgo.Opt
	factory consumerClientFactory
	logger  kgo.Logger

	mu     sync.Mutex
	client consumerClient
	closed bool
}

var _ brokerConsumer = (*kgoConsumer)(nil)

func newKgoConsumer(factory consumerClientFactory, logger kgo.Logger, base ...kgo.Opt) *kgoConsumer {
	if factory == nil {
		factory = defaultConsumerClientFactory
	}
	if logger == nil {
		logger = &nopLogger{}
	}
	return &kgoConsumer{
		base:    base,
		factory: factory,
		logger:  logger,
	}
}

func (k *kgoConsumer) Subscribe(ctx context.Context, topics []string, l rebalanceListener) error {
	if len(topics) == 0 {
		return k.Unsubscribe(ctx)
	}
	opts := append(slices.Clone(k.base), kgo.ConsumeTopics(topics...))
	return k.replace(ctx, append(opts, rebalanceOpts(l)...))
}

func (k *kgoConsumer) SubscribePattern(ctx context.Context, pattern string, l rebalanceListener) error {
	opts := append(slices.Clone(k.base), kgo.ConsumeTopics(pattern), kgo.ConsumeRegex())
	return k.replace(ctx, append(opts, rebalanceOpts(l)...))
}

func (k *kgoConsumer) replace(ctx context.Context, opts []kgo.Opt) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return errors.Join(errInvalidState, kgo.ErrClientClosed)
	}

	next, err := k.factory(opts...)
	if err != nil {
		return err
	}
	if err := next.Ping(ctx); err != nil {
		next.Close()
		return err
	}

	prev := k.client
	k.client = next
	if prev != nil {
		// Leaving the group revokes through the previous client's callbacks.
		prev.Close()
	}
	return nil
}

func (k *kgoConsumer) Unsubscribe(context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return errors.Join(errInvalidState, kgo.ErrClientClosed)
	}
	if k.client != nil {
		k.client.Close()
		k.client = nil
	}
	return nil
}

func (k *kgoConsumer) Topics() []string {
	k.mu.Lock()
	cl := k.client
	k.mu.Unlock()

	if cl == nil {
		return nil
	}
	topics := cl.GetConsumeTopics()
	sort.Strings(topics)
	return topics
}

func (k *kgoConsumer) Poll(ctx context.Context) ([]*kgo.Record, error) {
	k.mu.Lock()
	cl := k.client
	closed := k.closed
	k.mu.Unlock()

	if closed {
		return nil, errors.Join(errInvalidState, kgo.ErrClientClosed)
	}
	if cl == nil {
		return nil, nil
	}

	fetches := cl.PollFetches(ctx)
	if fetches.IsClientClosed() {
		k.mu.Lock()
		replaced := k.client != cl && !k.closed
		k.mu.Unlock()
		if replaced {
			return nil, nil
		}
		return nil, kgo.ErrClientClosed
	}

	var errs []error
	fetches.EachError(func(topic string, partition int32, err error) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			errs = append(errs, err)
			return
		}
		k.logger.Log(kgo.LogLevelWarn, "fetch error",
			"topic", topic, "partition", partition, "error", err.Error())
		errs = append(errs, fmt.Errorf("%s: %w", PartitionRef{Topic: topic, Partition: partition}, err))
	})

	return fetches.Records(), errors.Join(errs...)
}

func (k *kgoConsumer) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return
	}
	k.closed = true
	if k.client != nil {
		k.client.Close()
		k.client = nil
	}
}

// rebalanceOpts routes franz-go group callbacks to l.  Lost partitions are
// reported as revoked.
func rebalanceOpts(l rebalanceListener) []kgo.Opt {
	if l == nil {
		return nil
	}
	return []kgo.Opt{
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, m map[string][]int32) {
			if ps := partitionRefs(m); len(ps) > 0 {
				l.partitionsAssigned(ps)
			}
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, m map[string][]int32) {
			if ps := partitionRefs(m); len(ps) > 0 {
				l.partitionsRevoked(ps)
			}
		}),
		kgo.OnPartitionsLost(func(_ context.Context, _ *kgo.Client, m map[string][]int32) {
			if ps := partitionRefs(m); len(ps) > 0 {
				l.partitionsRevoked(ps)
			}
		}),
	}
}

// partitionRefs flattens a franz-go assignment.  Topics are sorted since the
// map has no order; partitions keep the order franz-go delivered.
func partitionRefs(m map[string][]int32) []PartitionRef {
	topics := make([]string, 0, len(m))
	n := 0
	for topic, parts := range m {
		topics = append(topics, topic)
		n += len(parts)
	}
	sort.Strings(topics)

	ps := make([]PartitionRef, 0, n)
	for _, topic := range topics {
		for _, p := range m[topic] {
			ps = append(ps, PartitionRef{Topic: topic, Partition: p})
		}
	}
	return ps
}
