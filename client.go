// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
)

// kafkaClient is the producing side of the franz-go client.  Tests swap in a
// mock; production uses *kgo.Client.
type kafkaClient interface {
	// TryProduce attempts to produce a record without blocking if the buffer is full.
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))

	// Produce produces a record asynchronously, blocking if the buffer is full.
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))

	// ProduceSync produces records synchronously and waits for broker acknowledgment.
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults

	// Flush flushes all buffered records and waits for them to be sent.
	Flush(ctx context.Context) error

	Close()

	BufferedProduceRecords() int64
	BufferedProduceBytes() int64
}

var _ kafkaClient = (*kgo.Client)(nil)

// rebalanceListener receives partition changes from the broker consumer.
// Both methods are called on the broker client's goroutine and must not block.
type rebalanceListener interface {
	partitionsRevoked(ps []PartitionRef)
	partitionsAssigned(ps []PartitionRef)
}

// brokerConsumer is the group consumer the Subscription Manager drives.
//
// Each subscribe call replaces the previous subscription entirely.  A nil
// listener means partition changes are not reported.  Errors are returned as
// franz-go/kerr produced them; the caller classifies.
type brokerConsumer interface {
	Subscribe(ctx context.Context, topics []string, l rebalanceListener) error
	SubscribePattern(ctx context.Context, pattern string, l rebalanceListener) error
	Unsubscribe(ctx context.Context) error

	// Topics returns the topics currently consumed.  For a pattern this is
	// the set of matched topics.
	Topics() []string

	// Poll blocks until records are available, ctx ends or the subscription
	// changes.  It returns nil records when nothing is subscribed.
	Poll(ctx context.Context) ([]*kgo.Record, error)

	Close()
}

// consumerClient is the part of *kgo.Client used for consuming.
type consumerClient interface {
	Ping(ctx context.Context) error
	PollFetches(ctx context.Context) kgo.Fetches
	GetConsumeTopics() []string
	Close()
}

var _ consumerClient = (*kgo.Client)(nil)

// clientFactory creates a producing client from options.
type clientFactory func(opts ...kgo.Opt) (kafkaClient, error)

func defaultClientFactory(opts ...kgo.Opt) (kafkaClient, error) {
	return kgo.NewClient(opts...)
}

// consumerClientFactory creates a consuming client from options.
type consumerClientFactory func(opts ...kgo.Opt) (consumerClient, error)

func defaultConsumerClientFactory(opts ...kgo.Opt) (consumerClient, error) {
	return kgo.NewClient(opts...)
}
