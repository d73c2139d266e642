// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package kafkabridge connects a host program's task scheduler to a Kafka
// client whose callbacks run on the client's own goroutines.
//
// # Overview
//
// franz-go calls back into application code from its own goroutines: group
// rebalances arrive on the group management goroutine and records are
// produced and consumed wherever the caller happens to be.  Applications that
// keep their own code on a Scheduler (a worker pool, an event loop) need
// those calls moved across.  This package does three things:
//
//   - Subscription and rebalance coordination (Consumer)
//   - A Codec Bridge that runs user codecs on the Scheduler while the franz-go
//     side blocks for the result (CodecBridge)
//   - Typed record construction from tagged values (RecordEncoder, Publisher)
//
// # Quick Start
//
// Start a Scheduler and a Consumer:
//
//	pool := &kafkabridge.WorkerPool{Workers: 4}
//	if err := pool.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Stop(context.Background())
//
//	consumer := &kafkabridge.Consumer{
//	    Brokers:   []string{"localhost:9092"},
//	    GroupID:   "orders-service",
//	    Scheduler: pool,
//	}
//	if err := consumer.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer consumer.Close(context.Background())
//
//	done := consumer.SubscribeWithRebalance(ctx, []string{"orders"},
//	    func(ctx context.Context, c *kafkabridge.Consumer, ps []kafkabridge.PartitionRef) error {
//	        return commitProgress(ps)
//	    },
//	    func(ctx context.Context, c *kafkabridge.Consumer, ps []kafkabridge.PartitionRef) error {
//	        return loadProgress(ps)
//	    },
//	)
//	if err := <-done; err != nil {
//	    log.Fatal(err)
//	}
//
//	records, err := consumer.Poll(ctx)
//
// Publish tagged values:
//
//	publisher := &kafkabridge.Publisher{Brokers: []string{"localhost:9092"}}
//	if err := publisher.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer publisher.Stop(context.Background())
//
//	outcome, err := publisher.Publish(ctx, "orders",
//	    kafkabridge.Text("order-42"), kafkabridge.Int64(1999))
//
// # Values
//
// A Value is exactly one of Absent, Text, Int64, Float64, Bytes, Record or
// Opaque.  Scalars use the same encodings as the standard Kafka serializers:
// UTF-8 text, 8-byte big-endian integers and IEEE-754 doubles, raw bytes.
// An Absent key produces a record with no key and an Absent value produces a
// tombstone.  Records are encoded as Avro binary with the RecordSchema
// registered for the topic.  Opaque values are encoded by the Codec
// registered for their shape, always on the Scheduler.
//
// # Subscriptions
//
// Every subscribe call replaces the previous subscription; nothing is
// merged.  Subscription changes on one Consumer run one at a time in call
// order, including the asynchronous SubscribeWithRebalance.  A rejected
// change leaves the previous subscription in effect.
//
// Rebalance handlers run on the Scheduler.  The franz-go group goroutine only
// enqueues them and never waits, so a slow handler cannot stall the group.
// Handlers start in the order the changes were delivered (revocations before
// the assignments that follow them).  A handler that cannot be scheduled is
// reported through the error listeners and the Observer; nothing is returned
// to franz-go.
//
// # Errors
//
// Errors carry one of the exported sentinels (ErrSubscribeRejected,
// ErrCodecTimeout, ErrClosed, ...) and can be matched with errors.Is.  Broker
// errors are classified (invalid topic, authorization, retriable, ...) and the
// classification is part of the message; franz-go error types are not part of
// the API.
//
// # Observability
//
// Consumer and Publisher fan events out to listeners registered with the
// Add*EventListener methods.  Metrics turns those events into OpenTelemetry
// instruments, and subscription changes and publishes are traced when a
// trace.Tracer is configured.  Logging uses the franz-go kgo.Logger interface;
// NewZapLogger adapts a *zap.Logger.
//
// # Thread Safety
//
// All exported methods of Consumer, Publisher, CodecBridge, RecordEncoder,
// CodecRegistry and WorkerPool are safe for concurrent use.
package kafkabridge
