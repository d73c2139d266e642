// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.opentelemetry.io/otel/trace"
)

// Consumer is a group consumer whose subscription, rebalance handlers and
// codecs are driven from the host Scheduler.
//
// Thread Safety: All methods are safe for concurrent use.  Subscription
// changes (SubscribeTopics, SubscribePattern, SubscribeWithRebalance,
// Unsubscribe) and Close run one at a time in the order they were called.
type Consumer struct {
	// --- STATIC CONFIGURATION (set before Start, immutable after) ---

	// Brokers is the list of Kafka broker addresses.
	// Required. Each address must be in "host:port" format.
	Brokers []string

	// GroupID is the consumer group to join.
	// Required.
	GroupID string

	// ClientID identifies this client to the brokers.
	// Default: "kafkabridge-" followed by a random UUID.
	ClientID string

	// SASL configures SASL authentication.
	// Optional. If nil, no authentication is used.
	SASL sasl.Mechanism

	// TLS configures TLS encryption.
	// Optional. If nil, plaintext connections are used.
	TLS *tls.Config

	// SessionTimeout and RebalanceTimeout tune group membership.
	// Zero values use the franz-go defaults.
	SessionTimeout   time.Duration
	RebalanceTimeout time.Duration

	// FetchMaxWait bounds how long the broker holds a fetch open.
	// Zero uses the franz-go default.
	FetchMaxWait time.Duration

	// FromBeginning starts partitions without a committed offset at the
	// earliest offset instead of the latest.
	FromBeginning bool

	// AllowAutoTopicCreation lets subscriptions create missing topics.
	// Default: false.
	AllowAutoTopicCreation bool

	// Scheduler runs codecs and rebalance handlers.
	// Required.
	Scheduler Scheduler

	// CodecTimeout bounds each codec invocation.
	// Zero or negative values mean no timeout.
	CodecTimeout time.Duration

	// Codecs resolves KindOpaque decoders.
	// Optional.
	Codecs *CodecRegistry

	// KeyDecoder and ValueDecoder turn consumed bytes into Values.
	// The zero value yields Bytes.
	KeyDecoder   ValueDecoder
	ValueDecoder ValueDecoder

	// Logger is the logger instance (same interface as franz-go).
	// Optional. If nil, a no-op logger will be used.
	Logger kgo.Logger

	// Tracer creates spans for subscription changes.
	// Optional. If nil, the global tracer provider is used.
	Tracer trace.Tracer

	// Observer receives errors and subscription changes in addition to the
	// registered listeners.
	// Optional.
	Observer Observer

	// --- INTERNAL FIELDS (not for user configuration) ---

	logger kgo.Logger

	// newBroker is a testing hook.
	newBroker func(opts ...kgo.Opt) brokerConsumer

	// consumerFactory is a testing hook passed to the franz-go broker
	// consumer.
	consumerFactory consumerClientFactory

	lifecycleMu sync.Mutex
	started     bool
	closed      bool
	broker      brokerConsumer
	bridge      *CodecBridge

	ops lane

	stateMu   sync.RWMutex
	state     SubscriptionState
	active    []string
	rebalance *rebalanceBridge

	listeners listeners
}

// AddErrorEventListener adds a listener for errors observed by the consumer,
// including failures that are never returned to a caller such as rebalance
// handlers that could not be scheduled.  The returned function removes the
// listener.
func (c *Consumer) AddErrorEventListener(fn func(*ErrorEvent)) func() {
	return c.listeners.errors.Add(fn)
}

// AddSubscriptionEventListener adds a listener for topics entering or leaving
// the subscription.
func (c *Consumer) AddSubscriptionEventListener(fn func(*SubscriptionEvent)) func() {
	return c.listeners.subscriptions.Add(fn)
}

// AddRebalanceEventListener adds a listener for partition changes delivered
// while rebalance handlers are registered.  Listeners run on the broker
// client's goroutine and must not block.
func (c *Consumer) AddRebalanceEventListener(fn func(*RebalanceEvent)) func() {
	return c.listeners.rebalances.Add(fn)
}

// Start validates the configuration and prepares the broker client.  No
// broker connection is made until the first subscription.
func (c *Consumer) Start() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.started {
		return ErrAlreadyStarted
	}

	logger := c.Logger
	if logger == nil {
		logger = &nopLogger{}
	}
	c.logger = logger

	if err := c.validate(); err != nil {
		return err
	}

	newBroker := c.newBroker
	if newBroker == nil {
		newBroker = func(opts ...kgo.Opt) brokerConsumer {
			return newKgoConsumer(c.consumerFactory, c.logger, opts...)
		}
	}

	c.bridge = NewCodecBridge(c.Scheduler, c.CodecTimeout, c.logger)
	c.broker = newBroker(c.toKgoOpts()...)
	c.started = true

	c.logger.Log(kgo.LogLevelInfo, "Consumer started successfully", "group", c.GroupID)
	return nil
}

// Close drops the subscription, fails in-flight codec calls with ErrClosed,
// closes every registered codec and then the broker client.  It waits for
// pending subscription changes first.  Safe to call multiple times.
func (c *Consumer) Close(ctx context.Context) error {
	t := c.ops.take()
	if err := t.wait(ctx); err != nil {
		return err
	}
	defer t.done()

	c.lifecycleMu.Lock()
	if !c.started || c.closed {
		c.lifecycleMu.Unlock()
		return nil
	}
	c.closed = true
	c.lifecycleMu.Unlock()

	c.logger.Log(kgo.LogLevelInfo, "Closing consumer")

	c.apply(c.liveTopics(), SubscriptionState{}, nil)

	err := c.bridge.Close(ctx, c.Codecs.all()...)
	if err != nil {
		c.logger.Log(kgo.LogLevelWarn, "codec close incomplete", "error", err.Error())
		c.recordError(OpClose, "", err)
	}

	c.broker.Close()

	c.logger.Log(kgo.LogLevelInfo, "Consumer closed")
	return err
}

// Poll waits for records on the current subscription and decodes them.
// Records that fail to decode are left out; their errors are joined into
// the returned error alongside the records that did decode.
//
// With no subscription Poll returns immediately with no records.
func (c *Consumer) Poll(ctx context.Context) ([]ConsumerRecord, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}

	raw, err := c.broker.Poll(ctx)
	if err != nil && len(raw) == 0 {
		return nil, c.pollError(ctx, err)
	}

	records := make([]ConsumerRecord, 0, len(raw))
	var errs []error
	if err != nil {
		errs = append(errs, c.pollError(ctx, err))
	}

	for _, r := range raw {
		rec, err := c.decode(ctx, r)
		if err != nil {
			at := fmt.Sprintf("%s/%d@%d", r.Topic, r.Partition, r.Offset)
			c.recordError(OpPoll, at, err)
			errs = append(errs, fmt.Errorf("%s: %w", at, err))
			continue
		}
		records = append(records, rec)
	}

	return records, errors.Join(errs...)
}

func (c *Consumer) pollError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, kgo.ErrClientClosed) {
		if c.usable() != nil {
			return ErrClosed
		}
	}
	err = rejected(ErrBroker, OpPoll, err)
	c.recordError(OpPoll, "", err)
	return err
}

func (c *Consumer) decode(ctx context.Context, r *kgo.Record) (ConsumerRecord, error) {
	key, err := c.KeyDecoder.decode(ctx, c.bridge, c.Codecs, r.Key)
	if err != nil {
		return ConsumerRecord{}, fmt.Errorf("key: %w", err)
	}
	value, err := c.ValueDecoder.decode(ctx, c.bridge, c.Codecs, r.Value)
	if err != nil {
		return ConsumerRecord{}, fmt.Errorf("value: %w", err)
	}

	return ConsumerRecord{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Timestamp: timestampMillis(r.Timestamp),
		Key:       key,
		Value:     value,
		Headers:   r.Headers,
	}, nil
}

// usable reports why c cannot be used, if it cannot.
func (c *Consumer) usable() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	switch {
	case c.closed:
		return ErrClosed
	case !c.started:
		return ErrNotStarted
	}
	return nil
}

func (c *Consumer) recordError(op, resource string, err error) {
	recordErr(&c.listeners, op, resource, err)
	recordErr(c.Observer, op, resource, err)
}

func (c *Consumer) recordSubscriptionChange(topics []string, change SubscriptionChange) {
	if len(topics) == 0 {
		return
	}
	c.listeners.RecordSubscriptionChange(topics, change)
	if c.Observer != nil {
		c.Observer.RecordSubscriptionChange(topics, change)
	}
}

func (c *Consumer) tracer() trace.Tracer {
	if c.Tracer != nil {
		return c.Tracer
	}
	return defaultTracer()
}

func (c *Consumer) validate() error {
	if err := validateBrokers(c.Brokers); err != nil {
		return err
	}
	if c.GroupID == "" {
		return errors.Join(ErrValidation, fmt.Errorf("group id is required"))
	}
	if c.Scheduler == nil {
		return errors.Join(ErrValidation, fmt.Errorf("scheduler is required"))
	}
	if err := c.KeyDecoder.validate(c.Codecs); err != nil {
		return fmt.Errorf("key decoder: %w", err)
	}
	if err := c.ValueDecoder.validate(c.Codecs); err != nil {
		return fmt.Errorf("value decoder: %w", err)
	}
	return nil
}

// toKgoOpts converts the Consumer's configuration to franz-go client options.
// The consumed topics are added per subscription.
func (c *Consumer) toKgoOpts() []kgo.Opt {
	clientID := c.ClientID
	if clientID == "" {
		clientID = "kafkabridge-" + uuid.NewString()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(c.Brokers...),
		kgo.ConsumerGroup(c.GroupID),
		kgo.ClientID(clientID),
		kgo.WithLogger(c.logger),
	}

	if c.SASL != nil {
		opts = append(opts, kgo.SASL(c.SASL))
	}
	if c.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(c.TLS))
	}
	if c.SessionTimeout > 0 {
		opts = append(opts, kgo.SessionTimeout(c.SessionTimeout))
	}
	if c.RebalanceTimeout > 0 {
		opts = append(opts, kgo.RebalanceTimeout(c.RebalanceTimeout))
	}
	if c.FetchMaxWait > 0 {
		opts = append(opts, kgo.FetchMaxWait(c.FetchMaxWait))
	}
	if c.FromBeginning {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	}
	if c.AllowAutoTopicCreation {
		opts = append(opts, kgo.AllowAutoTopicCreation())
	}

	return opts
}

// validateBrokers checks the seed broker list.
func validateBrokers(brokers []string) error {
	if len(brokers) == 0 {
		return errors.Join(ErrValidation, fmt.Errorf("brokers list is required"))
	}
	for i, broker := range brokers {
		if broker == "" {
			return errors.Join(ErrValidation, fmt.Errorf("broker %d is empty", i))
		}
	}
	return nil
}
