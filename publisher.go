// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// PublishOption changes a single Publish call.  Delivery values and
// RecordOptions are both PublishOptions.
type PublishOption interface {
	applyPublish(*publishOptions)
}

type publishOptions struct {
	delivery Delivery
	record   []RecordOption
}

func (o RecordOption) applyPublish(p *publishOptions) {
	p.record = append(p.record, o)
}

// Publisher encodes tagged keys and values and publishes them to Kafka.
//
// Thread Safety: All methods are safe for concurrent use by multiple goroutines.
type Publisher struct {
	// --- STATIC CONFIGURATION (set before Start, immutable after) ---

	// Brokers is the list of Kafka broker addresses.
	// Required. Each address must be in "host:port" format.
	Brokers []string

	// SASL configures SASL authentication.
	// Optional. If nil, no authentication is used.
	SASL sasl.Mechanism

	// TLS configures TLS encryption.
	// Optional. If nil, plaintext connections are used.
	TLS *tls.Config

	// MaxBufferedRecords sets the maximum number of records to buffer.
	// Zero or negative values disable this limit.
	MaxBufferedRecords int

	// MaxBufferedBytes sets the maximum bytes of records to buffer.
	// Zero or negative values disable this limit.
	MaxBufferedBytes int

	// RequestTimeout sets the maximum time to wait for broker responses.
	// Zero or negative values mean no timeout.
	RequestTimeout time.Duration

	// CleanupTimeout sets the maximum time to wait for buffered records
	// to flush on shutdown. Zero or negative values mean no timeout.
	CleanupTimeout time.Duration

	// MaxRetries controls retry behavior on broker failures.
	// <=0: No retries, fail immediately (default).
	MaxRetries int

	// AllowAutoTopicCreation enables automatic topic creation when publishing
	// to non-existent topics.
	// Default: false.
	AllowAutoTopicCreation bool

	// Acks is the acknowledgment level.  Anything but AcksAll disables
	// idempotent writes.
	// Default: "" (franz-go default, all ISR replicas).
	Acks Acks

	// Compression is the batch compression codec.
	// Default: "" (none).
	Compression Compression

	// Linger is how long the client waits to fill a batch.
	// Default: 0.
	Linger time.Duration

	// Headers are added to every record.
	// Optional.
	Headers map[string]string

	// Encoder builds records from tagged values.  Set it to use record
	// schemas.
	// Optional. If nil, one is built from Codecs, Scheduler and CodecTimeout.
	Encoder *RecordEncoder

	// Codecs, Scheduler and CodecTimeout configure the default Encoder for
	// opaque values.
	Codecs       *CodecRegistry
	Scheduler    Scheduler
	CodecTimeout time.Duration

	// KindHeaders adds the key and value kind headers to every record when
	// the default Encoder is used.
	KindHeaders bool

	// PublishRate limits records per second.  DeliveryTry records over the
	// limit are Dropped; other deliveries wait.
	// Default: 0 (no limit).
	PublishRate float64

	// PublishBurst is the number of records allowed at once above
	// PublishRate.
	// Default: 1.
	PublishBurst int

	// BreakerFailureThreshold opens the circuit breaker for DeliverySync
	// after this many consecutive broker failures.
	// Default: 0 (no breaker).
	BreakerFailureThreshold uint32

	// BreakerResetTimeout is how long the breaker stays open before letting
	// a trial record through.
	// Default: 30s.
	BreakerResetTimeout time.Duration

	// Logger is the logger instance (same interface as franz-go).
	// Optional. If nil, a no-op logger will be used.
	Logger kgo.Logger

	// Tracer creates publish spans.
	// Optional. If nil, the global tracer provider is used.
	Tracer trace.Tracer

	// InitialPublishEventListeners are event listeners registered when Start() is called.
	// For dynamic listener management after Start(), use AddPublishEventListener().
	// Optional.
	InitialPublishEventListeners []func(*PublishEvent)

	// --- INTERNAL FIELDS (not for user configuration) ---

	logger kgo.Logger

	// clientFactory is a testing hook.
	clientFactory clientFactory

	// clientMu protects the fields below during Start/Stop.
	clientMu sync.Mutex
	client   kafkaClient
	encoder  *RecordEncoder
	bridge   *CodecBridge
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	headers  []kgo.RecordHeader

	listeners listeners

	registerInitialListenersOnce sync.Once
}

// AddPublishEventListener adds a listener for when a record has been either
// published or failed to be published.  The returned function removes the
// listener.
//
// Listeners are called from internal goroutines and must be thread-safe.
func (p *Publisher) AddPublishEventListener(fn func(*PublishEvent)) func() {
	return p.listeners.publishes.Add(fn)
}

// Start connects to Kafka and begins operation.
// Must be called before Publish().
//
// Returns an error if:
//   - Configuration is invalid
//   - The client cannot be created
//   - Already started
func (p *Publisher) Start() error {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()

	if p.client != nil {
		return ErrAlreadyStarted
	}

	if p.clientFactory == nil {
		p.clientFactory = defaultClientFactory
	}

	logger := p.Logger
	if logger == nil {
		logger = &nopLogger{}
	}
	p.logger = logger

	p.registerInitialListenersOnce.Do(func() {
		for _, listener := range p.InitialPublishEventListeners {
			p.listeners.publishes.Add(listener)
		}
	})

	if err := p.validate(); err != nil {
		return err
	}

	client, err := p.clientFactory(p.toKgoOpts()...)
	if err != nil {
		return fmt.Errorf("failed to create Kafka client: %w", err)
	}

	p.encoder = p.Encoder
	p.bridge = nil
	if p.encoder == nil {
		p.encoder = &RecordEncoder{
			Codecs:      p.Codecs,
			KindHeaders: p.KindHeaders,
		}
		if p.Scheduler != nil {
			p.bridge = NewCodecBridge(p.Scheduler, p.CodecTimeout, p.logger)
			p.encoder.Bridge = p.bridge
		}
	}

	p.limiter = nil
	if p.PublishRate > 0 {
		burst := p.PublishBurst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(p.PublishRate), burst)
	}

	p.breaker = nil
	if p.BreakerFailureThreshold > 0 {
		p.breaker = p.newBreaker()
	}

	p.headers = staticHeaders(p.Headers)
	p.client = client
	p.logger.Log(kgo.LogLevelInfo, "Publisher started successfully")

	return nil
}

// Stop gracefully shuts down and flushes buffered records.
// Blocks until records are sent or timeout occurs.
// Safe to call multiple times (idempotent).
func (p *Publisher) Stop(ctx context.Context) {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()

	if p.client == nil {
		return
	}

	p.logger.Log(kgo.LogLevelInfo, "Stopping publisher, flushing buffered records")

	// CleanupTimeout only applies when the caller gave no deadline.
	if p.CleanupTimeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.CleanupTimeout)
			defer cancel()
		}
	}

	if err := p.client.Flush(ctx); err != nil {
		p.logger.Log(kgo.LogLevelWarn, "flush incomplete during shutdown", "error", err.Error())
	}

	p.client.Close()
	p.client = nil

	// Codecs belong to the caller; only the bridge built in Start is closed.
	if p.bridge != nil {
		_ = p.bridge.Close(ctx)
		p.bridge = nil
	}

	p.logger.Log(kgo.LogLevelInfo, "Publisher stopped successfully")
}

// Publish encodes key and value and sends them to topic.
//
// Delivery behavior (pass a Delivery as an option):
//   - DeliverySync (default): waits for the broker, returns Accepted or Failed
//   - DeliveryAsync: buffers, waits if the buffer is full, returns Queued
//   - DeliveryTry: buffers only if there is room, returns Attempted or Dropped
//
// Encoding errors return Failed before anything is sent.  The error is
// non-nil only for Failed.
func (p *Publisher) Publish(ctx context.Context, topic string, key, value Value, opts ...PublishOption) (Outcome, error) {
	if ctx.Err() != nil {
		return Failed, ctx.Err()
	}

	startTime := time.Now()

	var o publishOptions
	for _, opt := range opts {
		if opt != nil {
			opt.applyPublish(&o)
		}
	}

	event := PublishEvent{
		Topic:     topic,
		KeyKind:   key.Kind(),
		ValueKind: value.Kind(),
		Delivery:  o.delivery,
	}

	ctx, span := p.tracer().Start(ctx, spanPrefix+OpPublish,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", topic),
			attribute.String("kafkabridge.delivery", o.delivery.String()),
		))
	defer span.End()

	fail := func(err error) (Outcome, error) {
		endSpan(span, err)
		p.listeners.recordPublish(&event, startTime, err)
		return Failed, err
	}

	p.clientMu.Lock()
	client := p.client
	encoder := p.encoder
	limiter := p.limiter
	breaker := p.breaker
	headers := p.headers
	p.clientMu.Unlock()

	if client == nil {
		return fail(ErrNotStarted)
	}

	rec, err := encoder.Encode(ctx, topic, key, value, o.record...)
	if err != nil {
		return fail(err)
	}

	record := rec.kgoRecord(ctx)
	if len(headers) > 0 {
		record.Headers = append(append([]kgo.RecordHeader(nil), headers...), record.Headers...)
	}

	switch o.delivery {
	case DeliveryTry:
		if limiter != nil && !limiter.Allow() {
			p.listeners.recordPublish(&event, startTime, ErrRateLimited)
			return Dropped, nil
		}
		client.TryProduce(ctx, record, func(r *kgo.Record, err error) {
			p.listeners.recordPublish(&event, startTime, produceError(r, err))
		})
		return Attempted, nil

	case DeliveryAsync:
		if err := wait(ctx, limiter); err != nil {
			return fail(err)
		}
		client.Produce(ctx, record, func(r *kgo.Record, err error) {
			if err != nil {
				// Runs on a franz-go goroutine after Publish returned.
				asyncEvent := event
				p.listeners.recordPublish(&asyncEvent, startTime, produceError(r, err))
			}
		})
		p.listeners.recordPublish(&event, startTime, nil)
		return Queued, nil

	default:
		if err := wait(ctx, limiter); err != nil {
			return fail(err)
		}
		if err := p.produceSync(ctx, client, breaker, record); err != nil {
			return fail(err)
		}
		p.listeners.recordPublish(&event, startTime, nil)
		return Accepted, nil
	}
}

func (p *Publisher) produceSync(ctx context.Context, client kafkaClient, breaker *gobreaker.CircuitBreaker, record *kgo.Record) error {
	send := func() (interface{}, error) {
		return nil, produceError(record, client.ProduceSync(ctx, record).FirstErr())
	}

	if breaker == nil {
		_, err := send()
		return err
	}

	_, err := breaker.Execute(send)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrCircuitOpen, err)
	}
	return err
}

// produceError maps a franz-go produce failure of r to the error taxonomy.
func produceError(r *kgo.Record, err error) error {
	if err == nil {
		return nil
	}
	if rangeErr := partitionOutOfRange(r); rangeErr != nil {
		return errors.Join(rangeErr, err)
	}

	switch {
	case errors.Is(err, kgo.ErrMaxBuffered):
		return errors.Join(ErrBufferFull, err)
	case errors.Is(err, kgo.ErrClientClosed):
		return errors.Join(ErrClosed, err)
	}
	return errors.Join(ErrBroker, fmt.Errorf("broker rejected record (%s): %w", classify(err), err))
}

func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return errors.Join(ErrRateLimited, err)
	}
	return nil
}

func (p *Publisher) newBreaker() *gobreaker.CircuitBreaker {
	resetTimeout := p.BreakerResetTimeout
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	threshold := p.BreakerFailureThreshold
	logger := p.logger

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kafkabridge-publish",
		MaxRequests: 1,
		Timeout:     resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A record addressed to a missing partition says nothing about the
		// brokers.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidValue)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log(kgo.LogLevelWarn, "publish circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// BufferedRecords returns the current and maximum buffer counts and bytes.
// Returns zeros if the publisher is not started.
func (p *Publisher) BufferedRecords() (currentRecords, maxRecords int, currentBytes, maxBytes int64) {
	maxRecords = p.MaxBufferedRecords
	maxBytes = int64(p.MaxBufferedBytes)

	p.clientMu.Lock()
	client := p.client
	p.clientMu.Unlock()

	if client == nil {
		return 0, 0, 0, 0
	}

	currentRecords = int(client.BufferedProduceRecords())
	currentBytes = client.BufferedProduceBytes()

	return currentRecords, maxRecords, currentBytes, maxBytes
}

func (p *Publisher) tracer() trace.Tracer {
	if p.Tracer != nil {
		return p.Tracer
	}
	return defaultTracer()
}

// validate validates the Publisher's configuration.
func (p *Publisher) validate() error {
	if err := validateBrokers(p.Brokers); err != nil {
		return err
	}
	if err := p.Acks.validate(); err != nil {
		return err
	}
	if err := p.Compression.validate(); err != nil {
		return err
	}
	for k := range p.Headers {
		if k == "" {
			return errors.Join(ErrValidation, fmt.Errorf("header key must not be empty"))
		}
	}
	if p.PublishRate < 0 {
		return errors.Join(ErrValidation, fmt.Errorf("publish rate must not be negative"))
	}
	return nil
}

// toKgoOpts converts the Publisher's configuration to franz-go client options.
func (p *Publisher) toKgoOpts() []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(p.Brokers...),
		kgo.WithLogger(p.logger),
		kgo.RecordPartitioner(newExplicitPartitioner()),
		p.Compression.opt(),
	}

	if p.AllowAutoTopicCreation {
		opts = append(opts, kgo.AllowAutoTopicCreation())
	}
	if p.SASL != nil {
		opts = append(opts, kgo.SASL(p.SASL))
	}
	if p.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(p.TLS))
	}
	if p.MaxBufferedRecords > 0 {
		opts = append(opts, kgo.MaxBufferedRecords(p.MaxBufferedRecords))
	}
	if p.MaxBufferedBytes > 0 {
		opts = append(opts, kgo.MaxBufferedBytes(p.MaxBufferedBytes))
	}
	if p.RequestTimeout > 0 {
		opts = append(opts, kgo.RequestTimeoutOverhead(p.RequestTimeout))
	}
	if p.MaxRetries > 0 {
		opts = append(opts, kgo.RequestRetries(p.MaxRetries))
	}
	if p.Linger > 0 {
		opts = append(opts, kgo.ProducerLinger(p.Linger))
	}
	if acks := p.Acks.opt(); acks != nil {
		opts = append(opts, acks)
		if p.Acks != AcksAll {
			opts = append(opts, kgo.DisableIdempotentWrite())
		}
	}

	return opts
}

// staticHeaders converts h into record headers sorted by key.
func staticHeaders(h map[string]string) []kgo.RecordHeader {
	if len(h) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kgo.RecordHeader, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(h[k])})
	}
	return headers
}
