// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/xmidt-org/kafkabridge"
	spanPrefix          = "kafkabridge."
)

func defaultTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// endSpan marks span as failed with err.
func endSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("error.type", errorType(err)))
}

// Metrics holds OpenTelemetry instruments fed by Consumer and Publisher
// events.  Register its listener funcs with the Add*EventListener methods,
// or let the fx module do it.
type Metrics struct {
	errorsTotal         metric.Int64Counter
	subscriptionChanges metric.Int64Counter
	subscriptionsActive metric.Int64UpDownCounter
	rebalanceEvents     metric.Int64Counter
	publishTotal        metric.Int64Counter
	publishDuration     metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.  A nil meter uses the global
// meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	m := &Metrics{}
	var err error

	m.errorsTotal, err = meter.Int64Counter(
		"kafkabridge.errors.total",
		metric.WithDescription("Total errors by operation and type"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create errorsTotal counter: %w", err)
	}

	m.subscriptionChanges, err = meter.Int64Counter(
		"kafkabridge.subscriptions.changes.total",
		metric.WithDescription("Total topics added to or removed from subscriptions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptionChanges counter: %w", err)
	}

	m.subscriptionsActive, err = meter.Int64UpDownCounter(
		"kafkabridge.subscriptions.active",
		metric.WithDescription("Number of subscribed topics"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptionsActive gauge: %w", err)
	}

	m.rebalanceEvents, err = meter.Int64Counter(
		"kafkabridge.rebalance.events.total",
		metric.WithDescription("Total partition changes delivered to rebalance handlers"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rebalanceEvents counter: %w", err)
	}

	m.publishTotal, err = meter.Int64Counter(
		"kafkabridge.publish.total",
		metric.WithDescription("Total publish attempts by topic and result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create publishTotal counter: %w", err)
	}

	m.publishDuration, err = meter.Float64Histogram(
		"kafkabridge.publish.duration.seconds",
		metric.WithDescription("Time from Publish to completion"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create publishDuration histogram: %w", err)
	}

	return m, nil
}

// OnError counts an ErrorEvent.
func (m *Metrics) OnError(e *ErrorEvent) {
	m.errorsTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("operation", e.Operation),
		attribute.String("type", e.Kind),
	))
}

// OnSubscription counts a SubscriptionEvent and adjusts the active gauge.
func (m *Metrics) OnSubscription(e *SubscriptionEvent) {
	ctx := context.Background()
	n := int64(len(e.Topics))

	m.subscriptionChanges.Add(ctx, n, metric.WithAttributes(
		attribute.String("change", e.Change.String()),
	))
	if e.Change == SubscriptionRemoved {
		n = -n
	}
	m.subscriptionsActive.Add(ctx, n)
}

// OnRebalance counts a RebalanceEvent.
func (m *Metrics) OnRebalance(e *RebalanceEvent) {
	m.rebalanceEvents.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", e.Kind.String()),
	))
}

// OnPublish counts a PublishEvent and records its duration.
func (m *Metrics) OnPublish(e *PublishEvent) {
	ctx := context.Background()
	result := "success"
	if e.Error != nil {
		result = e.ErrorType
	}
	attrs := metric.WithAttributes(
		attribute.String("topic", e.Topic),
		attribute.String("delivery", e.Delivery.String()),
		attribute.String("result", result),
	)

	m.publishTotal.Add(ctx, 1, attrs)
	m.publishDuration.Record(ctx, e.Duration.Seconds(), attrs)
}

// Observe registers m on c.  The returned function removes the listeners.
func (m *Metrics) Observe(c *Consumer) func() {
	cancels := []func(){
		c.AddErrorEventListener(m.OnError),
		c.AddSubscriptionEventListener(m.OnSubscription),
		c.AddRebalanceEventListener(m.OnRebalance),
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// ObservePublisher registers m on p.  The returned function removes the
// listener.
func (m *Metrics) ObservePublisher(p *Publisher) func() {
	return p.AddPublishEventListener(m.OnPublish)
}
