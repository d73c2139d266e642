// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"time"

	"github.com/xmidt-org/eventor"
)

// Operation names used in events, metrics and spans.
const (
	OpSubscribe          = "subscribe"
	OpSubscribePattern   = "subscribe_pattern"
	OpSubscribeRebalance = "subscribe_rebalance"
	OpUnsubscribe        = "unsubscribe"
	OpRebalance          = "rebalance"
	OpPoll               = "poll"
	OpPublish            = "publish"
	OpClose              = "close"
)

// SubscriptionChange tells whether topics were added or removed.
type SubscriptionChange int

const (
	SubscriptionAdded SubscriptionChange = iota
	SubscriptionRemoved
)

// String returns the string representation of the SubscriptionChange.
func (c SubscriptionChange) String() string {
	switch c {
	case SubscriptionAdded:
		return "added"
	case SubscriptionRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ErrorContext describes where an error was observed.
type ErrorContext struct {
	// Operation is one of the Op* names.
	Operation string

	// Resource is the topic, pattern or partition involved, if any.
	Resource string

	// Err is the error as returned (or reported) by the bridge.
	Err error
}

// Observer is the sink the bridge reports into.  Calls are fire-and-forget:
// nothing an Observer does is consulted.
type Observer interface {
	RecordError(kind string, ec ErrorContext)
	RecordSubscriptionChange(topics []string, change SubscriptionChange)
}

// ErrorEvent is delivered to error listeners.
type ErrorEvent struct {
	// Kind is the error classification, e.g. "subscribe_rejected".
	Kind string

	Operation string
	Resource  string
	Error     error
}

// SubscriptionEvent is delivered to subscription listeners.
type SubscriptionEvent struct {
	Topics []string
	Change SubscriptionChange
}

// PublishEvent represents an event when a record has been published or failed to publish.
type PublishEvent struct {
	// Topic is the Kafka topic the record was published to (or attempted to publish to).
	Topic string

	// KeyKind and ValueKind are the kinds of the tagged key and value.
	KeyKind   Kind
	ValueKind Kind

	// Delivery is the delivery mode used.
	Delivery Delivery

	// Error is the error that occurred during publishing (nil for successful publishes).
	Error error

	// ErrorType is the error classification (empty for successful publishes).
	ErrorType string

	// Duration is the time taken from Publish() call to completion (success or failure).
	Duration time.Duration
}

// listeners fans events out to registered functions.  It is the default
// Observer for Consumer and Publisher.
type listeners struct {
	errors        eventor.Eventor[func(*ErrorEvent)]
	subscriptions eventor.Eventor[func(*SubscriptionEvent)]
	rebalances    eventor.Eventor[func(*RebalanceEvent)]
	publishes     eventor.Eventor[func(*PublishEvent)]
}

var _ Observer = (*listeners)(nil)

func (l *listeners) RecordError(kind string, ec ErrorContext) {
	event := ErrorEvent{
		Kind:      kind,
		Operation: ec.Operation,
		Resource:  ec.Resource,
		Error:     ec.Err,
	}
	l.errors.Visit(func(fn func(*ErrorEvent)) {
		fn(&event)
	})
}

func (l *listeners) RecordSubscriptionChange(topics []string, change SubscriptionChange) {
	if len(topics) == 0 {
		return
	}
	event := SubscriptionEvent{
		Topics: append([]string(nil), topics...),
		Change: change,
	}
	l.subscriptions.Visit(func(fn func(*SubscriptionEvent)) {
		fn(&event)
	})
}

func (l *listeners) recordRebalance(event RebalanceEvent) {
	l.rebalances.Visit(func(fn func(*RebalanceEvent)) {
		fn(&event)
	})
}

func (l *listeners) recordPublish(event *PublishEvent, since time.Time, err error) {
	if err != nil {
		event.Error = err
		event.ErrorType = errorType(err)
	}
	event.Duration = time.Since(since)

	l.publishes.Visit(func(fn func(*PublishEvent)) {
		fn(event)
	})
}

// recordErr reports err under its classification.
func recordErr(o Observer, op, resource string, err error) {
	if o == nil || err == nil {
		return
	}
	o.RecordError(errorType(err), ErrorContext{
		Operation: op,
		Resource:  resource,
		Err:       err,
	})
}
