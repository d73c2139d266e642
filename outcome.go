// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

// Delivery selects how Publish hands a record to the broker client.  It is
// passed to Publish as an option.
type Delivery int

const (
	// DeliverySync waits for the broker to acknowledge the record.  This is
	// the default.
	DeliverySync Delivery = iota

	// DeliveryAsync buffers the record, waiting for buffer space if needed.
	// Failures are reported through publish events.
	DeliveryAsync

	// DeliveryTry buffers the record only if there is room right now.
	DeliveryTry
)

func (d Delivery) applyPublish(o *publishOptions) { o.delivery = d }

// String returns the string representation of the Delivery.
func (d Delivery) String() string {
	switch d {
	case DeliverySync:
		return "sync"
	case DeliveryAsync:
		return "async"
	case DeliveryTry:
		return "try"
	default:
		return "unknown"
	}
}

// Outcome represents the result of a Publish() operation.
type Outcome int

const (
	// Accepted indicates the record was delivered AND confirmed by Kafka.
	// Only returned for DeliverySync.
	Accepted Outcome = iota

	// Queued indicates the record was locally buffered but NOT confirmed
	// with the broker.  Only returned for DeliveryAsync.
	Queued

	// Attempted indicates the record was handed to the client without
	// waiting.  The final result arrives as a publish event.
	// Only returned for DeliveryTry.
	Attempted

	// Dropped indicates the record was not sent because there was no room
	// for it right now: the rate limit for DeliveryTry was exhausted.
	Dropped

	// Failed indicates the record could not be built or was rejected.
	Failed
)

// String returns the string representation of the Outcome.
func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "Accepted"
	case Queued:
		return "Queued"
	case Attempted:
		return "Attempted"
	case Dropped:
		return "Dropped"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}
