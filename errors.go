// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

var (
	// ErrInvalidPattern indicates a subscription pattern failed to compile.
	ErrInvalidPattern = &metricError{
		metric:  "invalid_pattern",
		message: "invalid subscription pattern",
	}

	// ErrSubscribeRejected indicates the broker client refused a subscription.
	ErrSubscribeRejected = &metricError{
		metric:  "subscribe_rejected",
		message: "subscribe rejected",
	}

	// ErrUnsubscribeRejected indicates the broker client refused to unsubscribe.
	ErrUnsubscribeRejected = &metricError{
		metric:  "unsubscribe_rejected",
		message: "unsubscribe rejected",
	}

	// ErrNoCodec indicates no codec or schema is registered for a value.
	ErrNoCodec = &metricError{
		metric:  "no_codec",
		message: "no codec registered",
	}

	// ErrSchemaMismatch indicates a record value does not fit its schema.
	ErrSchemaMismatch = &metricError{
		metric:  "schema_mismatch",
		message: "schema mismatch",
	}

	// ErrInvalidValue indicates a value or record argument is unusable.
	ErrInvalidValue = &metricError{
		metric:  "invalid_value",
		message: "invalid value",
	}

	// ErrCodecFailure indicates a user codec returned an error or panicked.
	ErrCodecFailure = &metricError{
		metric:  "codec_failure",
		message: "codec failed",
	}

	// ErrCodecTimeout indicates a codec invocation did not finish in time.
	ErrCodecTimeout = &metricError{
		metric:  "codec_timeout",
		message: "codec timed out",
	}

	// ErrClosed indicates the handle has been closed or is shutting down.
	ErrClosed = &metricError{
		metric:  "closed",
		message: "closed",
	}

	// ErrScheduleRejected indicates the scheduler refused a task.
	ErrScheduleRejected = &metricError{
		metric:  "schedule_rejected",
		message: "task rejected by scheduler",
	}

	// ErrHandlerFailure indicates a rebalance handler returned an error or
	// panicked.
	ErrHandlerFailure = &metricError{
		metric:  "handler_failure",
		message: "rebalance handler failed",
	}

	// ErrRateLimited indicates a publish was refused by the rate limiter.
	ErrRateLimited = &metricError{
		metric:  "rate_limited",
		message: "rate limited",
	}

	// ErrCircuitOpen indicates synchronous publishing is suspended after
	// repeated broker failures.
	ErrCircuitOpen = &metricError{
		metric:  "circuit_open",
		message: "circuit breaker open",
	}

	// ErrBroker indicates Kafka broker rejected the message.
	ErrBroker = &metricError{
		metric:  "broker_error",
		message: "broker error",
	}

	// ErrBufferFull indicates the producer buffer is at capacity.
	ErrBufferFull = &metricError{
		metric:  "buffer_full",
		message: "buffer full",
	}

	// ErrValidation indicates configuration validation failed.
	ErrValidation = &metricError{
		metric:  "validation_error",
		message: "validation error",
	}

	// ErrNotStarted indicates the handle has not been started.
	ErrNotStarted = &metricError{
		metric:  "not_started",
		message: "not started",
	}

	// ErrAlreadyStarted indicates the handle has already been started.
	ErrAlreadyStarted = &metricError{
		metric:  "already_started",
		message: "already started",
	}
)

// metricError is an internal error type that wraps errors with a type classification
// for metrics and observability. The metric field provides a string label for grouping
// errors in metrics systems.
type metricError struct {
	metric  string
	message string
}

// Error implements the error interface.
func (e *metricError) Error() string {
	return e.message
}

func (e *metricError) Metric() string {
	return e.metric
}

func (e *metricError) Is(target error) bool {
	if t, ok := target.(*metricError); ok {
		return e.message == t.message
	}
	return false
}

// errorType extracts the error type string for metrics classification.
// Walks the error chain to find metricError types.
func errorType(err error) string {
	if err == nil {
		return ""
	}

	var me *metricError
	if errors.As(err, &me) {
		return me.Metric()
	}

	return "unknown"
}

// Reason labels used when classifying errors returned by franz-go.
const (
	reasonInvalidTopic  = "invalid_topic"
	reasonAuthorization = "authorization"
	reasonRetriable     = "retriable_broker"
	reasonClientClosed  = "client_closed"
	reasonTimeout       = "timeout"
	reasonInvalidState  = "invalid_state"
	reasonBroker        = "broker"
)

// errInvalidState is returned by collaborators that are asked to act before
// they are ready or after they have been torn down.
var errInvalidState = errors.New("invalid client state")

// classify reduces a collaborator error to a short reason label.  Raw franz-go
// and kerr types never leave the package; callers get the label wrapped in one
// of the sentinels above.
func classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, kgo.ErrClientClosed):
		return reasonClientClosed
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, kgo.ErrRecordTimeout):
		return reasonTimeout
	case errors.Is(err, errInvalidState):
		return reasonInvalidState
	case errors.Is(err, kerr.InvalidTopicException),
		errors.Is(err, kerr.UnknownTopicOrPartition),
		errors.Is(err, kerr.TopicDeletionDisabled):
		return reasonInvalidTopic
	case errors.Is(err, kerr.TopicAuthorizationFailed),
		errors.Is(err, kerr.GroupAuthorizationFailed),
		errors.Is(err, kerr.ClusterAuthorizationFailed),
		errors.Is(err, kerr.SaslAuthenticationFailed):
		return reasonAuthorization
	case kerr.IsRetriable(err):
		return reasonRetriable
	}
	return reasonBroker
}

// rejected wraps a collaborator failure into sentinel, keeping the reason and
// the message but not the collaborator's own error type.
func rejected(sentinel *metricError, op string, err error) error {
	return errors.Join(sentinel,
		fmt.Errorf("%s failed (%s): %s", op, classify(err), err.Error()))
}
