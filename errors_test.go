// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestErrors(t *testing.T) {
	t.Parallel()

	t.Run("sentinel errors", func(t *testing.T) {
		t.Parallel()
		sentinels := []error{
			ErrInvalidPattern,
			ErrSubscribeRejected,
			ErrUnsubscribeRejected,
			ErrNoCodec,
			ErrSchemaMismatch,
			ErrInvalidValue,
			ErrCodecFailure,
			ErrCodecTimeout,
			ErrClosed,
			ErrScheduleRejected,
			ErrHandlerFailure,
			ErrRateLimited,
			ErrCircuitOpen,
			ErrBroker,
			ErrBufferFull,
			ErrValidation,
			ErrNotStarted,
			ErrAlreadyStarted,
		}

		seen := make(map[string]bool)
		for _, sentinel := range sentinels {
			me, ok := sentinel.(*metricError) // nolint:errorlint
			assert.True(t, ok, "sentinel should be *metricError")
			assert.NotEmpty(t, me.message, "sentinel should have message")
			assert.NotEmpty(t, me.metric, "sentinel should have metric type")
			assert.Equal(t, me.message, me.Error())
			assert.Equal(t, me.metric, me.Metric())
			assert.False(t, seen[me.metric], "metric %q used twice", me.metric)
			seen[me.metric] = true
		}
	})

	t.Run("error wrapping with errors.Is", func(t *testing.T) {
		t.Parallel()

		wrapped := errors.Join(ErrCodecFailure, fmt.Errorf("boom"))
		assert.True(t, errors.Is(wrapped, ErrCodecFailure))
		assert.False(t, errors.Is(wrapped, ErrBroker))

		doubleWrapped := fmt.Errorf("outer: %w", wrapped)
		assert.True(t, errors.Is(doubleWrapped, ErrCodecFailure))
	})

	t.Run("error types for metrics", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name     string
			err      error
			expected string
		}{
			{"invalid pattern", ErrInvalidPattern, "invalid_pattern"},
			{"subscribe rejected", ErrSubscribeRejected, "subscribe_rejected"},
			{"codec timeout", ErrCodecTimeout, "codec_timeout"},
			{"closed", ErrClosed, "closed"},
			{"not started", ErrNotStarted, "not_started"},
			{"nil error", nil, ""},
			{"unknown error", fmt.Errorf("random"), "unknown"},
			{"joined keeps first sentinel", errors.Join(ErrScheduleRejected, ErrClosed), "schedule_rejected"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.Equal(t, tt.expected, errorType(tt.err))
			})
		}
	})

	t.Run("Is() method semantics", func(t *testing.T) {
		t.Parallel()

		assert.True(t, errors.Is(ErrClosed, ErrClosed))
		assert.False(t, errors.Is(ErrClosed, ErrBroker))

		newErr := &metricError{metric: "closed", message: "test"}
		assert.False(t, errors.Is(newErr, ErrClosed))

		assert.False(t, errors.Is(nil, ErrClosed))
		assert.False(t, errors.Is(ErrClosed, nil))
	})
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, ""},
		{"client closed", kgo.ErrClientClosed, reasonClientClosed},
		{"deadline", context.DeadlineExceeded, reasonTimeout},
		{"record timeout", kgo.ErrRecordTimeout, reasonTimeout},
		{"invalid state", fmt.Errorf("poll: %w", errInvalidState), reasonInvalidState},
		{"unknown topic", kerr.UnknownTopicOrPartition, reasonInvalidTopic},
		{"invalid topic", kerr.InvalidTopicException, reasonInvalidTopic},
		{"topic authorization", kerr.TopicAuthorizationFailed, reasonAuthorization},
		{"group authorization", kerr.GroupAuthorizationFailed, reasonAuthorization},
		{"retriable", kerr.NotLeaderForPartition, reasonRetriable},
		{"other", errors.New("socket exploded"), reasonBroker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, classify(tt.err))
		})
	}
}

func TestRejected(t *testing.T) {
	t.Parallel()

	err := rejected(ErrSubscribeRejected, OpSubscribe, kerr.TopicAuthorizationFailed)

	assert.ErrorIs(t, err, ErrSubscribeRejected)
	assert.Contains(t, err.Error(), "subscribe failed (authorization)")
	assert.Equal(t, "subscribe_rejected", errorType(err))

	// The franz-go error type does not leak.
	var ke *kerr.Error
	assert.False(t, errors.As(err, &ke))
}
