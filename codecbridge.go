// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Direction selects which Codec method an invocation calls.
type Direction int

const (
	DirectionEncode Direction = iota
	DirectionDecode
	DirectionClose
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case DirectionEncode:
		return "encode"
	case DirectionDecode:
		return "decode"
	case DirectionClose:
		return "close"
	default:
		return "unknown"
	}
}

const (
	bridgeOpen int = iota
	bridgeClosing
	bridgeClosed
)

// CodecBridge runs Codec methods on a Scheduler while the calling goroutine,
// typically a franz-go poll or produce path, blocks for the result.
//
// Every call is bounded by Timeout.  When it expires the caller gets
// ErrCodecTimeout and the scheduled task's context is cancelled; the bridge
// never waits for it again.
//
// Thread Safety: safe for concurrent use.
type CodecBridge struct {
	scheduler Scheduler
	timeout   time.Duration
	logger    kgo.Logger

	mu      sync.Mutex
	state   int
	closing chan struct{}
}

// NewCodecBridge creates a bridge over s.  A timeout <= 0 means calls wait
// until the codec returns, the caller's context ends, or the bridge closes.
func NewCodecBridge(s Scheduler, timeout time.Duration, logger kgo.Logger) *CodecBridge {
	if logger == nil {
		logger = &nopLogger{}
	}
	return &CodecBridge{
		scheduler: s,
		timeout:   timeout,
		logger:    logger,
		closing:   make(chan struct{}),
	}
}

// Encode runs c.Encode(v) on the scheduler.
func (b *CodecBridge) Encode(ctx context.Context, c Codec, v any) ([]byte, error) {
	out, err := b.Invoke(ctx, c, DirectionEncode, v)
	if err != nil {
		return nil, err
	}
	encoded, _ := out.([]byte)
	return encoded, nil
}

// Decode runs c.Decode(data) on the scheduler.
func (b *CodecBridge) Decode(ctx context.Context, c Codec, data []byte) (any, error) {
	return b.Invoke(ctx, c, DirectionDecode, data)
}

// CloseCodec runs c.Close on the scheduler.  It is allowed while the bridge
// is closing so teardown can still reach the codecs.
func (b *CodecBridge) CloseCodec(ctx context.Context, c Codec) error {
	_, err := b.Invoke(ctx, c, DirectionClose, nil)
	return err
}

// Invoke calls the Codec method selected by dir with payload and blocks until
// it returns.
func (b *CodecBridge) Invoke(ctx context.Context, c Codec, dir Direction, payload any) (any, error) {
	if c == nil {
		return nil, errors.Join(ErrNoCodec, fmt.Errorf("nil codec"))
	}

	closing, err := b.admit(dir)
	if err != nil {
		return nil, err
	}

	// Already on one of the scheduler's workers: handing off and blocking
	// could starve a single-worker pool, so run beside the caller instead.
	if onWorker(ctx, b.scheduler) {
		return b.invokeInline(ctx, closing, c, dir, payload)
	}

	results := make(chan codecResult, 1)

	h, err := b.scheduler.Schedule(ctx, func(tctx context.Context) error {
		out, err := callCodec(tctx, c, dir, payload)
		results <- codecResult{out: out, err: err}
		return err
	})
	if err != nil {
		if b.isClosing() {
			return nil, errors.Join(ErrClosed, err)
		}
		return nil, err
	}

	var expired <-chan time.Time
	if b.timeout > 0 {
		timer := time.NewTimer(b.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-results:
		return r.out, r.err
	case <-h.Done():
		// Dropped before it ran (cancelled or the scheduler stopped).
		select {
		case r := <-results:
			return r.out, r.err
		default:
		}
		if b.isClosing() {
			return nil, ErrClosed
		}
		return nil, errors.Join(ErrClosed, fmt.Errorf("task %s dropped: %w", h.ID, h.Err()))
	case <-expired:
		h.Cancel()
		b.logger.Log(kgo.LogLevelWarn, "codec invocation timed out",
			"direction", dir.String(), "task", h.ID.String(), "timeout", b.timeout.String())
		return nil, errors.Join(ErrCodecTimeout,
			fmt.Errorf("%s did not complete within %s", dir, b.timeout))
	case <-ctx.Done():
		h.Cancel()
		return nil, ctx.Err()
	case <-closing:
		h.Cancel()
		return nil, ErrClosed
	}
}

type codecResult struct {
	out any
	err error
}

// invokeInline runs the codec on its own goroutine without going through the
// scheduler.  The caller is released on timeout, cancellation or close even
// if the codec ignores its context; a late result is discarded.
func (b *CodecBridge) invokeInline(ctx context.Context, closing <-chan struct{}, c Codec, dir Direction, payload any) (any, error) {
	callCtx, cancel := b.withTimeout(ctx)
	defer cancel()

	results := make(chan codecResult, 1)
	go func() {
		out, err := callCodec(callCtx, c, dir, payload)
		results <- codecResult{out: out, err: err}
	}()

	select {
	case r := <-results:
		if r.err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, errors.Join(ErrCodecTimeout, r.err)
		}
		return r.out, r.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.logger.Log(kgo.LogLevelWarn, "codec invocation timed out",
			"direction", dir.String(), "timeout", b.timeout.String())
		return nil, errors.Join(ErrCodecTimeout,
			fmt.Errorf("%s did not complete within %s", dir, b.timeout))
	case <-closing:
		return nil, ErrClosed
	}
}

// Close fails every in-flight and future Encode/Decode with ErrClosed, then
// closes each codec through the scheduler.  Close errors are joined.  Calling
// Close again is a no-op.
func (b *CodecBridge) Close(ctx context.Context, codecs ...Codec) error {
	b.mu.Lock()
	if b.state != bridgeOpen {
		b.mu.Unlock()
		return nil
	}
	b.state = bridgeClosing
	close(b.closing)
	b.mu.Unlock()

	var errs []error
	for _, c := range codecs {
		if err := b.CloseCodec(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}

	b.mu.Lock()
	b.state = bridgeClosed
	b.mu.Unlock()

	return errors.Join(errs...)
}

// admit checks the bridge state and returns the channel that aborts the call
// when the bridge starts closing (nil for close calls).
func (b *CodecBridge) admit(dir Direction) (<-chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.state == bridgeClosed:
		return nil, ErrClosed
	case dir == DirectionClose:
		return nil, nil
	case b.state == bridgeClosing:
		return nil, ErrClosed
	}
	return b.closing, nil
}

func (b *CodecBridge) isClosing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state != bridgeOpen
}

func (b *CodecBridge) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout > 0 {
		return context.WithTimeout(ctx, b.timeout)
	}
	return context.WithCancel(ctx)
}

// callCodec runs the codec and turns errors and panics into ErrCodecFailure.
func callCodec(ctx context.Context, c Codec, dir Direction, payload any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(ErrCodecFailure, fmt.Errorf("%s panicked: %v", dir, r))
		}
	}()

	switch dir {
	case DirectionEncode:
		out, err = c.Encode(ctx, payload)
	case DirectionDecode:
		data, ok := payload.([]byte)
		if !ok {
			return nil, errors.Join(ErrInvalidValue, fmt.Errorf("decode needs []byte, got %T", payload))
		}
		out, err = c.Decode(ctx, data)
	case DirectionClose:
		err = c.Close(ctx)
	default:
		return nil, errors.Join(ErrInvalidValue, fmt.Errorf("unknown direction %d", dir))
	}

	if err != nil {
		return nil, errors.Join(ErrCodecFailure, fmt.Errorf("%s: %w", dir, err))
	}
	return out, nil
}
