// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/xmidt-org/wrp-go/v5"
)

// Codec is user-supplied serialization for opaque keys and values.  Its
// methods always run on the host Scheduler, never on a franz-go goroutine.
type Codec interface {
	// Encode turns an application value into record bytes.
	Encode(ctx context.Context, v any) ([]byte, error)

	// Decode turns record bytes back into an application value.
	Decode(ctx context.Context, b []byte) (any, error)

	// Close releases anything the codec holds.
	Close(ctx context.Context) error
}

// CodecFuncs adapts plain functions to a Codec.  Nil functions fail with
// ErrNoCodec, except CloseFunc which is optional.
type CodecFuncs struct {
	EncodeFunc func(ctx context.Context, v any) ([]byte, error)
	DecodeFunc func(ctx context.Context, b []byte) (any, error)
	CloseFunc  func(ctx context.Context) error
}

var _ Codec = CodecFuncs{}

func (c CodecFuncs) Encode(ctx context.Context, v any) ([]byte, error) {
	if c.EncodeFunc == nil {
		return nil, errors.Join(ErrNoCodec, fmt.Errorf("codec cannot encode"))
	}
	return c.EncodeFunc(ctx, v)
}

func (c CodecFuncs) Decode(ctx context.Context, b []byte) (any, error) {
	if c.DecodeFunc == nil {
		return nil, errors.Join(ErrNoCodec, fmt.Errorf("codec cannot decode"))
	}
	return c.DecodeFunc(ctx, b)
}

func (c CodecFuncs) Close(ctx context.Context) error {
	if c.CloseFunc == nil {
		return nil
	}
	return c.CloseFunc(ctx)
}

// CodecRegistry maps an opaque value's declared shape to its Codec.
//
// Thread Safety: safe for concurrent use.
type CodecRegistry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// Register adds or replaces the codec for shape.
func (r *CodecRegistry) Register(shape string, c Codec) error {
	if shape == "" {
		return errors.Join(ErrValidation, fmt.Errorf("codec shape must not be empty"))
	}
	if c == nil {
		return errors.Join(ErrValidation, fmt.Errorf("codec for %q is nil", shape))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.codecs == nil {
		r.codecs = make(map[string]Codec)
	}
	r.codecs[shape] = c
	return nil
}

// Lookup returns the codec registered for shape.
func (r *CodecRegistry) Lookup(shape string) (Codec, bool) {
	if r == nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.codecs[shape]
	return c, ok
}

// all returns every registered codec once, even if registered under several
// shapes.
func (r *CodecRegistry) all() []Codec {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[Codec]struct{}, len(r.codecs))
	list := make([]Codec, 0, len(r.codecs))
	for _, c := range r.codecs {
		// Codecs holding funcs or maps, directly or behind an interface
		// field, cannot be map keys and are not deduplicated.
		if reflect.ValueOf(c).Comparable() {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
		}
		list = append(list, c)
	}
	return list
}

// ShapeWRP is the shape the built-in WRPCodec is registered under by default.
const ShapeWRP = "wrp"

// WRPCodec encodes *wrp.Message values as msgpack.
type WRPCodec struct{}

var _ Codec = WRPCodec{}

func (WRPCodec) Encode(_ context.Context, v any) ([]byte, error) {
	var msg *wrp.Message
	switch m := v.(type) {
	case *wrp.Message:
		msg = m
	case wrp.Message:
		msg = &m
	default:
		return nil, errors.Join(ErrInvalidValue, fmt.Errorf("wrp codec cannot encode %T", v))
	}
	if msg == nil {
		return nil, errors.Join(ErrInvalidValue, fmt.Errorf("wrp codec cannot encode a nil message"))
	}

	var out []byte
	if err := wrp.NewEncoderBytes(&out, wrp.Msgpack).Encode(msg); err != nil {
		return nil, err
	}
	return out, nil
}

func (WRPCodec) Decode(_ context.Context, b []byte) (any, error) {
	var msg wrp.Message
	if err := wrp.NewDecoderBytes(b, wrp.Msgpack).Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (WRPCodec) Close(context.Context) error { return nil }
