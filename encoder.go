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

// Headers carrying the kind of the key and value, so consumers can pick a
// decoder without out-of-band agreement.
const (
	HeaderKeyKind   = "kafkabridge-key-kind"
	HeaderValueKind = "kafkabridge-value-kind"
)

// OutboundRecord is a finished, broker-ready record.  It is built per publish
// call and handed to the transport once.
type OutboundRecord struct {
	Topic string

	// Partition is the explicit target partition, nil to let the
	// partitioner decide.
	Partition *int32

	// Timestamp is the record time in Unix milliseconds, nil for "now".
	Timestamp *int64

	// Key is nil when the key was Absent.
	Key []byte

	// Value is nil when the value was Absent (a tombstone).
	Value []byte

	KeyKind   Kind
	ValueKind Kind

	Headers []kgo.RecordHeader
}

// RecordOption sets optional record attributes.
type RecordOption func(*OutboundRecord)

// WithPartition targets a specific partition.
func WithPartition(p int32) RecordOption {
	return func(r *OutboundRecord) { r.Partition = &p }
}

// WithTimestamp sets the record timestamp in Unix milliseconds.
func WithTimestamp(ms int64) RecordOption {
	return func(r *OutboundRecord) { r.Timestamp = &ms }
}

// WithHeader appends a record header.
func WithHeader(key string, value []byte) RecordOption {
	return func(r *OutboundRecord) {
		r.Headers = append(r.Headers, kgo.RecordHeader{Key: key, Value: value})
	}
}

// kgoRecord converts r into a franz-go record.  The context carries the
// explicit partition for explicitPartitioner.
func (r *OutboundRecord) kgoRecord(ctx context.Context) *kgo.Record {
	rec := &kgo.Record{
		Topic:   r.Topic,
		Key:     r.Key,
		Value:   r.Value,
		Headers: r.Headers,
		Context: ctx,
	}
	if r.Partition != nil {
		rec.Partition = *r.Partition
		rec.Context = withExplicitPartition(ctx, *r.Partition)
	}
	if r.Timestamp != nil {
		rec.Timestamp = time.UnixMilli(*r.Timestamp)
	}
	return rec
}

// RecordEncoder turns tagged keys and values into OutboundRecords.  Opaque
// values go through the Codec Bridge; records go through the RecordSchema
// registered for the topic.
//
// Thread Safety: safe for concurrent use once configured.
type RecordEncoder struct {
	// Codecs resolves opaque values by shape.
	Codecs *CodecRegistry

	// Bridge runs codecs on the host scheduler.  Required for opaque values.
	Bridge *CodecBridge

	// KindHeaders adds HeaderKeyKind/HeaderValueKind to every record.
	KindHeaders bool

	mu      sync.RWMutex
	schemas map[schemaKey]*RecordSchema
}

type schemaKey struct {
	topic string
	isKey bool
}

// RegisterKeySchema sets the schema for record keys on topic.
func (e *RecordEncoder) RegisterKeySchema(topic string, s *RecordSchema) {
	e.register(schemaKey{topic: topic, isKey: true}, s)
}

// RegisterValueSchema sets the schema for record values on topic.
func (e *RecordEncoder) RegisterValueSchema(topic string, s *RecordSchema) {
	e.register(schemaKey{topic: topic}, s)
}

func (e *RecordEncoder) register(k schemaKey, s *RecordSchema) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.schemas == nil {
		e.schemas = make(map[schemaKey]*RecordSchema)
	}
	e.schemas[k] = s
}

func (e *RecordEncoder) schema(topic string, isKey bool) (*RecordSchema, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.schemas[schemaKey{topic: topic, isKey: isKey}]
	return s, ok && s != nil
}

// Encode builds the record for topic.  It has no side effects: on error
// nothing has been sent and no state has changed.
func (e *RecordEncoder) Encode(ctx context.Context, topic string, key, value Value, opts ...RecordOption) (*OutboundRecord, error) {
	if topic == "" {
		return nil, errors.Join(ErrInvalidValue, fmt.Errorf("topic must not be empty"))
	}

	rec := &OutboundRecord{
		Topic:     topic,
		KeyKind:   key.Kind(),
		ValueKind: value.Kind(),
	}
	for _, opt := range opts {
		opt(rec)
	}

	if rec.Partition != nil && *rec.Partition < 0 {
		return nil, errors.Join(ErrInvalidValue,
			fmt.Errorf("partition %d must not be negative", *rec.Partition))
	}

	var err error
	if rec.Key, err = e.encodeValue(ctx, topic, true, key); err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	if rec.Value, err = e.encodeValue(ctx, topic, false, value); err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}

	if e.KindHeaders {
		rec.Headers = append(rec.Headers,
			kgo.RecordHeader{Key: HeaderKeyKind, Value: []byte(key.Kind().String())},
			kgo.RecordHeader{Key: HeaderValueKind, Value: []byte(value.Kind().String())},
		)
	}

	return rec, nil
}

func (e *RecordEncoder) encodeValue(ctx context.Context, topic string, isKey bool, v Value) ([]byte, error) {
	switch v.Kind() {
	case KindAbsent:
		return nil, nil

	case KindText:
		s, _ := v.Text()
		return []byte(s), nil

	case KindInt64:
		n, _ := v.Int64()
		return appendInt64(make([]byte, 0, 8), n), nil

	case KindFloat64:
		f, _ := v.Float64()
		return appendFloat64(make([]byte, 0, 8), f), nil

	case KindBytes:
		b, _ := v.Bytes()
		return b, nil

	case KindRecord:
		s, ok := e.schema(topic, isKey)
		if !ok {
			return nil, errors.Join(ErrNoCodec,
				fmt.Errorf("no record schema registered for topic %q", topic))
		}
		return s.Marshal(v)

	case KindOpaque:
		shape, payload, _ := v.Opaque()
		c, ok := e.Codecs.Lookup(shape)
		if !ok {
			return nil, errors.Join(ErrNoCodec,
				fmt.Errorf("no codec registered for shape %q", shape))
		}
		if e.Bridge == nil {
			return nil, errors.Join(ErrNoCodec, fmt.Errorf("no codec bridge configured"))
		}
		return e.Bridge.Encode(ctx, c, payload)
	}

	return nil, errors.Join(ErrInvalidValue, fmt.Errorf("unknown value kind %d", v.Kind()))
}
