// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// ValueDecoder describes how consumed key or value bytes become a Value.
// The zero ValueDecoder yields Bytes values.
type ValueDecoder struct {
	// Kind is the Value kind to produce.  KindAbsent is treated as KindBytes.
	Kind Kind

	// Shape names the registered Codec when Kind is KindOpaque.
	Shape string

	// Schema decodes Avro records when Kind is KindRecord.
	Schema *RecordSchema
}

func (d ValueDecoder) validate(codecs *CodecRegistry) error {
	switch d.Kind {
	case KindAbsent, KindText, KindInt64, KindFloat64, KindBytes:
		return nil
	case KindRecord:
		if d.Schema == nil {
			return errors.Join(ErrValidation, fmt.Errorf("record decoder needs a schema"))
		}
		return nil
	case KindOpaque:
		if _, ok := codecs.Lookup(d.Shape); !ok {
			return errors.Join(ErrValidation, fmt.Errorf("no codec registered for shape %q", d.Shape))
		}
		return nil
	}
	return errors.Join(ErrValidation, fmt.Errorf("unknown decoder kind %d", d.Kind))
}

// decode turns b into a Value.  A nil b is always Absent.
func (d ValueDecoder) decode(ctx context.Context, bridge *CodecBridge, codecs *CodecRegistry, b []byte) (Value, error) {
	if b == nil {
		return Absent(), nil
	}

	switch d.Kind {
	case KindAbsent, KindBytes:
		return Bytes(b), nil

	case KindText:
		s, err := readText(b)
		if err != nil {
			return Value{}, err
		}
		return Text(s), nil

	case KindInt64:
		n, err := readInt64(b)
		if err != nil {
			return Value{}, err
		}
		return Int64(n), nil

	case KindFloat64:
		f, err := readFloat64(b)
		if err != nil {
			return Value{}, err
		}
		return Float64(f), nil

	case KindRecord:
		return d.Schema.Unmarshal(b)

	case KindOpaque:
		c, ok := codecs.Lookup(d.Shape)
		if !ok {
			return Value{}, errors.Join(ErrNoCodec,
				fmt.Errorf("no codec registered for shape %q", d.Shape))
		}
		out, err := bridge.Decode(ctx, c, b)
		if err != nil {
			return Value{}, err
		}
		return Opaque(d.Shape, out), nil
	}

	return Value{}, errors.Join(ErrInvalidValue, fmt.Errorf("unknown decoder kind %d", d.Kind))
}

// ConsumerRecord is a consumed record with decoded key and value.
type ConsumerRecord struct {
	Topic     string
	Partition int32
	Offset    int64

	// Timestamp is the record time in Unix milliseconds.
	Timestamp int64

	Key   Value
	Value Value

	Headers []kgo.RecordHeader
}

// PartitionRef returns the record's topic and partition.
func (r *ConsumerRecord) PartitionRef() PartitionRef {
	return PartitionRef{Topic: r.Topic, Partition: r.Partition}
}

func timestampMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
