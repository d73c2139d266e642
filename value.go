// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
)

// Kind identifies which variant of a Value is active.
type Kind int

const (
	// KindAbsent is the zero Value: no key or no value at all.
	KindAbsent Kind = iota

	// KindText holds a UTF-8 string.
	KindText

	// KindInt64 holds a signed 64-bit integer.
	KindInt64

	// KindFloat64 holds an IEEE-754 double.
	KindFloat64

	// KindBytes holds a raw byte sequence.
	KindBytes

	// KindRecord holds an ordered list of named fields (an Avro-like record).
	KindRecord

	// KindOpaque holds an application value that needs a registered Codec.
	KindOpaque
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindText:
		return "text"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindBytes:
		return "bytes"
	case KindRecord:
		return "record"
	case KindOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// Value is a tagged key or value for a Kafka record.  Exactly one variant is
// active; the zero Value is Absent.  Values are immutable once built, which is
// what makes them safe to hand across goroutines by copy.
type Value struct {
	kind   Kind
	text   string
	num    int64
	float  float64
	bytes  []byte
	fields []Field
	shape  string
	opaque any
}

// Field is a single named member of a record Value.
type Field struct {
	Name  string
	Value Value
}

// Absent returns the absent Value.
func Absent() Value { return Value{} }

// Text returns a text Value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Int64 returns a 64-bit integer Value.
func Int64(n int64) Value { return Value{kind: KindInt64, num: n} }

// Float64 returns a double Value.
func Float64(f float64) Value { return Value{kind: KindFloat64, float: f} }

// Bytes returns a bytes Value.  The input is copied.
func Bytes(b []byte) Value {
	return Value{kind: KindBytes, bytes: bytes.Clone(nonNil(b))}
}

// Record returns a record Value with the fields in the given order.  The field
// slice is copied so later changes by the caller are not observed.
func Record(fields ...Field) Value {
	fs := make([]Field, len(fields))
	copy(fs, fields)
	return Value{kind: KindRecord, fields: fs}
}

// Opaque returns a Value carrying an application type.  The shape names the
// Codec that knows how to encode it; the encoder never inspects v itself.
func Opaque(shape string, v any) Value {
	return Value{kind: KindOpaque, shape: shape, opaque: v}
}

// Kind returns the active variant.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether v is the absent Value.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Text returns the string and whether v is a text Value.
func (v Value) Text() (string, bool) { return v.text, v.kind == KindText }

// Int64 returns the integer and whether v is an int64 Value.
func (v Value) Int64() (int64, bool) { return v.num, v.kind == KindInt64 }

// Float64 returns the double and whether v is a float64 Value.
func (v Value) Float64() (float64, bool) { return v.float, v.kind == KindFloat64 }

// Bytes returns a copy of the bytes and whether v is a bytes Value.
func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return bytes.Clone(v.bytes), true
}

// Fields returns a copy of the record fields and whether v is a record Value.
func (v Value) Fields() ([]Field, bool) {
	if v.kind != KindRecord {
		return nil, false
	}
	fs := make([]Field, len(v.fields))
	copy(fs, v.fields)
	return fs, true
}

// Field returns the named record field.
func (v Value) Field(name string) (Value, bool) {
	for _, f := range v.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Opaque returns the declared shape, the application value, and whether v is
// an opaque Value.
func (v Value) Opaque() (string, any, bool) {
	return v.shape, v.opaque, v.kind == KindOpaque
}

// Equal reports whether v and o hold the same variant and contents.  Float
// comparison is bit-exact so NaN payloads round trip too.  Opaque values are
// equal when their shape matches and the held values compare equal with ==;
// values of non-comparable types are never equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}

	switch v.kind {
	case KindAbsent:
		return true
	case KindText:
		return v.text == o.text
	case KindInt64:
		return v.num == o.num
	case KindFloat64:
		return math.Float64bits(v.float) == math.Float64bits(o.float)
	case KindBytes:
		return bytes.Equal(v.bytes, o.bytes)
	case KindRecord:
		if len(v.fields) != len(o.fields) {
			return false
		}
		for i := range v.fields {
			if v.fields[i].Name != o.fields[i].Name || !v.fields[i].Value.Equal(o.fields[i].Value) {
				return false
			}
		}
		return true
	case KindOpaque:
		if v.shape != o.shape {
			return false
		}
		if v.opaque == nil || o.opaque == nil {
			return v.opaque == o.opaque
		}
		if !reflect.TypeOf(v.opaque).Comparable() || !reflect.TypeOf(o.opaque).Comparable() {
			return false
		}
		return v.opaque == o.opaque
	}
	return false
}

// String renders v for logs and test failures.
func (v Value) String() string {
	switch v.kind {
	case KindAbsent:
		return "absent"
	case KindText:
		return fmt.Sprintf("text(%q)", v.text)
	case KindInt64:
		return fmt.Sprintf("int64(%d)", v.num)
	case KindFloat64:
		return fmt.Sprintf("float64(%g)", v.float)
	case KindBytes:
		return fmt.Sprintf("bytes(%x)", v.bytes)
	case KindRecord:
		var b bytes.Buffer
		b.WriteString("record{")
		for i, f := range v.fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			b.WriteString(f.Value.String())
		}
		b.WriteString("}")
		return b.String()
	case KindOpaque:
		return fmt.Sprintf("opaque(%s)", v.shape)
	}
	return "unknown"
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// PartitionRef names a single partition of a topic.
type PartitionRef struct {
	Topic     string
	Partition int32
}

// String returns "topic/partition".
func (p PartitionRef) String() string {
	return fmt.Sprintf("%s/%d", p.Topic, p.Partition)
}
