// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEncoder_Scalars(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		key       Value
		value     Value
		wantKey   []byte
		wantValue []byte
	}{
		{
			name:      "absent key with bytes value",
			key:       Absent(),
			value:     Bytes([]byte{1, 2, 3}),
			wantKey:   nil,
			wantValue: []byte{1, 2, 3},
		},
		{
			name:      "text key and value",
			key:       Text("k"),
			value:     Text("héllo"),
			wantKey:   []byte("k"),
			wantValue: []byte("héllo"),
		},
		{
			name:      "int64 big endian",
			key:       Int64(1),
			value:     Int64(-2),
			wantKey:   []byte{0, 0, 0, 0, 0, 0, 0, 1},
			wantValue: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe},
		},
		{
			name:      "float64 ieee754",
			key:       Absent(),
			value:     Float64(1.0),
			wantKey:   nil,
			wantValue: []byte{0x3f, 0xf0, 0, 0, 0, 0, 0, 0},
		},
		{
			name:      "tombstone",
			key:       Text("gone"),
			value:     Absent(),
			wantKey:   []byte("gone"),
			wantValue: nil,
		},
		{
			name:      "empty bytes are not absent",
			key:       Bytes(nil),
			value:     Bytes([]byte{}),
			wantKey:   []byte{},
			wantValue: []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var e RecordEncoder

			rec, err := e.Encode(context.Background(), "topic", tt.key, tt.value)
			require.NoError(t, err)

			assert.Equal(t, "topic", rec.Topic)
			assert.Equal(t, tt.wantKey, rec.Key)
			assert.Equal(t, tt.wantValue, rec.Value)
			assert.Equal(t, tt.wantKey == nil, rec.Key == nil)
			assert.Equal(t, tt.wantValue == nil, rec.Value == nil)
			assert.Equal(t, tt.key.Kind(), rec.KeyKind)
			assert.Equal(t, tt.value.Kind(), rec.ValueKind)
			assert.Nil(t, rec.Partition)
			assert.Nil(t, rec.Timestamp)
		})
	}
}

func TestRecordEncoder_ScalarRoundTrip(t *testing.T) {
	t.Parallel()

	ints := []int64{0, 1, -1, math.MaxInt64, math.MinInt64, 1 << 40}
	floats := []float64{
		0, math.Copysign(0, -1), 1.5, -3.25e-300,
		math.Inf(1), math.Inf(-1), math.Float64frombits(0x7ff8000000000001),
		math.SmallestNonzeroFloat64, math.MaxFloat64,
	}

	var e RecordEncoder
	ctx := context.Background()

	for _, n := range ints {
		rec, err := e.Encode(ctx, "t", Absent(), Int64(n))
		require.NoError(t, err)
		got, err := ValueDecoder{Kind: KindInt64}.decode(ctx, nil, nil, rec.Value)
		require.NoError(t, err)
		assert.True(t, got.Equal(Int64(n)), "int64 %d", n)
	}

	for _, f := range floats {
		rec, err := e.Encode(ctx, "t", Absent(), Float64(f))
		require.NoError(t, err)
		got, err := ValueDecoder{Kind: KindFloat64}.decode(ctx, nil, nil, rec.Value)
		require.NoError(t, err)
		gf, _ := got.Float64()
		assert.Equal(t, math.Float64bits(f), math.Float64bits(gf), "float64 %v", f)
	}
}

func TestRecordEncoder_Options(t *testing.T) {
	t.Parallel()

	e := RecordEncoder{KindHeaders: true}
	rec, err := e.Encode(context.Background(), "orders", Text("k"), Int64(5),
		WithPartition(3),
		WithTimestamp(1700000000123),
		WithHeader("trace", []byte("abc")),
	)
	require.NoError(t, err)

	require.NotNil(t, rec.Partition)
	assert.Equal(t, int32(3), *rec.Partition)
	require.NotNil(t, rec.Timestamp)
	assert.Equal(t, int64(1700000000123), *rec.Timestamp)

	require.Len(t, rec.Headers, 3)
	assert.Equal(t, "trace", rec.Headers[0].Key)
	assert.Equal(t, HeaderKeyKind, rec.Headers[1].Key)
	assert.Equal(t, []byte("text"), rec.Headers[1].Value)
	assert.Equal(t, HeaderValueKind, rec.Headers[2].Key)
	assert.Equal(t, []byte("int64"), rec.Headers[2].Value)

	kr := rec.kgoRecord(context.Background())
	assert.Equal(t, "orders", kr.Topic)
	assert.Equal(t, int32(3), kr.Partition)
	assert.Equal(t, time.UnixMilli(1700000000123), kr.Timestamp)
	p, ok := explicitPartition(kr)
	require.True(t, ok)
	assert.Equal(t, int32(3), p)
}

func TestRecordEncoder_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		topic string
		key   Value
		value Value
		opts  []RecordOption
		want  error
	}{
		{"empty topic", "", Absent(), Text("x"), nil, ErrInvalidValue},
		{"negative partition", "t", Absent(), Text("x"), []RecordOption{WithPartition(-1)}, ErrInvalidValue},
		{"record without schema", "t", Absent(), Record(Field{Name: "a", Value: Int64(1)}), nil, ErrNoCodec},
		{"opaque without codec", "t", Opaque("nope", 1), Absent(), nil, ErrNoCodec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var e RecordEncoder

			rec, err := e.Encode(context.Background(), tt.topic, tt.key, tt.value, tt.opts...)
			assert.Nil(t, rec)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRecordEncoder_Record(t *testing.T) {
	t.Parallel()

	schema, err := NewRecordSchema(orderSchema, true)
	require.NoError(t, err)

	var e RecordEncoder
	e.RegisterValueSchema("orders", schema)

	value := Record(
		Field{Name: "id", Value: Int64(7)},
		Field{Name: "item", Value: Text("widget")},
		Field{Name: "price", Value: Float64(9.99)},
		Field{Name: "note", Value: Absent()},
		Field{Name: "shipping", Value: Record(
			Field{Name: "city", Value: Text("Philadelphia")},
			Field{Name: "zip", Value: Int64(19103)},
		)},
	)

	rec, err := e.Encode(context.Background(), "orders", Text("7"), value)
	require.NoError(t, err)

	got, err := schema.Unmarshal(rec.Value)
	require.NoError(t, err)
	assert.True(t, value.Equal(got), "got %s", got)

	// Key schemas are separate from value schemas.
	_, err = e.Encode(context.Background(), "orders", value, Absent())
	assert.ErrorIs(t, err, ErrNoCodec)
	assert.Contains(t, err.Error(), "key: ")

	// Schemas are per topic.
	_, err = e.Encode(context.Background(), "refunds", Absent(), value)
	assert.ErrorIs(t, err, ErrNoCodec)
}

func TestRecordEncoder_Opaque(t *testing.T) {
	t.Parallel()

	pool := startPool(t, 1)
	codecs := &CodecRegistry{}
	require.NoError(t, codecs.Register("upper", CodecFuncs{
		EncodeFunc: func(_ context.Context, v any) ([]byte, error) {
			s, ok := v.(string)
			if !ok {
				return nil, errors.New("not a string")
			}
			return []byte(s + "!"), nil
		},
	}))

	t.Run("encodes through the bridge", func(t *testing.T) {
		t.Parallel()
		e := RecordEncoder{Codecs: codecs, Bridge: NewCodecBridge(pool, time.Second, nil)}

		rec, err := e.Encode(context.Background(), "t", Absent(), Opaque("upper", "hi"))
		require.NoError(t, err)
		assert.Equal(t, []byte("hi!"), rec.Value)
	})

	t.Run("codec errors surface", func(t *testing.T) {
		t.Parallel()
		e := RecordEncoder{Codecs: codecs, Bridge: NewCodecBridge(pool, time.Second, nil)}

		_, err := e.Encode(context.Background(), "t", Absent(), Opaque("upper", 42))
		assert.ErrorIs(t, err, ErrCodecFailure)
		assert.Contains(t, err.Error(), "not a string")
	})

	t.Run("no bridge", func(t *testing.T) {
		t.Parallel()
		e := RecordEncoder{Codecs: codecs}

		_, err := e.Encode(context.Background(), "t", Absent(), Opaque("upper", "hi"))
		assert.ErrorIs(t, err, ErrNoCodec)
	})
}

func TestValueDecoder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		name    string
		decoder ValueDecoder
		in      []byte
		want    Value
		wantErr error
	}{
		{"nil is absent", ValueDecoder{Kind: KindText}, nil, Absent(), nil},
		{"default is bytes", ValueDecoder{}, []byte{1, 2}, Bytes([]byte{1, 2}), nil},
		{"text", ValueDecoder{Kind: KindText}, []byte("abc"), Text("abc"), nil},
		{"invalid utf8", ValueDecoder{Kind: KindText}, []byte{0xff, 0xfe}, Value{}, ErrInvalidValue},
		{"short int64", ValueDecoder{Kind: KindInt64}, []byte{1, 2, 3}, Value{}, ErrInvalidValue},
		{"long float64", ValueDecoder{Kind: KindFloat64}, make([]byte, 9), Value{}, ErrInvalidValue},
		{"opaque without codec", ValueDecoder{Kind: KindOpaque, Shape: "x"}, []byte{1}, Value{}, ErrNoCodec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.decoder.decode(ctx, nil, nil, tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestValueDecoder_Validate(t *testing.T) {
	t.Parallel()

	codecs := &CodecRegistry{}
	require.NoError(t, codecs.Register(ShapeWRP, WRPCodec{}))

	assert.NoError(t, ValueDecoder{}.validate(nil))
	assert.NoError(t, ValueDecoder{Kind: KindOpaque, Shape: ShapeWRP}.validate(codecs))
	assert.ErrorIs(t, ValueDecoder{Kind: KindOpaque, Shape: "other"}.validate(codecs), ErrValidation)
	assert.ErrorIs(t, ValueDecoder{Kind: KindRecord}.validate(nil), ErrValidation)
	assert.ErrorIs(t, ValueDecoder{Kind: Kind(99)}.validate(nil), ErrValidation)
}
