// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// The scalar layouts match the stock Kafka String, Long, Double and
// ByteArray serializers so records interoperate with non-Go clients.

func appendInt64(dst []byte, n int64) []byte {
	//nolint:gosec // G115: two's complement reinterpretation is the wire format
	return binary.BigEndian.AppendUint64(dst, uint64(n))
}

func appendFloat64(dst []byte, f float64) []byte {
	return binary.BigEndian.AppendUint64(dst, math.Float64bits(f))
}

func readInt64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, errors.Join(ErrInvalidValue,
			fmt.Errorf("int64 needs 8 bytes, got %d", len(b)))
	}
	//nolint:gosec // G115: two's complement reinterpretation is the wire format
	return int64(binary.BigEndian.Uint64(b)), nil
}

func readFloat64(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, errors.Join(ErrInvalidValue,
			fmt.Errorf("float64 needs 8 bytes, got %d", len(b)))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func readText(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", errors.Join(ErrInvalidValue, fmt.Errorf("text is not valid UTF-8"))
	}
	return string(b), nil
}
