// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Acks specifies the broker acknowledgment requirements.
type Acks string

const (
	// AcksAll requires all ISR replicas to acknowledge (strongest durability).
	AcksAll Acks = "all"

	// AcksLeader requires only the leader replica to acknowledge.
	AcksLeader Acks = "leader"

	// AcksNone requires no acknowledgment.
	AcksNone Acks = "none"
)

// Compression specifies the record batch compression algorithm.
type Compression string

const (
	CompressionSnappy Compression = "snappy"
	CompressionGzip   Compression = "gzip"
	CompressionLz4    Compression = "lz4"
	CompressionZstd   Compression = "zstd"
	CompressionNone   Compression = "none"
)

var (
	acksOpts = map[Acks]kgo.Acks{
		AcksAll:    kgo.AllISRAcks(),
		AcksLeader: kgo.LeaderAck(),
		AcksNone:   kgo.NoAck(),
	}
	acksList = []string{string(AcksAll), string(AcksLeader), string(AcksNone)}

	compressionOpts = map[Compression]kgo.CompressionCodec{
		CompressionSnappy: kgo.SnappyCompression(),
		CompressionGzip:   kgo.GzipCompression(),
		CompressionLz4:    kgo.Lz4Compression(),
		CompressionZstd:   kgo.ZstdCompression(),
		CompressionNone:   kgo.NoCompression(),
	}
	compressionList = []string{
		string(CompressionSnappy),
		string(CompressionGzip),
		string(CompressionLz4),
		string(CompressionZstd),
		string(CompressionNone),
	}
)

func (a Acks) validate() error {
	if a == "" {
		return nil
	}
	if _, ok := acksOpts[a]; ok {
		return nil
	}
	return errors.Join(ErrValidation,
		fmt.Errorf("acks '%s' is invalid: must be %s or empty", a, quoted(acksList)))
}

// opt returns the franz-go option for a, nil for the default.
func (a Acks) opt() kgo.Opt {
	acks, ok := acksOpts[a]
	if !ok {
		return nil
	}
	return kgo.RequiredAcks(acks)
}

func (c Compression) validate() error {
	if c == "" {
		return nil
	}
	if _, ok := compressionOpts[c]; ok {
		return nil
	}
	return errors.Join(ErrValidation,
		fmt.Errorf("compression codec '%s' is invalid: must be %s or empty", c, quoted(compressionList)))
}

// opt returns the franz-go option for c.  Empty means no compression.
func (c Compression) opt() kgo.Opt {
	codec, ok := compressionOpts[c]
	if !ok {
		codec = kgo.NoCompression()
	}
	return kgo.ProducerBatchCompression(codec)
}

func quoted(list []string) string {
	return "'" + strings.Join(list, "', '") + "'"
}
