// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kgo"
)

type explicitPartitionKey struct{}

// explicitTarget is the partition a caller chose.  available is set by the
// partitioner when the topic has too few partitions for it.
type explicitTarget struct {
	partition int32
	available atomic.Int32
}

// withExplicitPartition marks ctx so explicitPartitioner sends the record to p.
func withExplicitPartition(ctx context.Context, p int32) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, explicitPartitionKey{}, &explicitTarget{partition: p})
}

func explicitTargetOf(r *kgo.Record) (*explicitTarget, bool) {
	if r == nil || r.Context == nil {
		return nil, false
	}
	t, ok := r.Context.Value(explicitPartitionKey{}).(*explicitTarget)
	return t, ok
}

func explicitPartition(r *kgo.Record) (int32, bool) {
	t, ok := explicitTargetOf(r)
	if !ok {
		return 0, false
	}
	return t.partition, true
}

// partitionOutOfRange reports an explicit partition the topic does not have.
func partitionOutOfRange(r *kgo.Record) error {
	t, ok := explicitTargetOf(r)
	if !ok {
		return nil
	}
	if n := t.available.Load(); n > 0 {
		return errors.Join(ErrInvalidValue,
			fmt.Errorf("partition %d out of range, topic %q has %d", t.partition, r.Topic, n))
	}
	return nil
}

// explicitPartitioner honours a partition chosen by the caller and otherwise
// hashes keys with murmur2 as the Kafka default partitioner does.  Keyless
// records are spread round robin.
type explicitPartitioner struct {
	keyed kgo.Partitioner
}

var _ kgo.Partitioner = (*explicitPartitioner)(nil)

func newExplicitPartitioner() *explicitPartitioner {
	return &explicitPartitioner{
		keyed: kgo.StickyKeyPartitioner(nil),
	}
}

func (p *explicitPartitioner) ForTopic(topic string) kgo.TopicPartitioner {
	return &explicitTopicPartitioner{
		keyed: p.keyed.ForTopic(topic),
	}
}

type explicitTopicPartitioner struct {
	keyed kgo.TopicPartitioner
	next  atomic.Uint64
}

func (tp *explicitTopicPartitioner) RequiresConsistency(r *kgo.Record) bool {
	if _, ok := explicitPartition(r); ok {
		return true
	}
	return r.Key != nil
}

func (tp *explicitTopicPartitioner) Partition(r *kgo.Record, n int) int {
	if n <= 0 {
		return 0
	}
	if t, ok := explicitTargetOf(r); ok {
		// franz-go fails the record for a choice outside [0, n).
		if int(t.partition) >= n {
			t.available.Store(int32(n))
		}
		return int(t.partition)
	}
	if r.Key != nil {
		return tp.keyed.Partition(r, n)
	}
	return int((tp.next.Add(1) - 1) % uint64(n))
}
