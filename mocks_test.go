// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/twmb/franz-go/pkg/kgo"
)

// mockKafkaClient is a mock implementation of kafkaClient for testing.
type mockKafkaClient struct {
	mock.Mock
}

func (m *mockKafkaClient) Produce(ctx context.Context, r *kgo.Record, cb func(*kgo.Record, error)) {
	m.Called(ctx, r, cb)
}

func (m *mockKafkaClient) TryProduce(ctx context.Context, r *kgo.Record, cb func(*kgo.Record, error)) {
	m.Called(ctx, r, cb)
}

func (m *mockKafkaClient) Flush(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockKafkaClient) Close() {
	m.Called()
}

func (m *mockKafkaClient) BufferedProduceRecords() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}

func (m *mockKafkaClient) BufferedProduceBytes() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}

func (m *mockKafkaClient) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	args := m.Called(ctx, rs)
	if fn, ok := args.Get(0).(func(context.Context, []*kgo.Record) kgo.ProduceResults); ok {
		return fn(ctx, rs)
	}
	return args.Get(0).(kgo.ProduceResults)
}

// mockBrokerConsumer is a mock implementation of brokerConsumer for testing.
type mockBrokerConsumer struct {
	mock.Mock
}

func (m *mockBrokerConsumer) Subscribe(ctx context.Context, topics []string, l rebalanceListener) error {
	args := m.Called(ctx, topics, l)
	return args.Error(0)
}

func (m *mockBrokerConsumer) SubscribePattern(ctx context.Context, pattern string, l rebalanceListener) error {
	args := m.Called(ctx, pattern, l)
	return args.Error(0)
}

func (m *mockBrokerConsumer) Unsubscribe(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockBrokerConsumer) Topics() []string {
	args := m.Called()
	topics, _ := args.Get(0).([]string)
	return topics
}

func (m *mockBrokerConsumer) Poll(ctx context.Context) ([]*kgo.Record, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]*kgo.Record)
	return records, args.Error(1)
}

func (m *mockBrokerConsumer) Close() {
	m.Called()
}

// mockConsumerClient is a mock implementation of consumerClient for testing.
type mockConsumerClient struct {
	mock.Mock
}

func (m *mockConsumerClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockConsumerClient) PollFetches(ctx context.Context) kgo.Fetches {
	args := m.Called(ctx)
	fetches, _ := args.Get(0).(kgo.Fetches)
	return fetches
}

func (m *mockConsumerClient) GetConsumeTopics() []string {
	args := m.Called()
	topics, _ := args.Get(0).([]string)
	return topics
}

func (m *mockConsumerClient) Close() {
	m.Called()
}
