// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

//go:build integration

package kafkabridge_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/kafkabridge"
	"github.com/xmidt-org/wrp-go/v5"
)

const (
	messageConsumeWait = 10 * time.Second
	pollWait           = 30 * time.Second
)

// configureTestContainersForPodman is a no-op since the Makefile sets the required
// environment variables (DOCKER_HOST, TESTCONTAINERS_DOCKER_SOCKET_OVERRIDE).
// We keep this function for backwards compatibility but don't set anything to avoid
// race conditions with testcontainers' internal caching.
func configureTestContainersForPodman(t *testing.T) {
	t.Helper()
	// Environment variables are set by the Makefile before running tests.
	// Nothing to do here.
}

// setupKafka starts Kafka using testcontainers and returns the container and broker address.
// Automatically registers cleanup to stop Kafka when test completes.
func setupKafka(t *testing.T) (*kafka.KafkaContainer, string) {
	t.Helper()

	// Skip if running in short mode
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Configure testcontainers to use Podman if DOCKER_HOST is set
	configureTestContainersForPodman(t)

	// Start Kafka container
	// Use confluent-local image which is designed for testcontainers
	// Using specific version tag since testcontainers validates version for KRaft mode
	kafkaContainer, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.8.0",
		kafka.WithClusterID("test-cluster"),
	)
	require.NoError(t, err, "Failed to start Kafka container")

	t.Cleanup(func() {
		t.Log("Stopping Kafka container...")
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Kafka container: %v", err)
		}
	})

	// Get broker address
	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "Failed to get Kafka brokers")
	require.NotEmpty(t, brokers, "No Kafka brokers available")

	broker := brokers[0]
	t.Logf("Kafka broker available at: %s", broker)

	// Verify Kafka is accepting connections
	require.NoError(t, waitForKafka(ctx, t, broker))

	return kafkaContainer, broker
}

// waitForKafka attempts to connect to Kafka broker until it responds or timeout.
func waitForKafka(ctx context.Context, t *testing.T, broker string) error {
	t.Helper()

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		client, err := kgo.NewClient(
			kgo.SeedBrokers(broker),
			kgo.RequestTimeoutOverhead(5*time.Second),
		)
		if err == nil {
			// Try to ping broker to verify it's responsive
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := client.Ping(pingCtx)
			cancel()
			client.Close()

			if err == nil {
				t.Log("Kafka is ready!")
				return nil
			}
			t.Logf("Kafka not ready yet: %v", err)
		}

		time.Sleep(1 * time.Second)
	}

	return context.DeadlineExceeded
}

// createTestPublisher starts a Publisher against broker and stops it when
// the test ends.
func createTestPublisher(t *testing.T, broker string, configure ...func(*kafkabridge.Publisher)) *kafkabridge.Publisher {
	t.Helper()

	pub := &kafkabridge.Publisher{
		Brokers:                []string{broker},
		AllowAutoTopicCreation: true, // Enable for integration tests
		RequestTimeout:         10 * time.Second,
	}
	for _, fn := range configure {
		fn(pub)
	}
	require.NoError(t, pub.Start())
	t.Cleanup(func() {
		pub.Stop(context.Background())
	})

	return pub
}

// startTestPool starts a WorkerPool and stops it when the test ends.
func startTestPool(t *testing.T) *kafkabridge.WorkerPool {
	t.Helper()

	pool := &kafkabridge.WorkerPool{Workers: 4}
	require.NoError(t, pool.Start())
	t.Cleanup(func() {
		_ = pool.Stop(context.Background())
	})
	return pool
}

// createTestConsumer starts a Consumer in group that reads from the earliest
// offset and closes it when the test ends.
func createTestConsumer(t *testing.T, broker, group string, configure ...func(*kafkabridge.Consumer)) *kafkabridge.Consumer {
	t.Helper()

	c := &kafkabridge.Consumer{
		Brokers:                []string{broker},
		GroupID:                group,
		Scheduler:              startTestPool(t),
		FromBeginning:          true,
		AllowAutoTopicCreation: true,
		FetchMaxWait:           500 * time.Millisecond,
		CodecTimeout:           5 * time.Second,
	}
	for _, fn := range configure {
		fn(c)
	}
	require.NoError(t, c.Start())

	// Registered after the pool so the consumer closes first.
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Close(ctx); err != nil {
			t.Logf("Failed to close consumer: %v", err)
		}
	})
	return c
}

// pollRecords polls c until it has at least n records or timeout passes.
func pollRecords(t *testing.T, c *kafkabridge.Consumer, n int, timeout time.Duration) []kafkabridge.ConsumerRecord {
	t.Helper()

	var records []kafkabridge.ConsumerRecord
	deadline := time.Now().Add(timeout)

	for len(records) < n && time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		got, err := c.Poll(ctx)
		cancel()
		if err != nil {
			t.Logf("Poll error: %v", err)
		}
		records = append(records, got...)
	}

	return records
}

// consumeMessages consumes messages from a Kafka topic with a timeout.
// Returns all messages received before timeout.
func consumeMessages(t *testing.T, broker string, topic string, timeout time.Duration) []*kgo.Record {
	t.Helper()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err, "Failed to create Kafka consumer")
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var records []*kgo.Record
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			break
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			t.Logf("Fetch error on %s[%d]: %v", topic, partition, err)
		})

		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})

		// If we got records, give a bit more time for any additional ones
		if len(records) > 0 {
			time.Sleep(500 * time.Millisecond)
			// Try one more fetch
			fetches = client.PollFetches(ctx)
			fetches.EachRecord(func(r *kgo.Record) {
				records = append(records, r)
			})
			break
		}

		time.Sleep(100 * time.Millisecond)
	}

	return records
}

// decodeWRPMessage decodes a msgpack-encoded WRP message from a Kafka record.
func decodeWRPMessage(t *testing.T, record *kgo.Record) *wrp.Message {
	t.Helper()

	var msg wrp.Message
	decoder := wrp.NewDecoderBytes(record.Value, wrp.Msgpack)
	err := decoder.Decode(&msg)
	require.NoError(t, err, "Failed to decode WRP message")

	return &msg
}

// createTestMessage creates a WRP message for testing.
func createTestMessage(eventType string, deviceID string) *wrp.Message {
	return &wrp.Message{
		Type:        wrp.SimpleEventMessageType,
		Source:      deviceID,
		Destination: "event:" + eventType + "/" + deviceID,
		Payload:     []byte(`{"status":"online"}`),
	}
}
