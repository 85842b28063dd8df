//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/nxtensor/internal/adapter/kafka"
	"github.com/couchcryptid/nxtensor/internal/config"
	"github.com/couchcryptid/nxtensor/internal/domain"
	"github.com/couchcryptid/nxtensor/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testTopic = "test-artifacts"

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("nxtensor-test"))
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate kafka: %v", err)
		}
	})
	require.NoError(t, err, "start kafka container")

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestNotifierPublishes verifies artifact notifications round-trip through a
// real broker with their key and headers.
func TestNotifierPublishes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := kafka.NewNotifier(cfg, logger, observability.NewMetricsForTesting())
	defer notifier.Close()

	produced := time.Date(2024, 4, 27, 6, 0, 0, 0, time.UTC)
	var artifacts []domain.Artifact
	for i := range 3 {
		artifacts = append(artifacts, domain.Artifact{
			RunID:      "run-1",
			Kind:       domain.ArtifactBlock,
			Subject:    "msl",
			Label:      "tc",
			Period:     fmt.Sprintf("2000_%d", 10+i),
			Path:       fmt.Sprintf("/blocks/msl/tc/2000_%d", 10+i),
			Rows:       4,
			ProducedAt: produced,
		})
	}
	require.NoError(t, notifier.Publish(ctx, artifacts))

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	defer reader.Close()

	for i := range artifacts {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := reader.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read message %d", i)

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, artifacts[i].Path, string(msg.Key))
		assert.Equal(t, "block", headers["artifact_kind"])
		assert.Equal(t, "2024-04-27T06:00:00Z", headers["produced_at"])

		var got domain.Artifact
		require.NoError(t, json.Unmarshal(msg.Value, &got))
		assert.Equal(t, artifacts[i], got)
	}
}
