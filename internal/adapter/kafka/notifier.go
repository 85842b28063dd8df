package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/nxtensor/internal/config"
	"github.com/couchcryptid/nxtensor/internal/domain"
	"github.com/couchcryptid/nxtensor/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Notifier publishes one message per persisted artifact.
type Notifier struct {
	writer  messageWriter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewNotifier creates a Kafka producer for the configured artifact topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger, metrics: metrics}
}

// Publish serializes and writes artifacts in a single WriteMessages call.
func (n *Notifier) Publish(ctx context.Context, artifacts []domain.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(artifacts))
	for i := range artifacts {
		msg, err := serializeToMessage(artifacts[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		n.metrics.PublishErrors.Add(float64(len(msgs)))
		return fmt.Errorf("publish %d artifacts: %w", len(msgs), err)
	}
	n.metrics.ArtifactsPublished.Add(float64(len(msgs)))
	n.logger.Debug("artifacts published", "count", len(msgs))
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// Discard drops notifications. It is used when no broker is configured.
type Discard struct{}

func (Discard) Publish(context.Context, []domain.Artifact) error { return nil }
func (Discard) Close() error                                     { return nil }

// serializeToMessage marshals an Artifact into a Kafka message keyed by path.
func serializeToMessage(a domain.Artifact) (kafkago.Message, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize artifact: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(a.Path),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "artifact_kind", Value: []byte(a.Kind)},
			{Key: "produced_at", Value: []byte(a.ProducedAt.Format(time.RFC3339))},
		},
	}, nil
}
