package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/community-events/internal/config"
	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/couchcryptid/community-events/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces publication announcements to a Kafka topic.
// It implements workflow.Announcer.
type Writer struct {
	writer  messageWriter
	topic   string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the configured publication topic.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaPublishTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, topic: cfg.KafkaPublishTopic, metrics: metrics, logger: logger}
}

// Announce publishes the events in a single WriteMessages call. Messages are
// keyed by event ID so updates to one event land on the same partition.
func (w *Writer) Announce(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			w.metrics.FeedMessages.WithLabelValues("error").Add(float64(len(events)))
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		w.metrics.FeedMessages.WithLabelValues("error").Add(float64(len(events)))
		return fmt.Errorf("write to %s: %w", w.topic, err)
	}
	w.metrics.FeedMessages.WithLabelValues("sent").Add(float64(len(events)))
	w.logger.Debug("publication announced", "topic", w.topic, "events", len(events))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a published event into a Kafka message.
func serializeToMessage(event domain.Event) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize event %s: %w", event.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(event.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(event.Source)},
			{Key: "status", Value: []byte(event.Status)},
			{Key: "published_at", Value: []byte(event.ExtraString(domain.KeyPublishedAt))},
		},
	}, nil
}
