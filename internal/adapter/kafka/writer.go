package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/cmorph-ingest/internal/config"
	"github.com/couchcryptid/cmorph-ingest/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes step-written notifications to a Kafka topic.
// It implements pipeline.Notifier.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured notification topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Notify publishes one step-written event.
func (w *Writer) Notify(ctx context.Context, event domain.StepWritten) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish step %s: %w", event.Period.Format(domain.DateLayout), err)
	}
	w.logger.Debug("step notification published", "topic", w.writer.Topic, "period", event.Period.Format(domain.DateLayout))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a StepWritten event into a Kafka message keyed by output file.
func serializeToMessage(event domain.StepWritten) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize step event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.OutFile),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "obs_type", Value: []byte(event.ObsType)},
			{Key: "aggregation", Value: []byte(event.Aggregation)},
			{Key: "written_at", Value: []byte(event.WrittenAt.Format(time.RFC3339))},
		},
	}, nil
}
