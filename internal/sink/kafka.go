package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/nao1215/yieldpage/internal/model"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each record as one message keyed by URL, so every
// version of a page lands on the same partition.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink creates a sink producing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: false,
		},
	}
}

// NewKafkaSinkWithWriter builds a sink on a custom writer (tests).
func NewKafkaSinkWithWriter(writer messageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

// Emit implements Sink.
func (s *KafkaSink) Emit(ctx context.Context, rec *model.PageRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(rec.URL),
		Value: payload,
		Time:  rec.FetchedAt.UTC(),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish record %s: %w", rec.URL, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
