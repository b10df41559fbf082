package events

import (
	"context"
	"fmt"

	"github.com/TimurManjosov/gorules/internal/rules"
	"github.com/segmentio/kafka-go"
)

// KafkaSink writes events to a topic keyed by rule id, so changes to one
// rule stay ordered within a partition.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Send(ctx context.Context, ev Event) error {
	msg, err := kafkaMessage(ev)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write to kafka topic %s: %w", k.writer.Topic, err)
	}
	return nil
}

func (k *KafkaSink) Close() error { return k.writer.Close() }

func kafkaMessage(ev Event) (kafka.Message, error) {
	payload, err := rules.EncodeJSON(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.Resource.ID),
		Value: payload,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(ev.Type)},
			{Key: "delivery", Value: []byte(ev.ID)},
		},
	}, nil
}
