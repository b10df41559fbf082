package events

import (
	"fmt"

	"github.com/TimurManjosov/gorules/internal/config"
)

// NewSink builds the sink selected by cfg.EventsSink. It returns nil for
// config.SinkNone.
func NewSink(cfg *config.Config) (Sink, error) {
	switch cfg.EventsSink {
	case config.SinkNone, "":
		return nil, nil
	case config.SinkWebhook:
		return NewWebhookSink(cfg.WebhookURL, cfg.WebhookSecret, nil), nil
	case config.SinkKafka:
		return NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case config.SinkAMQP:
		return NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
	default:
		return nil, fmt.Errorf("unknown events sink %q", cfg.EventsSink)
	}
}
