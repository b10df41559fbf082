package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/TimurManjosov/gorules/internal/rules"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSink publishes events to a durable topic exchange. The routing key
// defaults to the event type.
type AMQPSink struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

// NewAMQPSink dials url and declares the exchange.
func NewAMQPSink(url, exchange, routingKey string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange, routingKey: routingKey}, nil
}

func (a *AMQPSink) Name() string { return "amqp" }

func (a *AMQPSink) Send(ctx context.Context, ev Event) error {
	msg, err := amqpPublishing(ev)
	if err != nil {
		return err
	}
	key := a.routingKey
	if key == "" {
		key = ev.Type
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ch.PublishWithContext(ctx, a.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to exchange %s: %w", a.exchange, err)
	}
	return nil
}

func (a *AMQPSink) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.ch.Close()
	return a.conn.Close()
}

func amqpPublishing(ev Event) (amqp.Publishing, error) {
	payload, err := rules.EncodeJSON(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    ev.Timestamp,
		Body:         payload,
	}, nil
}
