package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPNotifier publishes events to a topic exchange, routed by event topic.
type AMQPNotifier struct {
	conn     *amqp091.Connection
	channel  amqpChannel
	exchange string
	timeout  time.Duration
}

// DialAMQP connects to the broker and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPNotifier, error) {
	if exchange == "" {
		exchange = "wallet.events"
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPNotifier{conn: conn, channel: ch, exchange: exchange, timeout: 5 * time.Second}, nil
}

// Notify implements Notifier.
func (n *AMQPNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.channel == nil {
		return errors.New("events: amqp channel not configured")
	}
	msg, err := publishing(event)
	if err != nil {
		return err
	}
	timeout := n.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := n.channel.PublishWithContext(ctx, n.exchange, event.Topic, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.Topic, err)
	}
	return nil
}

// Close releases the channel and connection.
func (n *AMQPNotifier) Close() error {
	if n == nil {
		return nil
	}
	var joined error
	if n.channel != nil {
		joined = errors.Join(joined, n.channel.Close())
	}
	if n.conn != nil {
		joined = errors.Join(joined, n.conn.Close())
	}
	return joined
}

func publishing(event Event) (amqp091.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.ID.String(),
		Type:         event.Topic,
		Timestamp:    event.OccurredAt,
		Body:         body,
	}, nil
}

// Ping reports whether the broker connection is still open.
func (n *AMQPNotifier) Ping(context.Context) error {
	if n == nil || n.conn == nil {
		return errors.New("events: amqp not connected")
	}
	if n.conn.IsClosed() {
		return errors.New("events: amqp connection closed")
	}
	return nil
}
