package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// OutboundMessage is the wire shape published for the mailer consumer.
type OutboundMessage struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	QueuedAt  time.Time `json:"queued_at"`
	MessageID string    `json:"message_id,omitempty"`
}

// AMQPSender publishes outbound notifications to a RabbitMQ exchange. The
// actual email delivery happens in a separate mailer consumer.
type AMQPSender struct {
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	exchange   string
	routingKey string
}

// NewAMQPSender dials the broker and declares a durable exchange and queue
// bound with the queue name as routing key.
func NewAMQPSender(url, exchange, queueName string) (*AMQPSender, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := channel.QueueBind(queue.Name, queue.Name, exchange, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &AMQPSender{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: queue.Name,
	}, nil
}

// Send publishes one message; it is safe to call from multiple workers.
func (s *AMQPSender) Send(ctx context.Context, from, to, subject, body string) error {
	msg := OutboundMessage{
		From:     from,
		To:       to,
		Subject:  subject,
		Body:     body,
		QueuedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}

	err = s.channel.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("publish outbound message: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (s *AMQPSender) Close() error {
	if err := s.channel.Close(); err != nil {
		s.conn.Close()
		return fmt.Errorf("close channel: %w", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}
