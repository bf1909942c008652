package queue

import (
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Publisher mirrors accepted webhook events onto a durable RabbitMQ queue so
// downstream consumers (reporting, audit) see the same stream the engine
// persisted. Publishing is best-effort; a nil Publisher is a no-op.
type Publisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   string
	prefix  string
}

func NewPublisher(url, queue, prefix string) (*Publisher, error) {
	if url == "" {
		log.Info().Msg("RABBITMQ_URL is not set, event mirroring disabled")
		return nil, nil
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not open RabbitMQ channel: %w", err)
	}

	log.Info().Str("queue", queue).Str("prefix", prefix).Msg("RabbitMQ connection established")

	return &Publisher{conn: conn, channel: channel, queue: queue, prefix: prefix}, nil
}

// PublishEvent wraps the original event with internal identifiers and
// publishes it. The queue name is derived from the event type.
func (p *Publisher) PublishEvent(eventType, instanceID, tenantID string, original json.RawMessage) error {
	if p == nil {
		return nil
	}

	payload := map[string]interface{}{
		"event":      original,
		"eventType":  eventType,
		"instanceId": instanceID,
		"tenantId":   tenantID,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal mirror payload: %w", err)
	}

	queueName := p.prefix + "_" + p.queue

	// Declare is idempotent.
	if _, err := p.channel.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("could not declare queue %s: %w", queueName, err)
	}

	err = p.channel.Publish("", queueName, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        data,
	})
	if err != nil {
		return fmt.Errorf("could not publish to queue %s: %w", queueName, err)
	}

	log.Debug().Str("queue", queueName).Str("eventType", eventType).Msg("Event mirrored to RabbitMQ")
	return nil
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
