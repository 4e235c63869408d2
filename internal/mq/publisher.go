package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/ModuleTrack/internal/domain"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — конверт сообщения в очереди.
type Message struct {
	// ID — уникальный идентификатор сообщения (совпадает с ID события).
	ID string `json:"id"`

	// Type — тип события.
	Type domain.EventType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewEventMessage заворачивает событие сессии в конверт.
func NewEventMessage(evt domain.AuditEvent) *Message {
	ts := evt.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &Message{
		ID:        evt.ID.String(),
		Type:      evt.Type,
		Payload:   evt,
		Timestamp: ts,
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishEvent публикует событие сессии в moduletrack.sessions.
// Потребитель: audit.
func (p *Publisher) PublishEvent(ctx context.Context, evt domain.AuditEvent) error {
	key, err := RoutingKeyFor(evt.Type)
	if err != nil {
		return err
	}
	return p.Publish(ctx, ExchangeSessions, key, NewEventMessage(evt))
}
