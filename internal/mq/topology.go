package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/ModuleTrack/internal/domain"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeSessions Exchange = "moduletrack.sessions"
	ExchangeDLQ      Exchange = "moduletrack.dlq"
)

// Queues — имена очередей.
const (
	QueueAuditEvents Queue = "audit.events"
	QueueDLQEvents   Queue = "dlq.events"
)

// Routing keys.
const (
	RoutingKeyStepRecorded RoutingKey = "step_recorded"
	RoutingKeyCompleted    RoutingKey = "completed"
	RoutingKeySignedOff    RoutingKey = "signed_off"
	RoutingKeyAbandoned    RoutingKey = "abandoned"
	RoutingKeyDLQEvents    RoutingKey = "events"
)

// sessionRoutingKeys — ключи событий сессий; все попадают в audit.events.
var sessionRoutingKeys = []RoutingKey{
	RoutingKeyStepRecorded,
	RoutingKeyCompleted,
	RoutingKeySignedOff,
	RoutingKeyAbandoned,
}

// RoutingKeyFor возвращает ключ маршрутизации для типа события.
func RoutingKeyFor(t domain.EventType) (RoutingKey, error) {
	switch t {
	case domain.EventStepRecorded:
		return RoutingKeyStepRecorded, nil
	case domain.EventSessionCompleted:
		return RoutingKeyCompleted, nil
	case domain.EventSessionSignedOff:
		return RoutingKeySignedOff, nil
	case domain.EventSessionAbandoned:
		return RoutingKeyAbandoned, nil
	default:
		return "", fmt.Errorf("unknown event type %q", t)
	}
}

// SetupTopology объявляет обменники, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Создаём exchanges
		if err := declareExchanges(ch); err != nil {
			return err
		}

		// 2. Создаём queues
		if err := declareQueues(ch); err != nil {
			return err
		}

		// 3. Привязываем queues к exchanges
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	for _, name := range []Exchange{ExchangeSessions, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(name), // name
			"direct",     // type
			true,         // durable
			false,        // auto-deleted
			false,        // internal
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// audit.events — битые сообщения уходят в DLQ
		{QueueAuditEvents, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQEvents),
		}},
		{QueueDLQEvents, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

// binding — привязка очереди к обменнику.
type binding struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// bindings возвращает все привязки топологии.
func bindings() []binding {
	out := make([]binding, 0, len(sessionRoutingKeys)+1)
	for _, key := range sessionRoutingKeys {
		out = append(out, binding{QueueAuditEvents, key, ExchangeSessions})
	}
	return append(out, binding{QueueDLQEvents, RoutingKeyDLQEvents, ExchangeDLQ})
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	for _, b := range bindings() {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s/%s: %w", b.queue, b.exchange, b.routingKey, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  ModuleTrack RabbitMQ Topology:

    moduletrack.sessions (direct)
    └── audit.events [routing: step_recorded, completed, signed_off, abandoned]
            Consumer: moduletrack-audit
            DLQ: dlq.events

    moduletrack.dlq (direct)
    └── dlq.events [routing: events]
            Manual processing
  `
}
