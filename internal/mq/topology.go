package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// Обменники событий. Тип topic: потребители подписываются по шаблону.
const (
	ExchangeRuns      Exchange = "spectra.runs"
	ExchangeInstances Exchange = "spectra.instances"
)

// QueueRunsFinished — durable очередь завершённых runs
// для внешних потребителей (уведомления, учёт).
const QueueRunsFinished Queue = "spectra.runs.finished"

// Ключи маршрутизации совпадают с типом сообщения.
const (
	RoutingKeyRunStarted        RoutingKey = "run.started"
	RoutingKeyRunFinished       RoutingKey = "run.finished"
	RoutingKeyInstanceReady     RoutingKey = "instance.ready"
	RoutingKeyInstanceCompleted RoutingKey = "instance.completed"
)

// SetupTopology объявляет обменники и durable очереди.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range []Exchange{ExchangeRuns, ExchangeInstances} {
			err := ch.ExchangeDeclare(
				string(ex), // name
				"topic",    // type
				true,       // durable
				false,      // auto-deleted
				false,      // internal
				false,      // no-wait
				nil,        // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		if _, err := ch.QueueDeclare(string(QueueRunsFinished), true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueRunsFinished, err)
		}
		if err := ch.QueueBind(string(QueueRunsFinished), string(RoutingKeyRunFinished), string(ExchangeRuns), false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", QueueRunsFinished, err)
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Spectra RabbitMQ Topology:

    spectra.runs (topic)
    ├── run.started
    └── run.finished ──> spectra.runs.finished (durable)

    spectra.instances (topic)
    ├── instance.ready
    └── instance.completed

    spectra events: exclusive queue bound to both exchanges ("#")
  `
}
