package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает одно событие.
// Ошибка обработчика останавливает потребление.
type Handler func(ctx context.Context, msg *Message) error

// EventConsumer читает события runs и экземпляров
// через эксклюзивную очередь (используется командой spectra events).
type EventConsumer struct {
	conn    *Connection
	logger  *slog.Logger
	pattern string
	handler Handler
}

// EventConsumerConfig — конфигурация EventConsumer.
type EventConsumerConfig struct {
	// Pattern — шаблон routing key (default: "#").
	Pattern string

	// Handler — обработчик событий (обязательно).
	Handler Handler

	// Logger
	Logger *slog.Logger
}

// NewEventConsumer создаёт EventConsumer.
func NewEventConsumer(conn *Connection, cfg EventConsumerConfig) *EventConsumer {
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = "#"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &EventConsumer{
		conn:    conn,
		logger:  logger,
		pattern: pattern,
		handler: cfg.Handler,
	}
}

// Pattern возвращает шаблон routing key подписки.
func (c *EventConsumer) Pattern() string {
	return c.pattern
}

// Run потребляет события до отмены ctx или ошибки обработчика.
// После переподключения очередь объявляется заново.
func (c *EventConsumer) Run(ctx context.Context) error {
	for {
		deliveries, err := c.subscribe(ctx)
		if err != nil {
			c.logger.Error("failed to subscribe to events", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				continue
			}
		}

		if err := c.process(ctx, deliveries); err != nil {
			return err
		}

		c.logger.Warn("event stream closed, waiting for reconnect")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
		}
	}
}

// subscribe объявляет эксклюзивную очередь и привязывает её к обменникам.
func (c *EventConsumer) subscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	var deliveries <-chan amqp.Delivery

	err := c.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		q, err := ch.QueueDeclare(
			"",    // name (generated)
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare event queue: %w", err)
		}

		for _, ex := range []Exchange{ExchangeRuns, ExchangeInstances} {
			if err := ch.QueueBind(q.Name, c.pattern, string(ex), false, nil); err != nil {
				return fmt.Errorf("bind event queue to %s: %w", ex, err)
			}
		}

		deliveries, err = ch.ConsumeWithContext(ctx,
			q.Name, // queue
			"",     // consumer tag
			true,   // auto-ack
			true,   // exclusive
			false,  // no-local
			false,  // no-wait
			nil,    // args
		)
		if err != nil {
			return fmt.Errorf("consume events: %w", err)
		}
		return nil
	})

	return deliveries, err
}

// process передаёт события обработчику.
// Возвращает nil, если канал доставки закрылся.
func (c *EventConsumer) process(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return nil
			}

			msg, err := DecodeMessage(raw.Body)
			if err != nil {
				c.logger.Warn("skipping malformed event", "error", err)
				continue
			}
			if err := c.handler(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// DecodeMessage разбирает тело AMQP сообщения.
func DecodeMessage(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message %q has no type", msg.ID)
	}
	return &msg, nil
}

// ParsePayload разбирает payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
