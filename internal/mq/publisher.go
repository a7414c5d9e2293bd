package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип события.
type MessageType string

// Типы событий.
const (
	MessageTypeRunStarted        MessageType = "run.started"
	MessageTypeRunFinished       MessageType = "run.finished"
	MessageTypeInstanceReady     MessageType = "instance.ready"
	MessageTypeInstanceCompleted MessageType = "instance.completed"
)

// Message — конверт события.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип события.
	Type MessageType `json:"type"`

	// Payload — RunEventPayload или InstanceEventPayload.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// RunEventPayload — событие жизненного цикла run.
type RunEventPayload struct {
	RunID      uuid.UUID `json:"run_id"`
	Pipeline   string    `json:"pipeline"`
	Status     string    `json:"status"`
	Samples    int       `json:"samples"`
	Trigger    string    `json:"trigger,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
}

// InstanceEventPayload — событие экземпляра стадии.
type InstanceEventPayload struct {
	InstanceID uuid.UUID `json:"instance_id"`
	RunID      uuid.UUID `json:"run_id"`
	Stage      string    `json:"stage"`
	SampleID   string    `json:"sample_id"`
	Status     string    `json:"status"`
	ExitCode   int       `json:"exit_code"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
}

// Publisher публикует события run в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher поверх соединения.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// NewMessage создаёт конверт события с новым ID.
func NewMessage(t MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Publish публикует сообщение в exchange с ключом, равным типу сообщения.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange), // exchange
			string(msg.Type), // routing key
			false,            // mandatory
			false,            // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish %s to %s: %w", msg.Type, exchange, err)
		}

		p.logger.Debug("published event",
			"exchange", exchange,
			"type", msg.Type,
			"message_id", msg.ID,
		)
		return nil
	})
}

// PublishRunStarted публикует run.started.
func (p *Publisher) PublishRunStarted(ctx context.Context, payload RunEventPayload) error {
	return p.Publish(ctx, ExchangeRuns, NewMessage(MessageTypeRunStarted, payload))
}

// PublishRunFinished публикует run.finished.
func (p *Publisher) PublishRunFinished(ctx context.Context, payload RunEventPayload) error {
	return p.Publish(ctx, ExchangeRuns, NewMessage(MessageTypeRunFinished, payload))
}

// PublishInstanceReady публикует instance.ready.
func (p *Publisher) PublishInstanceReady(ctx context.Context, payload InstanceEventPayload) error {
	return p.Publish(ctx, ExchangeInstances, NewMessage(MessageTypeInstanceReady, payload))
}

// PublishInstanceCompleted публикует instance.completed.
func (p *Publisher) PublishInstanceCompleted(ctx context.Context, payload InstanceEventPayload) error {
	return p.Publish(ctx, ExchangeInstances, NewMessage(MessageTypeInstanceCompleted, payload))
}
