package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Cadence/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunCompleted      MessageType = "run.completed"
	MessageTypePipelineCompleted MessageType = "pipeline.completed"
)

// Publisher публикует события в RabbitMQ.
//
// События информационные: потребители внешние, а ошибка публикации
// никогда не влияет на результат run.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// RunCompletedPayload — payload события о терминальном run.
type RunCompletedPayload struct {
	RunID      uuid.UUID         `json:"run_id"`
	AgentID    string            `json:"agent_id"`
	Status     domain.RunStatus  `json:"status"`
	Trigger    domain.TriggerType `json:"trigger"`
	DurationMs int64             `json:"duration_ms"`
	CostUSD    float64           `json:"cost_usd"`
	Error      string            `json:"error,omitempty"`
}

// PipelineCompletedPayload — payload события о завершённом pipeline run.
type PipelineCompletedPayload struct {
	PipelineRunID uuid.UUID                `json:"pipeline_run_id"`
	PipelineID    uuid.UUID                `json:"pipeline_id"`
	Status        domain.PipelineRunStatus `json:"status"`
	TotalSteps    int                      `json:"total_steps"`
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
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
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

// PublishRunCompleted публикует событие о терминальном run.
func (p *Publisher) PublishRunCompleted(ctx context.Context, run *domain.Run) error {
	msg := &Message{
		ID:   uuid.New().String(),
		Type: MessageTypeRunCompleted,
		Payload: RunCompletedPayload{
			RunID:      run.ID,
			AgentID:    run.AgentID,
			Status:     run.Status,
			Trigger:    run.Trigger,
			DurationMs: run.DurationMs,
			CostUSD:    run.CostUSD,
			Error:      run.ErrorMsg,
		},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeEvents, RoutingKeyRunCompleted, msg)
}

// PublishPipelineCompleted публикует событие о завершённом pipeline run.
func (p *Publisher) PublishPipelineCompleted(ctx context.Context, pr *domain.PipelineRun) error {
	msg := &Message{
		ID:   uuid.New().String(),
		Type: MessageTypePipelineCompleted,
		Payload: PipelineCompletedPayload{
			PipelineRunID: pr.ID,
			PipelineID:    pr.PipelineID,
			Status:        pr.Status,
			TotalSteps:    pr.TotalSteps,
		},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeEvents, RoutingKeyPipelineCompleted, msg)
}
