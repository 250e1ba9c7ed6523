package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"ms-perfiles/internal/logger"
	"ms-perfiles/internal/models"
)

const EventRegistrationCreated = "registration.created"

// RegistrationCreated is the payload published for every appended event.
type RegistrationCreated struct {
	Type         string      `json:"type"`
	EventID      int64       `json:"event_id"`
	Serial       string      `json:"serial"`
	Model        string      `json:"model"`
	Side         models.Side `json:"side"`
	RegisteredOn string      `json:"registered_on"`
	EmployeeName string      `json:"employee_name"`
	OccurredAt   time.Time   `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer messageWriter
	Topic  string
	Logger *logger.Logger
}

// NewProducer partitions by combination key so events of one combination
// stay ordered.
func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{Writer: writer, Topic: topic, Logger: log}
}

// PublishRegistrationCreated streams an appended event to Kafka
func (p *Producer) PublishRegistrationCreated(ctx context.Context, event *models.RegistrationEvent) error {
	payload := RegistrationCreated{
		Type:         EventRegistrationCreated,
		EventID:      event.ID,
		Serial:       event.Serial,
		Model:        event.Model,
		Side:         event.Side,
		RegisteredOn: event.RegisteredOn.Format("2006-01-02"),
		EmployeeName: event.EmployeeName,
		OccurredAt:   time.Now().UTC(),
	}

	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	err = p.Writer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(event.Key().String()),
			Value: msgBytes,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(EventRegistrationCreated)},
				{Key: "message-id", Value: []byte(uuid.NewString())},
			},
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", EventRegistrationCreated, err)
	}

	p.Logger.LogKafka("PUBLISHED", p.Topic, fmt.Sprintf("event %d for %s", event.ID, event.Key()))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// NoopPublisher is used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishRegistrationCreated(ctx context.Context, event *models.RegistrationEvent) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }
