package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
	"github.com/quickcourt/court-booking/pkg/kafka"
	"github.com/quickcourt/court-booking/pkg/logger"
	"github.com/quickcourt/court-booking/pkg/retry"
	"go.uber.org/zap"
)

// EventPublisher publishes booking lifecycle events to the event stream
type EventPublisher interface {
	// PublishBookingCreated publishes a booking created event
	PublishBookingCreated(ctx context.Context, booking *domain.Booking) error

	// PublishBookingConfirmed publishes a booking confirmed event
	PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error

	// PublishBookingCancelled publishes a booking cancelled event
	PublishBookingCancelled(ctx context.Context, booking *domain.Booking) error

	// PublishBookingExpired publishes a booking expired event
	PublishBookingExpired(ctx context.Context, booking *domain.Booking) error

	// PublishPaymentFailed publishes a payment failed event
	PublishPaymentFailed(ctx context.Context, booking *domain.Booking) error

	// Close closes the event publisher
	Close() error
}

// KafkaEventPublisher implements EventPublisher over Kafka. Publish
// failures are retried and, if still failing, parked on the DLQ topic.
type KafkaEventPublisher struct {
	producer    *kafka.Producer
	dlq         *retry.KafkaDLQPublisher
	retrier     *retry.Retrier
	topic       string
	serviceName string
}

// EventPublisherConfig contains configuration for the event publisher
type EventPublisherConfig struct {
	Brokers     []string
	Topic       string
	ServiceName string
	ClientID    string
}

// jsonProducer adapts the Kafka producer to the DLQ publish interface
type jsonProducer struct {
	producer *kafka.Producer
}

func (p *jsonProducer) PublishJSON(ctx context.Context, topic, key string, data interface{}, headers map[string]string) error {
	value, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ payload: %w", err)
	}
	return p.producer.Produce(ctx, &kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: headers,
	})
}

// NewKafkaEventPublisher creates a new Kafka event publisher
func NewKafkaEventPublisher(ctx context.Context, cfg *EventPublisherConfig) (*KafkaEventPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("event publisher config is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "booking-events"
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "court-booking"
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "court-booking-producer"
	}

	producer, err := kafka.NewProducer(ctx, &kafka.Config{
		Brokers:  cfg.Brokers,
		ClientID: clientID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	dlq := retry.NewKafkaDLQPublisher(&jsonProducer{producer: producer}, &retry.DLQConfig{
		TopicSuffix: ".dlq",
		Source:      serviceName,
	})

	return &KafkaEventPublisher{
		producer: producer,
		dlq:      dlq,
		retrier: retry.New(&retry.Config{
			MaxRetries:      3,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2.0,
		}),
		topic:       topic,
		serviceName: serviceName,
	}, nil
}

// PublishBookingCreated publishes a booking created event
func (p *KafkaEventPublisher) PublishBookingCreated(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.EventBookingCreated, booking)
}

// PublishBookingConfirmed publishes a booking confirmed event
func (p *KafkaEventPublisher) PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.EventBookingConfirmed, booking)
}

// PublishBookingCancelled publishes a booking cancelled event
func (p *KafkaEventPublisher) PublishBookingCancelled(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.EventBookingCancelled, booking)
}

// PublishBookingExpired publishes a booking expired event
func (p *KafkaEventPublisher) PublishBookingExpired(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.EventBookingExpired, booking)
}

// PublishPaymentFailed publishes a payment failed event
func (p *KafkaEventPublisher) PublishPaymentFailed(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.EventPaymentFailed, booking)
}

// Close closes the event publisher
func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		p.producer.Close()
	}
	return nil
}

// publishEvent serializes the event, publishes with retry, and parks
// the payload on the DLQ topic when the brokers stay unreachable.
func (p *KafkaEventPublisher) publishEvent(ctx context.Context, eventType domain.BookingEventType, booking *domain.Booking) error {
	event := domain.NewBookingEvent(eventType, booking)

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := map[string]string{
		"event_type":   string(eventType),
		"event_id":     event.EventID,
		"source":       p.serviceName,
		"content_type": "application/json",
	}

	msg := &kafka.Message{
		Topic:   p.topic,
		Key:     []byte(booking.ID),
		Value:   value,
		Headers: headers,
	}

	result := p.retrier.Do(ctx, func(ctx context.Context) error {
		return p.producer.Produce(ctx, msg)
	})
	if result.Err == nil {
		return nil
	}

	logger.Get().Warn("event publish failed, moving to DLQ",
		zap.String("event_type", string(eventType)),
		zap.String("booking_id", booking.ID),
		zap.Int("attempts", result.Attempts),
		zap.Error(result.Err),
	)

	dlqMsg := &retry.DLQMessage{
		ID:             event.EventID,
		OriginalTopic:  p.topic,
		OriginalKey:    booking.ID,
		Payload:        value,
		Headers:        headers,
		Error:          result.Err.Error(),
		Attempts:       result.Attempts,
		FirstAttemptAt: event.OccurredAt,
		LastAttemptAt:  time.Now(),
	}
	if dlqErr := p.dlq.PublishToDLQ(ctx, dlqMsg); dlqErr != nil {
		return fmt.Errorf("failed to publish %s event: %w (DLQ publish also failed: %v)", eventType, result.Err, dlqErr)
	}
	return fmt.Errorf("failed to publish %s event: %w", eventType, result.Err)
}

// NoOpEventPublisher is a no-op implementation for tests and deploys
// without Kafka.
type NoOpEventPublisher struct{}

// NewNoOpEventPublisher creates a new no-op event publisher
func NewNoOpEventPublisher() *NoOpEventPublisher {
	return &NoOpEventPublisher{}
}

// PublishBookingCreated is a no-op
func (p *NoOpEventPublisher) PublishBookingCreated(ctx context.Context, booking *domain.Booking) error {
	return nil
}

// PublishBookingConfirmed is a no-op
func (p *NoOpEventPublisher) PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error {
	return nil
}

// PublishBookingCancelled is a no-op
func (p *NoOpEventPublisher) PublishBookingCancelled(ctx context.Context, booking *domain.Booking) error {
	return nil
}

// PublishBookingExpired is a no-op
func (p *NoOpEventPublisher) PublishBookingExpired(ctx context.Context, booking *domain.Booking) error {
	return nil
}

// PublishPaymentFailed is a no-op
func (p *NoOpEventPublisher) PublishPaymentFailed(ctx context.Context, booking *domain.Booking) error {
	return nil
}

// Close is a no-op
func (p *NoOpEventPublisher) Close() error {
	return nil
}
