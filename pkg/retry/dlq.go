package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DLQMessage is the envelope parked on a dead letter topic when an
// event could not be delivered to its original topic.
type DLQMessage struct {
	ID             string            `json:"id"`
	OriginalTopic  string            `json:"original_topic"`
	OriginalKey    string            `json:"original_key"`
	Payload        json.RawMessage   `json:"payload"`
	Headers        map[string]string `json:"headers,omitempty"`
	Error          string            `json:"error"`
	Attempts       int               `json:"attempts"`
	FirstAttemptAt time.Time         `json:"first_attempt_at"`
	LastAttemptAt  time.Time         `json:"last_attempt_at"`
	ParkedAt       time.Time         `json:"parked_at"`
	Source         string            `json:"source"`
}

// KafkaPublisher is the slice of a producer the DLQ publisher needs
type KafkaPublisher interface {
	PublishJSON(ctx context.Context, topic, key string, data interface{}, headers map[string]string) error
}

// DLQConfig names the dead letter topics and their owning service
type DLQConfig struct {
	// TopicSuffix is appended to the original topic (default ".dlq")
	TopicSuffix string
	// Source identifies the service that parked the message
	Source string
}

// DefaultDLQConfig returns the conventional suffix-based naming
func DefaultDLQConfig() *DLQConfig {
	return &DLQConfig{
		TopicSuffix: ".dlq",
		Source:      "unknown",
	}
}

// KafkaDLQPublisher parks undeliverable event payloads on a sibling
// dead letter topic so an operator can inspect and replay them.
type KafkaDLQPublisher struct {
	producer KafkaPublisher
	cfg      *DLQConfig
}

// NewKafkaDLQPublisher wraps producer with DLQ topic naming
func NewKafkaDLQPublisher(producer KafkaPublisher, cfg *DLQConfig) *KafkaDLQPublisher {
	if cfg == nil {
		cfg = DefaultDLQConfig()
	}
	if cfg.TopicSuffix == "" {
		cfg.TopicSuffix = ".dlq"
	}
	return &KafkaDLQPublisher{producer: producer, cfg: cfg}
}

// PublishToDLQ stamps the message and publishes it to the dead letter
// topic derived from its original topic.
func (p *KafkaDLQPublisher) PublishToDLQ(ctx context.Context, msg *DLQMessage) error {
	if msg == nil {
		return fmt.Errorf("dlq message is required")
	}

	msg.ParkedAt = time.Now()
	msg.Source = p.cfg.Source

	headers := map[string]string{
		"content_type":   "application/json",
		"original_topic": msg.OriginalTopic,
		"error":          msg.Error,
		"attempts":       fmt.Sprintf("%d", msg.Attempts),
		"parked_at":      msg.ParkedAt.Format(time.RFC3339),
		"source":         msg.Source,
	}
	// Original headers ride along under a prefix so they cannot
	// shadow the DLQ's own.
	for k, v := range msg.Headers {
		headers["original_"+k] = v
	}

	return p.producer.PublishJSON(ctx, p.GetDLQTopic(msg.OriginalTopic), msg.OriginalKey, msg, headers)
}

// GetDLQTopic derives the dead letter topic for an original topic
func (p *KafkaDLQPublisher) GetDLQTopic(originalTopic string) string {
	return originalTopic + p.cfg.TopicSuffix
}
