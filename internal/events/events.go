// Package events publishes run lifecycle events to Kafka so downstream
// consumers (audit, notifications) can follow workflow activity.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"
)

// Run event types.
const (
	EventRunStarted   = "run.started"
	EventRunSucceeded = "run.succeeded"
	EventRunFailed    = "run.failed"
)

// RunEvent is one run lifecycle notification.
type RunEvent struct {
	Type           string    `json:"type"`
	RunID          string    `json:"run_id"`
	WorkflowID     string    `json:"workflow_id"`
	OrganizationID string    `json:"organization_id"`
	TriggeredBy    string    `json:"triggered_by"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Publisher emits run events. Implementations must be safe for concurrent
// use; publishing is best-effort and never blocks a run on broker health.
type Publisher interface {
	PublishRunEvent(ctx context.Context, event RunEvent)
	Close()
}

// KafkaPublisher produces run events to one topic, keyed by workflow id so
// each workflow's events stay ordered.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *logger.Logger
}

// NewKafkaPublisher connects a producer to the brokers.
func NewKafkaPublisher(brokers []string, topic string, log *logger.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaPublisher{
		client: client,
		topic:  topic,
		logger: log.WithComponent("events"),
	}, nil
}

// PublishRunEvent produces the event asynchronously. Failures are logged,
// not returned: the event feed is advisory and must not fail runs.
func (p *KafkaPublisher) PublishRunEvent(ctx context.Context, event RunEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal run event", "type", event.Type, "run_id", event.RunID, "error", err)
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.WorkflowID),
		Value: value,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("failed to publish run event",
				"type", event.Type,
				"run_id", event.RunID,
				"error", err,
			)
		}
	})
}

// Close flushes and closes the producer.
func (p *KafkaPublisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("failed to flush run events on close", "error", err)
	}
	p.client.Close()
}

// NopPublisher drops events. Used when Kafka is not configured.
type NopPublisher struct{}

func (NopPublisher) PublishRunEvent(context.Context, RunEvent) {}
func (NopPublisher) Close()                                    {}
