package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"
)

// Job lifecycle event types.
const (
	EventJobAccepted  = "job_accepted"
	EventJobCompleted = "job_completed"
)

// JobEvent describes one lifecycle transition for a broadcast job.
type JobEvent struct {
	Type       string    `json:"type"`
	UniqueID   string    `json:"unique_id"`
	ReportID   string    `json:"report_id,omitempty"`
	Kind       string    `json:"kind"`
	Recipients int       `json:"recipients"`
	Sent       int       `json:"sent,omitempty"`
	Failed     int       `json:"failed,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// SyncProducer captures the subset of producer behaviour required here.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

var errProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// JobEventPublisher emits job lifecycle events to a Kafka topic. A nil
// publisher is valid and drops events silently, so wiring stays optional.
type JobEventPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewJobEventPublisher constructs a JobEventPublisher instance.
func NewJobEventPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *JobEventPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &JobEventPublisher{
		producer: prod,
		topic:    topic,
		logger:   logger,
	}
}

// Publish writes the supplied event to Kafka synchronously. A nil receiver is
// a no-op.
func (p *JobEventPublisher) Publish(_ context.Context, event JobEvent) error {
	if p == nil {
		return nil
	}
	if p.producer == nil {
		return errProducerNotInitialised
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal job event: %w", err)
	}

	headers := map[string][]byte{
		"content-type": []byte("application/json"),
	}
	if err := p.producer.PublishSync(p.topic, []byte(event.UniqueID), headers, payload); err != nil {
		return fmt.Errorf("kafka publisher: publish job event: %w", err)
	}
	return nil
}
