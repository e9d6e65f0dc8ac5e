package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/comment-thread-store/internal/domain"
	"github.com/helixir/comment-thread-store/internal/observability"
)

// Publisher delivers thread events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, events ...*domain.ThreadEvent) error
	Close() error
}

// Compile-time interface verification.
var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = NopPublisher{}
)

// Kafka header names set on every message.
const (
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds Kafka publisher settings.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the Kafka topic to publish thread events to.
	Topic string
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration
}

// KafkaPublisher publishes thread events to Kafka.
type KafkaPublisher struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewKafkaPublisher creates a publisher writing to cfg.Topic. Messages are
// keyed by thread id, so events of one thread stay ordered within a partition.
func NewKafkaPublisher(cfg KafkaConfig, metrics *observability.Metrics, logger zerolog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
	}

	return newKafkaPublisher(writer, metrics, logger), nil
}

func newKafkaPublisher(writer messageWriter, metrics *observability.Metrics, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  writer,
		metrics: metrics,
		logger:  logger.With().Str("component", "kafka_publisher").Logger(),
	}
}

// Publish writes events in one batch. Either every event is acknowledged or
// an error is returned.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...*domain.ThreadEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		msg, err := toMessage(event)
		if err != nil {
			p.record(events, observability.OutcomeError)
			return err
		}
		msgs = append(msgs, msg)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.record(events, observability.OutcomeError)
		return fmt.Errorf("write thread events: %w", err)
	}

	p.record(events, observability.OutcomeSuccess)
	p.logger.Debug().Int("count", len(events)).Msg("published thread events")
	return nil
}

func (p *KafkaPublisher) record(events []*domain.ThreadEvent, outcome string) {
	if p.metrics == nil {
		return
	}
	for _, event := range events {
		if event == nil {
			continue
		}
		p.metrics.RecordEventPublished(event.EventType, outcome)
	}
}

// Close flushes pending messages and releases the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toMessage(event *domain.ThreadEvent) (kafka.Message, error) {
	if event == nil {
		return kafka.Message{}, errors.New("nil thread event")
	}

	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal thread event %s: %w", event.EventID, err)
	}

	return kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: value,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(event.EventType)},
			{Key: HeaderAggregateType, Value: []byte(event.AggregateType)},
		},
	}, nil
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, ...*domain.ThreadEvent) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
