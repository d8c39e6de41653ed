package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"roster/pkg/platform/circuit"
)

var publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "roster_identity_events_published_total",
	Help: "Identity events by type and delivery result (sent, failed, fallback)",
}, []string{"type", "result"})

// KafkaPublisher produces events as JSON records keyed by athlete ID, so all
// events for one athlete land on one partition in order.
//
// Delivery is guarded by a circuit breaker. While the broker is unreachable,
// events are written to the logger instead and Publish succeeds; identity
// writes never fail because of the event stream.
type KafkaPublisher struct {
	client  *kgo.Client
	topic   string
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type KafkaOption func(*KafkaPublisher)

func WithLogger(logger *slog.Logger) KafkaOption {
	return func(p *KafkaPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithBreaker(b *circuit.Breaker) KafkaOption {
	return func(p *KafkaPublisher) {
		if b != nil {
			p.breaker = b
		}
	}
}

// NewKafka connects a producer to brokers. The topic is the default produce
// topic for every record.
func NewKafka(brokers []string, topic string, opts ...KafkaOption) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	p := &KafkaPublisher{
		client:  client,
		topic:   topic,
		breaker: circuit.New("kafka-events", circuit.WithFailureThreshold(3)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	if !p.breaker.Allow() {
		p.fallback(ctx, e, value, nil)
		return nil
	}

	record := &kgo.Record{
		Key:   []byte(e.AthleteID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		publishTotal.WithLabelValues(string(e.Type), "failed").Inc()
		useFallback, change := p.breaker.RecordFailure()
		if change.Opened {
			p.logger.ErrorContext(ctx, "event stream circuit opened", "topic", p.topic, "error", err)
		}
		if useFallback {
			p.fallback(ctx, e, value, err)
			return nil
		}
		return fmt.Errorf("produce %s event: %w", e.Type, err)
	}

	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "event stream circuit closed", "topic", p.topic)
	}
	publishTotal.WithLabelValues(string(e.Type), "sent").Inc()
	return nil
}

func (p *KafkaPublisher) fallback(ctx context.Context, e Event, value []byte, cause error) {
	publishTotal.WithLabelValues(string(e.Type), "fallback").Inc()
	attrs := []any{"type", e.Type, "athlete_id", e.AthleteID, "payload", string(value)}
	if cause != nil {
		attrs = append(attrs, "error", cause)
	}
	p.logger.WarnContext(ctx, "identity event not delivered", attrs...)
}

// EnsureTopic creates the topic if it does not exist yet.
func (p *KafkaPublisher) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	for _, t := range resp {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}

// Ping checks that at least one broker answers.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}
