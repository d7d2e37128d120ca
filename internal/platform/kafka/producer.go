// Package kafka publishes wizard audit events to a Kafka topic with franz-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"sprout/internal/platform/config"
	audit "sprout/pkg/platform/audit"
)

// Producer is a thin synchronous producer bound to one topic.
type Producer struct {
	client  *kgo.Client
	topic   string
	timeout time.Duration
}

// NewProducer connects to the configured brokers. Returns nil when no brokers
// are configured. Extra kgo options are appended after the defaults.
func NewProducer(cfg config.KafkaConfig, extra ...kgo.Opt) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, kgo.ProduceRequestTimeout(cfg.Timeout))
	}
	client, err := kgo.NewClient(append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Producer{client: client, topic: cfg.Topic, timeout: cfg.Timeout}, nil
}

// Publish produces one record and waits for the broker acknowledgement.
func (p *Producer) Publish(ctx context.Context, rec *kgo.Record) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if rec.Topic == "" {
		rec.Topic = p.topic
	}
	return p.client.ProduceSync(ctx, rec).FirstErr()
}

func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Producer) Topic() string { return p.topic }

// Close flushes buffered records and closes the client.
func (p *Producer) Close() {
	p.client.Close()
}

// AuditSink stores audit events as JSON records keyed by session ID, so every
// event of a session lands on the same partition in order.
type AuditSink struct {
	producer *Producer
}

func NewAuditSink(p *Producer) *AuditSink {
	return &AuditSink{producer: p}
}

func (s *AuditSink) Append(ctx context.Context, event audit.Event) error {
	rec, err := auditRecord(event)
	if err != nil {
		return err
	}
	if err := s.producer.Publish(ctx, rec); err != nil {
		return fmt.Errorf("publish audit event %s: %w", event.Action, err)
	}
	return nil
}

func auditRecord(event audit.Event) (*kgo.Record, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode audit event: %w", err)
	}
	return &kgo.Record{
		Key:   []byte(event.SessionID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "category", Value: []byte(event.Category)},
		},
		Timestamp: event.Timestamp,
	}, nil
}
