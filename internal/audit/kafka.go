package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher mirrors audit events to a Kafka topic. Produce is async and
// delivery failures only log; the database row written by the worker remains
// the durable copy.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	log    *slog.Logger
}

// NewKafkaPublisher connects a producer for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, err
	}
	return &KafkaPublisher{client: client, topic: topic, log: log}, nil
}

type kafkaPayload struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id,omitempty"`
	Type      string         `json:"type"`
	CreatedAt string         `json:"created_at"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Publish produces one record keyed by owner id so per-visitor events stay
// ordered within a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	payload := kafkaPayload{
		ID:        event.ID.String(),
		Type:      string(event.Type),
		CreatedAt: event.CreatedAt.Format(time.RFC3339Nano),
		Meta:      event.Meta,
	}
	var key []byte
	if event.OwnerID != nil {
		payload.OwnerID = event.OwnerID.String()
		key = []byte(payload.OwnerID)
	}

	value, err := json.Marshal(payload)
	if err != nil {
		p.log.ErrorContext(ctx, "marshal audit record failed", "error", err)
		return
	}

	record := &kgo.Record{Topic: p.topic, Key: key, Value: value}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.log.Warn("audit kafka produce failed", "type", string(event.Type), "error", err)
		}
	})
}

// Close flushes pending records and releases the client.
func (p *KafkaPublisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.client.Flush(ctx)
	p.client.Close()
}
