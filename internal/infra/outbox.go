package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trafficwise/platform/internal/metrics"
	"github.com/trafficwise/platform/internal/repository"
)

// Publisher delivers a batch of messages. *KafkaProducer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// OutboxRelay moves lifecycle events from event_outbox to Kafka. An event is
// marked published only after the broker acknowledged the batch holding it,
// so delivery is at-least-once.
type OutboxRelay struct {
	db          repository.DBTX
	outbox      repository.OutboxRepository
	publisher   Publisher
	logger      *slog.Logger
	topicPrefix string
	interval    time.Duration
	batchSize   int
}

// NewOutboxRelay creates a relay polling every interval.
func NewOutboxRelay(db repository.DBTX, outbox repository.OutboxRepository, publisher Publisher, cfg *Config, logger *slog.Logger) *OutboxRelay {
	return &OutboxRelay{
		db:          db,
		outbox:      outbox,
		publisher:   publisher,
		logger:      logger,
		topicPrefix: cfg.KafkaTopicPrefix,
		interval:    cfg.OutboxInterval,
		batchSize:   cfg.OutboxBatchSize,
	}
}

// Run polls until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) {
	r.logger.Info("outbox relay started", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.Poll(ctx); err != nil {
				r.logger.Error("outbox poll error", "error", err)
			}
		}
	}
}

// Poll relays one batch and returns how many events were published.
func (r *OutboxRelay) Poll(ctx context.Context) (int, error) {
	rows, err := r.outbox.FetchUnpublished(ctx, r.db, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	msgs := make([]kafka.Message, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		msg, err := r.message(row)
		if err != nil {
			// poison row: leave it unpublished and keep the rest moving
			r.logger.Error("skipping undeliverable outbox event", "seq_id", row.SeqID, "event_id", row.EventID, "error", err)
			continue
		}
		msgs = append(msgs, msg)
		ids = append(ids, row.SeqID)
	}

	if len(msgs) == 0 {
		return 0, nil
	}
	if err := r.publisher.Publish(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("publish %d events: %w", len(msgs), err)
	}
	if err := r.outbox.MarkPublished(ctx, r.db, ids); err != nil {
		return 0, fmt.Errorf("mark published: %w", err)
	}

	metrics.OutboxPublishedTotal.Add(float64(len(ids)))
	r.logger.Debug("outbox batch relayed", "count", len(ids))
	return len(ids), nil
}

// Topic returns the topic an event type is published to.
func (r *OutboxRelay) Topic(eventType string) string {
	return r.topicPrefix + "." + eventType
}

func (r *OutboxRelay) message(row repository.OutboxRow) (kafka.Message, error) {
	value, err := json.Marshal(map[string]interface{}{
		"event_id":       row.EventID,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID,
		"event_type":     row.EventType,
		"payload":        row.Payload,
		"occurred_at":    row.OccurredAt,
	})
	if err != nil {
		return kafka.Message{}, err
	}

	key := row.PartitionKey
	if key == "" {
		key = row.AggregateID
	}
	return kafka.Message{
		Topic: r.Topic(string(row.EventType)),
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(row.EventID.String())},
			{Key: "event_type", Value: []byte(row.EventType)},
		},
		Time: row.OccurredAt,
	}, nil
}
