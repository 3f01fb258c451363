package infra

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/repository"
)

type fakeOutbox struct {
	rows      []repository.OutboxRow
	published []int64
	fetchErr  error
}

func (f *fakeOutbox) Insert(context.Context, repository.DBTX, domain.OutboxDraft) error { return nil }

func (f *fakeOutbox) FetchUnpublished(_ context.Context, _ repository.DBTX, limit int) ([]repository.OutboxRow, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.rows) > limit {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, _ repository.DBTX, ids []int64) error {
	f.published = append(f.published, ids...)
	return nil
}

type fakePublisher struct {
	msgs []kafka.Message
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func outboxRow(seq int64, evt domain.EventType, key string, payload string) repository.OutboxRow {
	return repository.OutboxRow{
		SeqID: seq,
		OutboxDraft: domain.OutboxDraft{
			EventID:       uuid.New(),
			AggregateType: domain.AggregateActivity,
			AggregateID:   "a1",
			EventType:     evt,
			PartitionKey:  key,
			Payload:       json.RawMessage(payload),
			OccurredAt:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func newTestRelay(outbox *fakeOutbox, pub *fakePublisher) *OutboxRelay {
	cfg := &Config{KafkaTopicPrefix: "trafficwise", OutboxInterval: time.Millisecond, OutboxBatchSize: 10}
	return NewOutboxRelay(nil, outbox, pub, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestOutboxRelay_PublishesAndMarks(t *testing.T) {
	outbox := &fakeOutbox{rows: []repository.OutboxRow{
		outboxRow(1, domain.EventActivitySubmitted, "u1", `{"activity_id":"a1"}`),
		outboxRow(2, domain.EventActivityApproved, "", `{"result_id":"u1_01H"}`),
	}}
	pub := &fakePublisher{}

	n, err := newTestRelay(outbox, pub).Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, outbox.published)

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "trafficwise.activity.submitted", pub.msgs[0].Topic)
	assert.Equal(t, []byte("u1"), pub.msgs[0].Key)
	assert.Equal(t, []byte("a1"), pub.msgs[1].Key, "falls back to aggregate id")

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(pub.msgs[1].Value, &body))
	assert.Equal(t, "activity.approved", body["event_type"])
}

func TestOutboxRelay_PublishFailureLeavesRowsUnpublished(t *testing.T) {
	outbox := &fakeOutbox{rows: []repository.OutboxRow{outboxRow(1, domain.EventActivityRejected, "u1", `{}`)}}
	pub := &fakePublisher{err: errors.New("broker down")}

	_, err := newTestRelay(outbox, pub).Poll(context.Background())
	require.Error(t, err)
	assert.Empty(t, outbox.published)
}

func TestOutboxRelay_SkipsPoisonRows(t *testing.T) {
	outbox := &fakeOutbox{rows: []repository.OutboxRow{
		outboxRow(1, domain.EventProfileCreated, "u1", `{not json`),
		outboxRow(2, domain.EventProfileDeleted, "u2", `{}`),
	}}
	pub := &fakePublisher{}

	n, err := newTestRelay(outbox, pub).Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{2}, outbox.published)
}

func TestOutboxRelay_EmptyAndFetchError(t *testing.T) {
	n, err := newTestRelay(&fakeOutbox{}, &fakePublisher{}).Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = newTestRelay(&fakeOutbox{fetchErr: errors.New("conn reset")}, &fakePublisher{}).Poll(context.Background())
	assert.Error(t, err)
}

func TestOutboxRelay_RunStopsOnCancel(t *testing.T) {
	outbox := &fakeOutbox{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newTestRelay(outbox, &fakePublisher{}).Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
