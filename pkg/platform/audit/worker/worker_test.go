package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"complyhub/pkg/platform/audit/store/postgres"
)

type fakeOutbox struct {
	mu        sync.Mutex
	pending   []postgres.Entry
	published []uuid.UUID
	fetchErr  error
}

func (f *fakeOutbox) FetchPending(_ context.Context, limit int) ([]postgres.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	n := min(limit, len(f.pending))
	return append([]postgres.Entry(nil), f.pending[:n]...), nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, ids...)
	f.pending = f.pending[len(ids):]
	return nil
}

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if f.err == nil {
			f.records = append(f.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func entry(subject, action string) postgres.Entry {
	return postgres.Entry{
		ID:            uuid.New(),
		AggregateType: "module",
		AggregateID:   subject,
		EventType:     action,
		Payload:       []byte(`{"subject":"` + subject + `"}`),
		CreatedAt:     time.Now(),
	}
}

func TestRelayOnce(t *testing.T) {
	t.Run("publishes and marks a batch", func(t *testing.T) {
		outbox := &fakeOutbox{pending: []postgres.Entry{
			entry("incident_management", "module_enabled"),
			entry("waste_management", "module_disabled"),
			entry("ppe_management", "module_enabled"),
		}}
		producer := &fakeProducer{}
		w := NewWorker(outbox, producer, "complyhub.audit", WithBatchSize(2))

		n, err := w.RelayOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		require.Len(t, producer.records, 2)
		assert.Equal(t, "complyhub.audit", producer.records[0].Topic)
		assert.Equal(t, []byte("incident_management"), producer.records[0].Key)
		assert.Len(t, outbox.published, 2)
		assert.Len(t, outbox.pending, 1)
	})

	t.Run("produce failure leaves entries pending", func(t *testing.T) {
		outbox := &fakeOutbox{pending: []postgres.Entry{entry("audit_management", "module_enabled")}}
		producer := &fakeProducer{err: errors.New("broker down")}
		w := NewWorker(outbox, producer, "complyhub.audit")

		n, err := w.RelayOnce(context.Background())
		require.Error(t, err)
		assert.Zero(t, n)
		assert.Empty(t, outbox.published)
		assert.Len(t, outbox.pending, 1)
	})

	t.Run("empty outbox", func(t *testing.T) {
		w := NewWorker(&fakeOutbox{}, &fakeProducer{}, "complyhub.audit")
		n, err := w.RelayOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("runs inside the transactor", func(t *testing.T) {
		tx := &countingRunner{}
		outbox := &fakeOutbox{pending: []postgres.Entry{entry("health_management", "module_enabled")}}
		w := NewWorker(outbox, &fakeProducer{}, "t", WithTransactor(tx))

		_, err := w.RelayOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, tx.calls)
	})
}

type countingRunner struct {
	calls int
}

func (r *countingRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls++
	return fn(ctx)
}

func TestRunStopsOnCancel(t *testing.T) {
	outbox := &fakeOutbox{pending: []postgres.Entry{entry("training_management", "module_enabled")}}
	producer := &fakeProducer{}
	w := NewWorker(outbox, producer, "t", WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		producer.mu.Lock()
		defer producer.mu.Unlock()
		return len(producer.records) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
