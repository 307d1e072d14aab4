// Package worker relays audit events from the Postgres outbox to Kafka.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"complyhub/pkg/platform/audit/store/postgres"
)

// Outbox is the slice of the outbox store the relay needs.
type Outbox interface {
	FetchPending(ctx context.Context, limit int) ([]postgres.Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Producer is satisfied by *kgo.Client.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Runner executes one relay batch in a transaction so fetched rows stay
// locked until they are marked. Satisfied by postgres.Transactor.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Worker polls the outbox and publishes pending entries. It keeps at-least-once
// delivery: rows are marked only after the broker acknowledged them.
type Worker struct {
	outbox    Outbox
	producer  Producer
	tx        Runner
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithTransactor runs every batch inside tx.
func WithTransactor(tx Runner) Option {
	return func(w *Worker) {
		w.tx = tx
	}
}

func NewWorker(outbox Outbox, producer Producer, topic string, opts ...Option) *Worker {
	w := &Worker{
		outbox:    outbox,
		producer:  producer,
		topic:     topic,
		interval:  time.Second,
		batchSize: 100,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run relays until ctx is cancelled. Batch failures are logged and retried on
// the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := w.RelayOnce(ctx)
			if err != nil {
				w.logger.WarnContext(ctx, "outbox relay failed", "error", err)
				continue
			}
			if n > 0 {
				w.logger.DebugContext(ctx, "outbox relayed", "count", n)
			}
		}
	}
}

// RelayOnce publishes one batch and reports how many entries were delivered.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	var delivered int
	relay := func(ctx context.Context) error {
		entries, err := w.outbox.FetchPending(ctx, w.batchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		records := make([]*kgo.Record, len(entries))
		for i, e := range entries {
			records[i] = &kgo.Record{
				Topic: w.topic,
				Key:   []byte(e.AggregateID),
				Value: e.Payload,
				Headers: []kgo.RecordHeader{
					{Key: "event_type", Value: []byte(e.EventType)},
					{Key: "outbox_id", Value: []byte(e.ID.String())},
				},
			}
		}
		if err := w.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
			return fmt.Errorf("produce audit batch: %w", err)
		}

		ids := make([]uuid.UUID, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		if err := w.outbox.MarkPublished(ctx, ids); err != nil {
			return err
		}
		delivered = len(entries)
		return nil
	}

	var err error
	if w.tx == nil {
		err = relay(ctx)
	} else {
		err = w.tx.RunInTx(ctx, relay)
	}
	if err != nil {
		return 0, err
	}
	return delivered, nil
}
