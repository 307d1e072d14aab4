// Package invalidation fans module state changes out to every replica over
// Redis pub/sub. The payload is only the changed module type; listeners
// reload the whole snapshot from the shared store.
package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"complyhub/internal/modules/models"
	"complyhub/pkg/platform/circuit"
)

// Message is published after every committed transition.
type Message struct {
	Module models.ModuleType `json:"module"`
	Origin string            `json:"origin"`
	SentAt time.Time         `json:"sent_at"`
}

// ErrCircuitOpen is returned by Publish while Redis is considered down.
var ErrCircuitOpen = errors.New("invalidation circuit open")

// Publisher announces committed transitions.
type Publisher struct {
	client  redis.UniversalClient
	channel string
	origin  string
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type PublisherOption func(*Publisher)

// WithBreaker skips publishes while breaker is open, so a Redis outage does
// not add a network timeout to every transition.
func WithBreaker(b *circuit.Breaker) PublisherOption {
	return func(p *Publisher) {
		p.breaker = b
	}
}

func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher returns a Publisher. origin identifies this process so its own
// listener can skip messages it sent.
func NewPublisher(client redis.UniversalClient, channel, origin string, opts ...PublisherOption) *Publisher {
	p := &Publisher{client: client, channel: channel, origin: origin, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewOrigin returns a random process identifier.
func NewOrigin() string {
	return uuid.NewString()
}

// Publish sends the changed module type.
func (p *Publisher) Publish(ctx context.Context, t models.ModuleType) error {
	raw, err := json.Marshal(Message{Module: t, Origin: p.origin, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal invalidation: %w", err)
	}
	if p.breaker != nil && !p.breaker.Allow() {
		return ErrCircuitOpen
	}
	err = p.client.Publish(ctx, p.channel, raw).Err()
	p.record(ctx, err)
	if err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

func (p *Publisher) record(ctx context.Context, err error) {
	if p.breaker == nil {
		return
	}
	if err != nil {
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.WarnContext(ctx, "invalidation circuit opened, replicas may serve stale module state",
				"breaker", p.breaker.Name(),
				"error", err,
			)
		}
		return
	}
	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "invalidation circuit closed", "breaker", p.breaker.Name())
	}
}

// Reloader is implemented by the engine.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Listener reloads the engine whenever another replica commits a transition.
type Listener struct {
	client  redis.UniversalClient
	channel string
	origin  string
	target  Reloader
	logger  *slog.Logger
}

func NewListener(client redis.UniversalClient, channel, origin string, target Reloader, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{client: client, channel: channel, origin: origin, target: target, logger: logger}
}

// Run subscribes and blocks until ctx is cancelled. A reload also runs right
// after the subscription is confirmed, to cover messages missed while the
// listener was down.
func (l *Listener) Run(ctx context.Context) error {
	sub := l.client.Subscribe(ctx, l.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", l.channel, err)
	}
	l.reload(ctx, "")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				l.logger.WarnContext(ctx, "malformed module invalidation", "error", err)
				continue
			}
			if m.Origin == l.origin {
				continue
			}
			l.reload(ctx, m.Module)
		}
	}
}

func (l *Listener) reload(ctx context.Context, t models.ModuleType) {
	if err := l.target.Reload(ctx); err != nil {
		l.logger.ErrorContext(ctx, "module reload after invalidation failed", "module", t, "error", err)
		return
	}
	l.logger.DebugContext(ctx, "module snapshot reloaded", "module", t)
}
