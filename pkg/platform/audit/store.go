package audit

import "context"

// Store persists audit events. Outbox-backed implementations participate in
// the caller's transaction when one is present in ctx.
type Store interface {
	Append(ctx context.Context, event Event) error
}
