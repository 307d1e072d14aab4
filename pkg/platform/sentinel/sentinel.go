package sentinel

import "errors"

// Sentinel errors for infrastructure facts. State stores, the audit outbox and
// the platform clients return these (optionally wrapped) so services can
// translate them into domain errors.
//
//   - ErrNotFound: no row for the requested key
//   - ErrConflict: a concurrent writer got there first
//   - ErrUnavailable: backing service unreachable or timed out
//   - ErrClosed: component already shut down
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
	ErrClosed      = errors.New("closed")
)
