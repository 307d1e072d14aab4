package audit

import (
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: who
	// changed which part of the platform, and when. These are written
	// fail-closed through the outbox.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for operational visibility.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// Subject is the entity acted on, e.g. a module type.
	Subject string
	Action  string
	// Decision is the resulting state, e.g. "enabled".
	Decision  string
	Reason    string
	RequestID string
	// ActorID is the administrator or system actor that caused the event.
	ActorID string
}

type AuditEvent string

const (
	EventModuleEnabled    AuditEvent = "module_enabled"
	EventModuleDisabled   AuditEvent = "module_disabled"
	EventModuleReconciled AuditEvent = "module_reconciled"
	EventModulesSeeded    AuditEvent = "modules_seeded"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventModuleEnabled:    CategoryCompliance,
	EventModuleDisabled:   CategoryCompliance,
	EventModuleReconciled: CategoryCompliance,
	EventModulesSeeded:    CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
