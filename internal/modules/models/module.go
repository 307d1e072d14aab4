package models

import (
	"slices"
	"strings"
	"time"
)

// ModuleType identifies a functional area of the platform. The set of valid
// values is closed: it is exactly the key set of the catalog the process was
// started with.
type ModuleType string

// Platform modules shipped in the default catalog.
const (
	UserManagement       ModuleType = "user_management"
	IncidentManagement   ModuleType = "incident_management"
	AuditManagement      ModuleType = "audit_management"
	InspectionManagement ModuleType = "inspection_management"
	TrainingManagement   ModuleType = "training_management"
	LicenseManagement    ModuleType = "license_management"
	PPEManagement        ModuleType = "ppe_management"
	WasteManagement      ModuleType = "waste_management"
	HealthManagement     ModuleType = "health_management"
)

// ParseModuleType normalises user input (path segments, CLI args, YAML).
func ParseModuleType(s string) ModuleType {
	return ModuleType(strings.ToLower(strings.TrimSpace(s)))
}

func (t ModuleType) String() string {
	return string(t)
}

// Descriptor is the immutable declaration of a module.
//
// Invariants (enforced by catalog.Build):
//   - Type is non-empty and unique within the catalog
//   - every dependency reference names a module in the same catalog
//   - required dependency edges form a DAG
//   - CanBeDisabled == false implies EnabledByDefault == true
type Descriptor struct {
	Type                 ModuleType   `json:"type" yaml:"type"`
	DisplayName          string       `json:"display_name" yaml:"display_name"`
	Description          string       `json:"description" yaml:"description"`
	Icon                 string       `json:"icon" yaml:"icon"`
	DisplayOrder         int          `json:"display_order" yaml:"display_order"`
	EnabledByDefault     bool         `json:"enabled_by_default" yaml:"enabled_by_default"`
	CanBeDisabled        bool         `json:"can_be_disabled" yaml:"can_be_disabled"`
	RequiredDependencies []ModuleType `json:"required_dependencies" yaml:"requires"`
	OptionalDependencies []ModuleType `json:"optional_dependencies" yaml:"optional"`
}

// Pinned reports whether the module can never leave the enabled state.
func (d Descriptor) Pinned() bool {
	return !d.CanBeDisabled
}

// Clone returns a deep copy so callers cannot mutate catalog internals.
func (d Descriptor) Clone() Descriptor {
	d.RequiredDependencies = slices.Clone(d.RequiredDependencies)
	d.OptionalDependencies = slices.Clone(d.OptionalDependencies)
	return d
}

// State is the persisted, mutable enablement flag of one module.
type State struct {
	Type          ModuleType `json:"type"`
	Enabled       bool       `json:"enabled"`
	LastChangedAt time.Time  `json:"last_changed_at"`
	LastChangedBy string     `json:"last_changed_by"`
}

// Actors used for writes the system makes on its own behalf.
const (
	ActorSeed      = "system:seed"
	ActorReconcile = "system:reconcile"
)

// DefaultState is the state a module starts in when no row exists for it.
func DefaultState(d Descriptor, now time.Time) State {
	return State{
		Type:          d.Type,
		Enabled:       d.EnabledByDefault,
		LastChangedAt: now,
		LastChangedBy: ActorSeed,
	}
}

// ModuleView joins a descriptor with its current state for consumers.
type ModuleView struct {
	Descriptor
	Enabled       bool      `json:"enabled"`
	LastChangedAt time.Time `json:"last_changed_at"`
	LastChangedBy string    `json:"last_changed_by"`
}

// DependentView describes a module that requires another one.
type DependentView struct {
	Type        ModuleType `json:"type"`
	DisplayName string     `json:"display_name"`
	Enabled     bool       `json:"enabled"`
}

// Filter narrows ListModules. Nil fields match everything.
type Filter struct {
	Enabled *bool
	Pinned  *bool
}

// Matches reports whether v passes the filter.
func (f Filter) Matches(v ModuleView) bool {
	if f.Enabled != nil && v.Enabled != *f.Enabled {
		return false
	}
	if f.Pinned != nil && v.Pinned() != *f.Pinned {
		return false
	}
	return true
}

// OnlyEnabled returns a filter matching enabled modules.
func OnlyEnabled() Filter {
	enabled := true
	return Filter{Enabled: &enabled}
}

// OnlyDisabled returns a filter matching disabled modules.
func OnlyDisabled() Filter {
	enabled := false
	return Filter{Enabled: &enabled}
}

// TransitionResult reports the outcome of a successful Enable or Disable.
// Changed is false when the call was an idempotent no-op.
type TransitionResult struct {
	Module    ModuleType `json:"module"`
	Enabled   bool       `json:"enabled"`
	Changed   bool       `json:"changed"`
	ChangedAt time.Time  `json:"changed_at"`
	ChangedBy string     `json:"changed_by"`
}

// PlanStep is one module an administrator has to enable before the target.
// Steps are returned dependencies first.
type PlanStep struct {
	Type        ModuleType `json:"type"`
	DisplayName string     `json:"display_name"`
}
