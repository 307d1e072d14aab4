package catalog

import (
	"fmt"
	"slices"

	"complyhub/internal/modules/graph"
	"complyhub/internal/modules/models"
	pstrings "complyhub/pkg/platform/strings"
)

// Catalog is the immutable, process-wide set of module descriptors together
// with the dependency graph derived from them. Build is the only constructor;
// a *Catalog that exists has passed every structural check.
type Catalog struct {
	descriptors []models.Descriptor
	index       map[models.ModuleType]int
	graph       *graph.Graph
}

// Build validates descriptors and freezes them into a Catalog. Declaration
// order is kept and used to break display-order ties.
//
// Errors are *models.ModuleError with a fatal kind: KindInvalidDescriptor,
// KindUnknownReference or KindCyclicDependency.
func Build(descriptors []models.Descriptor) (*Catalog, error) {
	c := &Catalog{
		descriptors: make([]models.Descriptor, 0, len(descriptors)),
		index:       make(map[models.ModuleType]int, len(descriptors)),
	}

	for _, raw := range descriptors {
		d := normalize(raw)
		if err := validateDescriptor(d); err != nil {
			return nil, err
		}
		if _, dup := c.index[d.Type]; dup {
			return nil, models.ErrInvalidDescriptor(d.Type, "declared more than once")
		}
		c.index[d.Type] = len(c.descriptors)
		c.descriptors = append(c.descriptors, d)
	}

	for _, d := range c.descriptors {
		var unknown []models.ModuleType
		for _, ref := range slices.Concat(d.RequiredDependencies, d.OptionalDependencies) {
			if _, ok := c.index[ref]; !ok && !slices.Contains(unknown, ref) {
				unknown = append(unknown, ref)
			}
		}
		if len(unknown) > 0 {
			return nil, models.ErrUnknownReference(d.Type, unknown)
		}
	}

	c.graph = graph.New(c.descriptors)
	if cycle := c.graph.DetectCycle(); cycle != nil {
		return nil, models.ErrCyclicDependency(cycle)
	}
	if err := c.checkDefaults(); err != nil {
		return nil, err
	}
	return c, nil
}

// MustBuild is Build for compile-time catalogs; it panics on invalid input.
func MustBuild(descriptors []models.Descriptor) *Catalog {
	c, err := Build(descriptors)
	if err != nil {
		panic(fmt.Sprintf("invalid module catalog: %v", err))
	}
	return c
}

func normalize(d models.Descriptor) models.Descriptor {
	d = d.Clone()
	d.Type = models.ParseModuleType(string(d.Type))
	d.RequiredDependencies = pstrings.DedupeAndTrimLower(d.RequiredDependencies)
	d.OptionalDependencies = pstrings.DedupeAndTrimLower(d.OptionalDependencies)
	// a module that is both required and optional is simply required
	d.OptionalDependencies = slices.DeleteFunc(d.OptionalDependencies, func(t models.ModuleType) bool {
		return slices.Contains(d.RequiredDependencies, t)
	})
	return d
}

func validateDescriptor(d models.Descriptor) error {
	if d.Type == "" {
		return models.ErrInvalidDescriptor("", "module type is empty")
	}
	if d.DisplayName == "" {
		return models.ErrInvalidDescriptor(d.Type, "display name is empty")
	}
	if !d.CanBeDisabled && !d.EnabledByDefault {
		return models.ErrInvalidDescriptor(d.Type, "a module that cannot be disabled must be enabled by default")
	}
	if slices.Contains(d.OptionalDependencies, d.Type) {
		return models.ErrInvalidDescriptor(d.Type, "module lists itself as an optional dependency")
	}
	return nil
}

// Len returns the number of modules.
func (c *Catalog) Len() int {
	return len(c.descriptors)
}

// Has reports whether t is a known module.
func (c *Catalog) Has(t models.ModuleType) bool {
	_, ok := c.index[t]
	return ok
}

// Get returns a copy of the descriptor for t.
func (c *Catalog) Get(t models.ModuleType) (models.Descriptor, bool) {
	i, ok := c.index[t]
	if !ok {
		return models.Descriptor{}, false
	}
	return c.descriptors[i].Clone(), true
}

// Position returns the declaration index of t, or -1.
func (c *Catalog) Position(t models.ModuleType) int {
	if i, ok := c.index[t]; ok {
		return i
	}
	return -1
}

// Descriptors returns copies of all descriptors in declaration order.
func (c *Catalog) Descriptors() []models.Descriptor {
	out := make([]models.Descriptor, len(c.descriptors))
	for i, d := range c.descriptors {
		out[i] = d.Clone()
	}
	return out
}

// Types returns every module type in declaration order.
func (c *Catalog) Types() []models.ModuleType {
	return c.graph.Types()
}

// Graph returns the required-dependency graph.
func (c *Catalog) Graph() *graph.Graph {
	return c.graph
}

// checkDefaults rejects a default-enabled module whose required closure
// reaches a module that starts disabled. Such a catalog would seed a state
// that already violates the dependency invariant.
func (c *Catalog) checkDefaults() error {
	for _, d := range c.descriptors {
		if !d.EnabledByDefault {
			continue
		}
		for _, dep := range c.graph.TransitiveRequiredClosure(d.Type) {
			if !c.descriptors[c.index[dep]].EnabledByDefault {
				return models.ErrInvalidDescriptor(d.Type,
					fmt.Sprintf("enabled by default but requires %s, which is disabled by default", dep))
			}
		}
	}
	return nil
}
