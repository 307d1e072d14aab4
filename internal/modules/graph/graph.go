package graph

import (
	"slices"

	"complyhub/internal/modules/models"
)

type color uint8

const (
	white color = iota // not visited
	gray               // on the current DFS path
	black              // fully explored
)

// Graph holds required-dependency edges in declaration order.
type Graph struct {
	order      []models.ModuleType
	position   map[models.ModuleType]int
	requires   map[models.ModuleType][]models.ModuleType
	dependents map[models.ModuleType][]models.ModuleType
}

// New builds a graph from descriptors. References to modules outside the
// descriptor set are kept but never traversed; the catalog rejects them
// before a graph is ever queried.
func New(descriptors []models.Descriptor) *Graph {
	g := &Graph{
		order:      make([]models.ModuleType, 0, len(descriptors)),
		position:   make(map[models.ModuleType]int, len(descriptors)),
		requires:   make(map[models.ModuleType][]models.ModuleType, len(descriptors)),
		dependents: make(map[models.ModuleType][]models.ModuleType, len(descriptors)),
	}
	for _, d := range descriptors {
		if _, dup := g.position[d.Type]; dup {
			continue
		}
		g.position[d.Type] = len(g.order)
		g.order = append(g.order, d.Type)
		g.requires[d.Type] = slices.Clone(d.RequiredDependencies)
	}
	for _, t := range g.order {
		for _, dep := range g.requires[t] {
			if !g.Has(dep) || slices.Contains(g.dependents[dep], t) {
				continue
			}
			g.dependents[dep] = append(g.dependents[dep], t)
		}
	}
	return g
}

// Has reports whether t is a node of the graph.
func (g *Graph) Has(t models.ModuleType) bool {
	_, ok := g.position[t]
	return ok
}

// Position returns the declaration index of t, or -1.
func (g *Graph) Position(t models.ModuleType) int {
	if p, ok := g.position[t]; ok {
		return p
	}
	return -1
}

// Types returns every node in declaration order.
func (g *Graph) Types() []models.ModuleType {
	return slices.Clone(g.order)
}

// Dependencies returns the direct required dependencies of t.
func (g *Graph) Dependencies(t models.ModuleType) []models.ModuleType {
	return slices.Clone(g.requires[t])
}

// Dependents returns the modules whose required dependencies contain t,
// directly, in declaration order.
func (g *Graph) Dependents(t models.ModuleType) []models.ModuleType {
	return slices.Clone(g.dependents[t])
}

// TransitiveRequiredClosure returns every module t transitively requires,
// excluding t itself. The result is in depth-first post-order, so each module
// appears after all of its own requirements. Unknown t yields nil.
func (g *Graph) TransitiveRequiredClosure(t models.ModuleType) []models.ModuleType {
	if !g.Has(t) {
		return nil
	}
	visited := map[models.ModuleType]bool{t: true}
	var out []models.ModuleType
	var visit func(n models.ModuleType)
	visit = func(n models.ModuleType) {
		for _, dep := range g.requires[n] {
			if visited[dep] || !g.Has(dep) {
				continue
			}
			visited[dep] = true
			visit(dep)
			out = append(out, dep)
		}
	}
	visit(t)
	return out
}

// DetectCycle returns the members of a required-dependency cycle in path
// order, or nil when the graph is acyclic. A self-requirement is a cycle of one.
func (g *Graph) DetectCycle() []models.ModuleType {
	colors := make(map[models.ModuleType]color, len(g.order))
	var path []models.ModuleType
	var cycle []models.ModuleType

	var visit func(n models.ModuleType) bool
	visit = func(n models.ModuleType) bool {
		colors[n] = gray
		path = append(path, n)
		for _, dep := range g.requires[n] {
			if !g.Has(dep) {
				continue
			}
			switch colors[dep] {
			case gray:
				// back edge: the cycle is the path suffix starting at dep
				cycle = slices.Clone(path[slices.Index(path, dep):])
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		colors[n] = black
		return false
	}

	for _, n := range g.order {
		if colors[n] == white && visit(n) {
			return cycle
		}
	}
	return nil
}

// TopologicalOrder lists every module after all of its requirements. Among
// independent modules declaration order wins.
func (g *Graph) TopologicalOrder() ([]models.ModuleType, error) {
	if cycle := g.DetectCycle(); cycle != nil {
		return nil, models.ErrCyclicDependency(cycle)
	}
	placed := make(map[models.ModuleType]bool, len(g.order))
	out := make([]models.ModuleType, 0, len(g.order))
	for _, t := range g.order {
		if placed[t] {
			continue
		}
		for _, dep := range g.TransitiveRequiredClosure(t) {
			if !placed[dep] {
				placed[dep] = true
				out = append(out, dep)
			}
		}
		placed[t] = true
		out = append(out, t)
	}
	return out, nil
}
