// Package graph answers structural questions over the required-dependency
// edges of a module catalog without touching runtime state.
//
// A Graph is built once from the descriptor set and never mutated afterwards,
// so every query is a pure read and safe for concurrent use.
//
// # Queries
//
// TransitiveRequiredClosure walks requirement edges depth first and returns
// every module reachable from the start, dependencies before dependents. The
// start module is never part of its own closure.
//
// Dependents is one hop. Callers that want the reverse closure repeat the
// query over the results.
//
// DetectCycle runs a three-color depth-first search and reports the members of
// the first cycle found. Catalog construction refuses to proceed when it
// returns a non-empty set.
//
// Optional dependencies are not edges of this graph. They never constrain
// enablement and therefore never appear in any answer.
package graph
