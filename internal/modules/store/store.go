// Package store persists module enablement state.
//
// Two implementations are provided: InMemory for single-process deployments
// and tests, and Postgres for deployments that share state across replicas.
// Both treat rows for module types absent from the catalog as opaque: they
// are returned by LoadAll and never deleted.
package store
