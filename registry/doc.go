// Package registry is the durable, versioned store of tenants and their
// provisioned instances. It is the sole reader and writer of the persisted
// fleet state; every mutation goes through a load-modify-save cycle against
// the full document.
//
// # Persistence
//
// The whole fleet is one JSON document at a configured path. Writes go to a
// temporary file in the same directory followed by an atomic rename, so a
// reader never observes a truncated document. Before any overwrite the
// previous file is copied to a timestamped backup; backup failures are
// logged but never abort the save.
//
// # Schema versions
//
// Version 1 stored instances in a flat top-level map, before tenants
// existed. Version 2 nests instances under tenants. Loading a version 1
// document migrates it in place: a single "Default" tenant (slug "default")
// adopts every instance, and the pre-migration file is kept under a fixed
// backup name for manual recovery.
//
// # Concurrency
//
// The store is single-process. Two concurrent mutations both perform
// load-modify-save and the later write wins on the whole document; this is
// an accepted limitation for the intended fleet size.
package registry
