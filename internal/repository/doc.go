// Package repository defines the inventory store abstraction used by the
// reconciler.
//
// # Store Interface
//
// Store exposes four operations over generic inventory entities: FindOne,
// Create, Update and RunAtomic (plus FindAll for listings). Records are
// addressed by domain.EntityKind and carry free-form domain.Fields; every
// kind has an identity tuple (see domain.IdentityKey) that the store keeps
// unique.
//
// # SQLite Implementation
//
// The sqlite subpackage implements Store on modernc.org/sqlite. It handles:
//
// - a single entities table keyed by (kind, identity_key)
// - JSON serialization of entity fields
// - transaction-scoped stores for RunAtomic
// - mapping driver errors to conflicting_entity or store_unavailable
package repository
