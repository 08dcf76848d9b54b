package repository

import (
	"context"

	"netonboard/internal/domain"
)

// Store is the inventory store contract the reconciler depends on.
type Store interface {
	// FindOne returns the single record of kind matching filter, or nil when
	// none matches.
	FindOne(ctx context.Context, kind domain.EntityKind, filter domain.Filter) (*domain.Entity, error)

	// FindAll returns every record of kind matching filter.
	FindAll(ctx context.Context, kind domain.EntityKind, filter domain.Filter) ([]*domain.Entity, error)

	// Create inserts a record and returns it with its assigned ID. Identity
	// collisions are reported as conflicting_entity.
	Create(ctx context.Context, kind domain.EntityKind, fields domain.Fields) (*domain.Entity, error)

	// Update merges fields into an existing record.
	Update(ctx context.Context, kind domain.EntityKind, id string, fields domain.Fields) (*domain.Entity, error)

	// RunAtomic runs fn against a transaction-scoped Store. Any error returned
	// by fn rolls back every write made through it.
	RunAtomic(ctx context.Context, fn func(tx Store) error) error
}

// Inventory is a Store that owns resources.
type Inventory interface {
	Store

	// Close releases resources
	Close() error
}
