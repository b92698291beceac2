package core

import "context"

// Store is the durable local key/value area holding serialized collections.
// Adhering to this interface keeps the engine independent of the underlying
// storage mechanism (filesystem, Badger, SQLite, memory).
type Store interface {
	// Load returns the bytes stored under key, or (nil, nil) if nothing is stored.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save replaces the bytes stored under key atomically.
	Save(ctx context.Context, key string, data []byte) error

	// Keys lists every stored key.
	Keys(ctx context.Context) ([]string, error)

	// Close releases the underlying resources.
	Close() error
}

// Gateway is the adapter to the remote persistence service.
// All calls are fallible; callers must treat an error and a timeout alike.
type Gateway[T any] interface {
	// List returns the remote snapshot of an owner's collection.
	List(ctx context.Context, ownerID string) ([]Entity[T], error)

	// Create persists a new entity for an owner.
	Create(ctx context.Context, ownerID string, e Entity[T]) error

	// Update replaces an entity. It returns ErrNotFound if the remote does not know the id.
	Update(ctx context.Context, id string, e Entity[T]) error

	// Delete removes an entity.
	Delete(ctx context.Context, id string) error
}
