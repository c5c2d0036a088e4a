package gallery

import "context"

// Persister is the durable backend behind a Store. Save receives the complete
// identity (all samples); backends may rely on samples never changing once
// written.
type Persister interface {
	// Load returns every persisted identity.
	Load(ctx context.Context) ([]Identity, error)
	// Save inserts or replaces an identity.
	Save(ctx context.Context, identity Identity) error
	// Delete removes the identity stored under key.
	Delete(ctx context.Context, key string) error
	// Flush forces buffered state to durable storage.
	Flush(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}
