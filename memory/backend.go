package memory

import "context"

// PersistentBackend is the object-store-like persistence API the
// persistent tier writes through, modeled on the teacher's
// databases.DatabaseProvider contract (upsert/search/delete by
// collection+id) but narrowed to the core's actual needs: a document
// store keyed by entry ID, with an optional vector-similarity Search
// for backends that support it.
type PersistentBackend interface {
	// Put upserts a serialized entry document.
	Put(ctx context.Context, id string, doc []byte, embedding []float32) error
	// Get retrieves a document by id.
	Get(ctx context.Context, id string) ([]byte, bool, error)
	// Delete removes a document by id. Idempotent.
	Delete(ctx context.Context, id string) error
	// List returns every stored document (used to hydrate the persistent
	// tier when a Store is constructed).
	List(ctx context.Context) (map[string][]byte, error)
	// SearchByVector returns the ids of the topK nearest documents to
	// query, or (nil, false, nil) if the backend has no vectors indexed
	// for this query (e.g. the in-memory/SQLite backend, which doesn't
	// support similarity search at all).
	SearchByVector(ctx context.Context, query []float32, topK int) ([]string, bool, error)
	// Clear removes every document.
	Clear(ctx context.Context) error
	Close() error
}
