package memory

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

const chromemCollection = "memory_persistent"

// ChromemBackend is a PersistentBackend over an embedded chromem-go
// database: no external service, optional gzip file persistence, cosine
// similarity search over pre-computed embeddings.
//
// Grounded on the teacher's vector.ChromemProvider; narrowed to the
// single collection the persistent tier needs and to documents carrying
// a pre-serialized Entry as their content. chromem-go's collection type
// doesn't expose an id listing call, so the backend tracks its own id
// set for List/Clear bookkeeping.
type ChromemBackend struct {
	mu   sync.RWMutex
	db   *chromem.DB
	col  *chromem.Collection
	path string
	ids  map[string]struct{}
}

// NewChromemBackend opens (or creates) a chromem database. If persistPath
// is empty the database is in-memory only.
func NewChromemBackend(persistPath string, compress bool) (*ChromemBackend, error) {
	var db *chromem.DB
	var err error
	if persistPath != "" {
		db, err = chromem.NewPersistentDB(persistPath, compress)
		if err != nil {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	identity := func(_ context.Context, _ string) ([]float32, error) {
		return nil, fmt.Errorf("chromem embedding function invoked; vectors must be pre-computed")
	}
	col, err := db.GetOrCreateCollection(chromemCollection, nil, identity)
	if err != nil {
		return nil, err
	}
	return &ChromemBackend{db: db, col: col, path: persistPath, ids: make(map[string]struct{})}, nil
}

func (b *ChromemBackend) Put(ctx context.Context, id string, doc []byte, embedding []float32) error {
	d := chromem.Document{
		ID:      id,
		Content: string(doc),
	}
	if embedding != nil {
		d.Embedding = embedding
	} else {
		d.Embedding = zeroVector(1)
	}
	if err := b.col.AddDocuments(ctx, []chromem.Document{d}, runtime.NumCPU()); err != nil {
		return err
	}
	b.mu.Lock()
	b.ids[id] = struct{}{}
	b.mu.Unlock()
	return nil
}

// zeroVector gives chromem a non-empty embedding slot for entries stored
// without a real embedding; they simply never surface from
// SearchByVector.
func zeroVector(n int) []float32 {
	return make([]float32, n)
}

func (b *ChromemBackend) Get(ctx context.Context, id string) ([]byte, bool, error) {
	doc, err := b.col.GetByID(ctx, id)
	if err != nil {
		return nil, false, nil
	}
	return []byte(doc.Content), true, nil
}

func (b *ChromemBackend) Delete(ctx context.Context, id string) error {
	if err := b.col.Delete(ctx, nil, nil, id); err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.ids, id)
	b.mu.Unlock()
	return nil
}

func (b *ChromemBackend) List(ctx context.Context) (map[string][]byte, error) {
	b.mu.RLock()
	ids := make([]string, 0, len(b.ids))
	for id := range b.ids {
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	out := make(map[string][]byte, len(ids))
	for _, id := range ids {
		doc, err := b.col.GetByID(ctx, id)
		if err != nil {
			continue
		}
		out[id] = []byte(doc.Content)
	}
	return out, nil
}

func (b *ChromemBackend) SearchByVector(ctx context.Context, query []float32, topK int) ([]string, bool, error) {
	if b.col.Count() == 0 {
		return nil, false, nil
	}
	results, err := b.col.QueryEmbedding(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, false, err
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	return ids, true, nil
}

func (b *ChromemBackend) Clear(_ context.Context) error {
	if err := b.db.DeleteCollection(chromemCollection); err != nil {
		return err
	}
	b.mu.Lock()
	b.ids = make(map[string]struct{})
	b.mu.Unlock()
	identity := func(_ context.Context, _ string) ([]float32, error) {
		return nil, fmt.Errorf("chromem embedding function invoked; vectors must be pre-computed")
	}
	col, err := b.db.GetOrCreateCollection(chromemCollection, nil, identity)
	if err != nil {
		return err
	}
	b.col = col
	return nil
}

func (b *ChromemBackend) Close() error {
	if b.path == "" {
		return nil
	}
	//nolint:staticcheck // matches the teacher's compatibility export call
	return b.db.Export(b.path, false, "")
}
