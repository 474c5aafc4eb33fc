package memory

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend is a PersistentBackend over a single SQLite table. It has
// no vector index: SearchByVector always reports unsupported.
//
// Grounded on the teacher's sqlite-backed database provider, narrowed to
// the key/document shape the persistent tier actually needs.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if necessary) a SQLite database at
// path and ensures its schema exists.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS memory_entries (
		id   TEXT PRIMARY KEY,
		doc  BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, id string, doc []byte, _ []float32) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO memory_entries (id, doc) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET doc=excluded.doc`,
		id, doc)
	return err
}

func (b *SQLiteBackend) Get(ctx context.Context, id string) ([]byte, bool, error) {
	var doc []byte
	err := b.db.QueryRowContext(ctx, `SELECT doc FROM memory_entries WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, id string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM memory_entries WHERE id = ?`, id)
	return err
}

func (b *SQLiteBackend) List(ctx context.Context) (map[string][]byte, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, doc FROM memory_entries`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		out[id] = doc
	}
	return out, rows.Err()
}

// SearchByVector is unsupported: SQLite carries no vector index here.
func (b *SQLiteBackend) SearchByVector(_ context.Context, _ []float32, _ int) ([]string, bool, error) {
	return nil, false, nil
}

func (b *SQLiteBackend) Clear(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM memory_entries`)
	return err
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
