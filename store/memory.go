package store

import (
	"context"
	"sync"
)

// MemoryStore keeps documents in process memory. Transactions run one at a
// time, which makes them trivially serializable. Used by tests and by the
// "memory" store driver for local development.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, collection, key string, dst any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	raw, ok := m.docs[docKey(collection, key)]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return decode(raw, dst)
}

func (m *MemoryStore) Set(ctx context.Context, collection, key string, data any, opts ...SetOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := prepare(m.docs[docKey(collection, key)], data, opts)
	if err != nil {
		return err
	}
	m.docs[docKey(collection, key)] = doc
	return nil
}

func (m *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m, writes: make(map[string][]byte)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for k, v := range tx.writes {
		m.docs[k] = v
	}
	return nil
}

// Len reports how many documents a collection holds.
func (m *MemoryStore) Len(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := collection + "/"
	n := 0
	for k := range m.docs {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

type memoryTx struct {
	store  *MemoryStore
	writes map[string][]byte
}

// read sees the transaction's own pending writes first.
func (t *memoryTx) read(k string) []byte {
	if v, ok := t.writes[k]; ok {
		return v
	}
	return t.store.docs[k]
}

func (t *memoryTx) Get(ctx context.Context, collection, key string, dst any) error {
	raw := t.read(docKey(collection, key))
	if raw == nil {
		return ErrNotFound
	}
	return decode(raw, dst)
}

func (t *memoryTx) Set(ctx context.Context, collection, key string, data any, opts ...SetOption) error {
	k := docKey(collection, key)
	doc, err := prepare(t.read(k), data, opts)
	if err != nil {
		return err
	}
	t.writes[k] = doc
	return nil
}

func (t *memoryTx) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	k := docKey(collection, key)
	existing := t.read(k)
	if existing == nil {
		return ErrNotFound
	}
	doc, err := prepare(existing, fields, []SetOption{Merge()})
	if err != nil {
		return err
	}
	t.writes[k] = doc
	return nil
}
