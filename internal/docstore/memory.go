package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Memory is a process-local Store. Transactions hold the lock across fn, so they are
// fully serialised.
type Memory struct {
	mu   sync.Mutex
	docs map[string]*Record
	now  func() time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]*Record), now: time.Now}
}

func (m *Memory) Get(ctx context.Context, key string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidKey(key) {
		return nil, ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (m *Memory) Set(ctx context.Context, key string, doc json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	if !json.Valid(doc) {
		return fmt.Errorf("set %s: invalid JSON document", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(key, doc)
	return nil
}

func (m *Memory) Transaction(ctx context.Context, key string, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var current *Record
	if rec, ok := m.docs[key]; ok {
		current = copyRecord(rec)
	}
	tx := NewTx(current)
	if err := fn(tx); err != nil {
		return err
	}
	doc, ok := tx.Pending()
	if !ok {
		return nil
	}
	if !json.Valid(doc) {
		return fmt.Errorf("transaction %s: invalid JSON document", key)
	}
	m.putLocked(key, doc)
	return nil
}

// Len returns the number of stored documents.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *Memory) putLocked(key string, doc json.RawMessage) {
	var rev int64 = 1
	if prev, ok := m.docs[key]; ok {
		rev = prev.Revision + 1
	}
	m.docs[key] = &Record{
		Doc:       append(json.RawMessage(nil), doc...),
		Revision:  rev,
		UpdatedAt: m.now().UTC(),
	}
}

func copyRecord(r *Record) *Record {
	cp := *r
	cp.Doc = append(json.RawMessage(nil), r.Doc...)
	return &cp
}
