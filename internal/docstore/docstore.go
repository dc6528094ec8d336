// Package docstore defines the remote document store the sync engine pushes to, and an
// in-memory implementation.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when no document exists under the key.
	ErrNotFound = errors.New("document not found")
	// ErrPreconditionFailed means a conditional write lost a race.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrTooManyRetries is returned when a transaction kept losing races.
	ErrTooManyRetries = errors.New("transaction retries exhausted")
	// ErrInvalidKey rejects empty keys.
	ErrInvalidKey = errors.New("invalid document key")
)

// Record is a stored document and its revision.
type Record struct {
	Doc       json.RawMessage `json:"doc"`
	Revision  int64           `json:"revision"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store is a keyed document store with transactional read-modify-write.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	// Set writes doc unconditionally.
	Set(ctx context.Context, key string, doc json.RawMessage) error
	// Transaction runs fn against a consistent read of key. If fn stages a write with
	// Tx.Set and returns nil, the write commits only if key was not written in between.
	// An error from fn aborts the transaction and is returned unchanged.
	Transaction(ctx context.Context, key string, fn func(tx *Tx) error) error
}

// Tx is the view fn gets inside Transaction.
type Tx struct {
	current *Record
	staged  json.RawMessage
	written bool
}

// NewTx starts a transaction over current (nil when the key is absent). Store
// implementations call this; callers only use the Tx they are handed.
func NewTx(current *Record) *Tx {
	return &Tx{current: current}
}

// Get returns the document as read at the start of the transaction.
func (tx *Tx) Get() (*Record, bool) {
	if tx.current == nil {
		return nil, false
	}
	return tx.current, true
}

// Set stages doc as the new value.
func (tx *Tx) Set(doc json.RawMessage) {
	tx.staged = append(json.RawMessage(nil), doc...)
	tx.written = true
}

// Pending returns the staged write, if any.
func (tx *Tx) Pending() (json.RawMessage, bool) {
	return tx.staged, tx.written
}

// Revision returns the revision read at the start, or 0 when absent.
func (tx *Tx) Revision() int64 {
	if tx.current == nil {
		return 0
	}
	return tx.current.Revision
}

// ValidKey reports whether key can name a document.
func ValidKey(key string) bool {
	return key != "" && len(key) <= 256
}
