// Package docstoretest is a behavioural test suite every docstore.Store implementation runs.
package docstoretest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marcus/dealbook/internal/docstore"
)

// Run exercises store semantics. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "nobody")
		require.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("SetThenGet", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "alice", json.RawMessage(`{"a":1}`)))
		rec, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		require.JSONEq(t, `{"a":1}`, string(rec.Doc))
		require.Positive(t, rec.Revision)
		require.False(t, rec.UpdatedAt.IsZero())
	})

	t.Run("SetBumpsRevision", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "alice", json.RawMessage(`{"v":1}`)))
		first, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		require.NoError(t, s.Set(ctx, "alice", json.RawMessage(`{"v":2}`)))
		second, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		require.Greater(t, second.Revision, first.Revision)
		require.JSONEq(t, `{"v":2}`, string(second.Doc))
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "alice", json.RawMessage(`{"who":"alice"}`)))
		_, err := s.Get(ctx, "bob")
		require.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("TransactionCreates", func(t *testing.T) {
		s := newStore(t)
		err := s.Transaction(ctx, "alice", func(tx *docstore.Tx) error {
			_, ok := tx.Get()
			require.False(t, ok)
			tx.Set(json.RawMessage(`{"created":true}`))
			return nil
		})
		require.NoError(t, err)
		rec, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		require.JSONEq(t, `{"created":true}`, string(rec.Doc))
	})

	t.Run("TransactionReadsCurrent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "alice", json.RawMessage(`{"n":41}`)))
		err := s.Transaction(ctx, "alice", func(tx *docstore.Tx) error {
			rec, ok := tx.Get()
			require.True(t, ok)
			var v struct{ N int }
			require.NoError(t, json.Unmarshal(rec.Doc, &v))
			require.Equal(t, 41, v.N)
			tx.Set(json.RawMessage(`{"n":42}`))
			return nil
		})
		require.NoError(t, err)
		rec, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		require.JSONEq(t, `{"n":42}`, string(rec.Doc))
	})

	t.Run("TransactionAbort", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "alice", json.RawMessage(`{"n":1}`)))
		before, err := s.Get(ctx, "alice")
		require.NoError(t, err)

		boom := errors.New("boom")
		err = s.Transaction(ctx, "alice", func(tx *docstore.Tx) error {
			tx.Set(json.RawMessage(`{"n":2}`))
			return boom
		})
		require.ErrorIs(t, err, boom)

		after, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		require.JSONEq(t, `{"n":1}`, string(after.Doc))
		require.Equal(t, before.Revision, after.Revision)
	})

	t.Run("TransactionWithoutWrite", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "alice", json.RawMessage(`{"n":1}`)))
		before, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		require.NoError(t, s.Transaction(ctx, "alice", func(tx *docstore.Tx) error { return nil }))
		after, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, before.Revision, after.Revision)
	})

	t.Run("ConcurrentTransactions", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "counter", json.RawMessage(`{"n":0}`)))

		const workers = 5
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Transaction(ctx, "counter", func(tx *docstore.Tx) error {
					rec, _ := tx.Get()
					var v struct {
						N int `json:"n"`
					}
					if err := json.Unmarshal(rec.Doc, &v); err != nil {
						return err
					}
					v.N++
					data, err := json.Marshal(v)
					if err != nil {
						return err
					}
					tx.Set(data)
					return nil
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		rec, err := s.Get(ctx, "counter")
		require.NoError(t, err)
		require.JSONEq(t, `{"n":5}`, string(rec.Doc))
	})

	t.Run("InvalidKey", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "")
		require.Error(t, err)
		require.Error(t, s.Set(ctx, "", json.RawMessage(`{}`)))
	})

	t.Run("CanceledContext", func(t *testing.T) {
		s := newStore(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.Get(cctx, "alice")
		require.ErrorIs(t, err, context.Canceled)
	})
}
