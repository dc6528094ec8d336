package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcus/dealbook/internal/docstore"
	"github.com/marcus/dealbook/internal/models"
)

// Init hydrates the store from the remote document named by principal. An empty
// principal means "not connected" and is a no-op.
//
// When the remote document exists it is merged over the defaults and replaces local
// state. When it does not, this device is the first writer: it is marked hydrated,
// stamps syncMeta and creates the remote document from local state. Read failures are
// logged and returned, and the store keeps its current document un-hydrated. A failed
// create is also returned but leaves the engine hydrated so the next push retries it.
func (e *Engine) Init(ctx context.Context, principal string) error {
	if principal == "" {
		return nil
	}

	e.pushMu.Lock()
	e.mu.Lock()
	if e.principal != principal {
		e.hydrated = false
		e.baseline = nil
		e.last = PushResult{}
	}
	e.principal = principal
	e.cancelPendingLocked()
	e.mu.Unlock()
	err := e.hydrateLocked(ctx, principal)
	e.pushMu.Unlock()

	if err != nil {
		return err
	}
	e.notifyAll()
	return nil
}

// Refresh re-pulls the remote document and replaces local state with it, discarding
// unpushed local changes. Concurrent calls share one pull. It is never called
// automatically after a conflict.
func (e *Engine) Refresh(ctx context.Context) error {
	_, err, _ := e.refreshGroup.Do("refresh", func() (any, error) {
		e.pushMu.Lock()
		e.mu.Lock()
		principal := e.principal
		e.cancelPendingLocked()
		e.mu.Unlock()
		if principal == "" {
			e.pushMu.Unlock()
			return nil, nil
		}
		err := e.hydrateLocked(ctx, principal)
		e.pushMu.Unlock()
		if err == nil {
			e.notifyAll()
		}
		return nil, err
	})
	return err
}

// hydrateLocked runs with pushMu held. The caller notifies subscribers after releasing it.
func (e *Engine) hydrateLocked(ctx context.Context, principal string) error {
	rec, err := e.remote.Get(ctx, principal)
	if errors.Is(err, docstore.ErrNotFound) {
		return e.createRemoteLocked(ctx, principal)
	}
	if err != nil {
		slog.Error("sync: hydrate", "principal", principal, "err", err)
		return fmt.Errorf("hydrate %s: %w", principal, err)
	}

	doc, err := models.MergeRemote(models.NewDocument(e.clientID), rec.Doc)
	if err != nil {
		slog.Error("sync: decode remote document", "principal", principal, "err", err)
		return fmt.Errorf("hydrate %s: %w", principal, err)
	}
	baseline := cloneTime(doc.SyncMeta.LastUpdatedAt)
	version := e.store.Replace(doc)

	e.mu.Lock()
	e.hydrated = true
	e.baseline = baseline
	e.pushedVersion = version
	e.mu.Unlock()

	slog.Debug("sync: hydrated", "principal", principal, "revision", rec.Revision, "baseline", baseline)
	return nil
}

// createRemoteLocked makes this device the first writer of principal's document.
func (e *Engine) createRemoteLocked(ctx context.Context, principal string) error {
	e.mu.Lock()
	e.hydrated = true
	e.mu.Unlock()

	var (
		data    []byte
		meta    models.SyncMeta
		stamp   time.Time
		version uint64
	)
	err := e.store.Apply(func(doc *models.Document, v uint64) error {
		stamp = e.nextStamp(doc.SyncMeta.LastUpdatedAt, nil)
		meta = e.stampMeta(stamp)
		var err error
		data, err = marshalWithMeta(doc, meta)
		version = v
		return err
	})
	if err == nil {
		err = e.remote.Set(ctx, principal, data)
	}
	if err != nil {
		slog.Error("sync: create remote document", "principal", principal, "err", err)
		return fmt.Errorf("create remote document %s: %w", principal, err)
	}

	e.store.Apply(func(doc *models.Document, _ uint64) error {
		doc.SyncMeta = meta
		return nil
	})
	e.mu.Lock()
	e.baseline = &stamp
	e.pushedVersion = version
	e.mu.Unlock()

	slog.Debug("sync: created remote document", "principal", principal, "stamp", stamp)
	return nil
}

// nextStamp returns now, moved forward if needed so it is strictly after every
// non-nil bound. Millisecond precision matches the wire format.
func (e *Engine) nextStamp(bounds ...*time.Time) time.Time {
	t := e.now().UTC().Truncate(time.Millisecond)
	for _, b := range bounds {
		if b != nil && !t.After(*b) {
			t = b.UTC().Truncate(time.Millisecond).Add(time.Millisecond)
		}
	}
	return t
}

func (e *Engine) stampMeta(at time.Time) models.SyncMeta {
	by := e.clientID
	return models.SyncMeta{ClientID: e.clientID, LastUpdatedAt: &at, LastUpdatedBy: &by}
}

// marshalWithMeta encodes doc as if its syncMeta were meta, leaving doc unchanged.
// The caller holds the store lock.
func marshalWithMeta(doc *models.Document, meta models.SyncMeta) ([]byte, error) {
	prev := doc.SyncMeta
	doc.SyncMeta = meta
	data, err := json.Marshal(doc)
	doc.SyncMeta = prev
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}
