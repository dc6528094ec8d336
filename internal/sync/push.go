package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/marcus/dealbook/internal/docstore"
	"github.com/marcus/dealbook/internal/models"
)

// AttemptPush writes the whole local document to the remote store inside a transaction,
// unless another device wrote after our last pull. Errors never propagate; they are
// logged and reported in the result.
func (e *Engine) AttemptPush(ctx context.Context) PushResult {
	e.pushMu.Lock()
	res := e.attemptLocked(ctx)
	e.pushMu.Unlock()
	e.publish(res)
	return res
}

// attemptLocked runs with pushMu held.
func (e *Engine) attemptLocked(ctx context.Context) PushResult {
	e.mu.Lock()
	principal, hydrated := e.principal, e.hydrated
	baseline := cloneTime(e.baseline)
	e.mu.Unlock()

	if principal == "" || !hydrated {
		res := PushResult{Status: PushSkipped, At: e.now(), Err: ErrNotHydrated}
		e.setLast(res)
		return res
	}

	var (
		meta    models.SyncMeta
		stamp   time.Time
		version uint64
	)
	err := e.remote.Transaction(ctx, principal, func(tx *docstore.Tx) error {
		var remote models.SyncMeta
		if rec, ok := tx.Get(); ok {
			remote = models.RemoteSyncMeta(rec.Doc)
		}
		if isConflict(remote, baseline, e.clientID) {
			return &ConflictError{
				Baseline: *baseline,
				RemoteAt: *remote.LastUpdatedAt,
				RemoteBy: *remote.LastUpdatedBy,
			}
		}
		return e.store.Apply(func(doc *models.Document, v uint64) error {
			stamp = e.nextStamp(doc.SyncMeta.LastUpdatedAt, remote.LastUpdatedAt)
			meta = e.stampMeta(stamp)
			data, err := marshalWithMeta(doc, meta)
			if err != nil {
				return err
			}
			tx.Set(data)
			version = v
			return nil
		})
	})

	var res PushResult
	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		slog.Warn("sync: push blocked, remote has newer changes from another device",
			"principal", principal,
			"remote_by", conflict.RemoteBy,
			"remote_at", conflict.RemoteAt,
			"baseline", conflict.Baseline,
		)
		res = PushResult{Status: PushConflict, At: e.now(), Err: err}
	case err != nil:
		slog.Error("sync: push", "principal", principal, "err", err)
		res = PushResult{Status: PushFailed, At: e.now(), Err: err}
	default:
		e.store.Apply(func(doc *models.Document, _ uint64) error {
			doc.SyncMeta = meta
			return nil
		})
		e.mu.Lock()
		e.baseline = &stamp
		e.pushedVersion = version
		e.mu.Unlock()
		slog.Debug("sync: pushed", "principal", principal, "stamp", stamp)
		res = PushResult{Status: PushOK, At: e.now(), Stamp: stamp}
	}
	e.setLast(res)
	return res
}

// isConflict reports whether the remote was written by another device after our baseline.
// Missing timestamps or writer never count as a conflict.
func isConflict(remote models.SyncMeta, baseline *time.Time, clientID string) bool {
	return remote.LastUpdatedAt != nil &&
		baseline != nil &&
		remote.LastUpdatedAt.After(*baseline) &&
		remote.LastUpdatedBy != nil &&
		*remote.LastUpdatedBy != clientID
}

func (e *Engine) setLast(res PushResult) {
	e.mu.Lock()
	e.last = res
	e.mu.Unlock()
}
