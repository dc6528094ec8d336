// Package sync keeps the local state document consistent with a remote document store:
// hydration at startup, then debounced whole-document pushes guarded by a conflict check.
package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/marcus/dealbook/internal/docstore"
	"github.com/marcus/dealbook/internal/models"
	"github.com/marcus/dealbook/internal/state"
)

// IDSource supplies the device client id.
type IDSource interface {
	ClientID() string
}

// Engine synchronises one state.Store with one remote document.
//
// Lock order: pushMu, then mu. The store's own lock is only taken while neither is
// held or under pushMu alone.
type Engine struct {
	store    *state.Store
	remote   docstore.Store
	clientID string
	cfg      Config
	now      func() time.Time

	mu            gosync.Mutex
	principal     string
	hydrated      bool
	baseline      *time.Time
	pushedVersion uint64
	pending       *pendingPush
	last          PushResult

	// pushMu serialises pushes and hydration.
	pushMu gosync.Mutex

	lmu          gosync.Mutex
	listeners    map[uint64]func(PushResult)
	nextListener uint64

	refreshGroup singleflight.Group
}

// pendingPush is an armed debounce timer. done closes once the push it triggers has
// finished, or once it is cancelled.
type pendingPush struct {
	timer *time.Timer
	done  chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the engine configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithClock overrides the time source used for syncMeta stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine. It does nothing until Init is called with a principal.
func New(store *state.Store, remote docstore.Store, ids IDSource, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		remote:    remote,
		clientID:  ids.ClientID(),
		now:       time.Now,
		listeners: make(map[uint64]func(PushResult)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.Debounce <= 0 {
		e.cfg.Debounce = DefaultDebounce
	}
	return e
}

// ClientID returns this device's client id.
func (e *Engine) ClientID() string {
	return e.clientID
}

// SchedulePush (re)arms the debounce timer. Calls before hydration are ignored.
func (e *Engine) SchedulePush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hydrated || e.principal == "" {
		return
	}
	e.cancelPendingLocked()

	p := &pendingPush{done: make(chan struct{})}
	p.timer = time.AfterFunc(e.cfg.Debounce, func() { e.fire(p) })
	e.pending = p
}

// cancelPendingLocked stops the armed timer if it has not fired yet. A timer that already
// fired keeps running; its push simply includes whatever state exists by then.
func (e *Engine) cancelPendingLocked() {
	if e.pending == nil {
		return
	}
	if e.pending.timer.Stop() {
		close(e.pending.done)
	}
	e.pending = nil
}

func (e *Engine) fire(p *pendingPush) {
	ctx := context.Background()
	if e.cfg.PushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.PushTimeout)
		defer cancel()
	}

	e.pushMu.Lock()
	e.mu.Lock()
	if e.pending == p {
		e.pending = nil
	}
	e.mu.Unlock()
	res := e.attemptLocked(ctx)
	e.pushMu.Unlock()

	close(p.done)
	e.publish(res)
}

// Flush pushes any debounced change now and waits for it. With nothing pending it waits
// for an in-flight push and returns the last result.
func (e *Engine) Flush(ctx context.Context) PushResult {
	e.mu.Lock()
	if !e.hydrated {
		e.mu.Unlock()
		return PushResult{Status: PushSkipped, At: e.now(), Err: ErrNotHydrated}
	}
	p := e.pending
	if p != nil && p.timer.Stop() {
		e.pending = nil
		e.mu.Unlock()
		res := e.AttemptPush(ctx)
		close(p.done)
		return res
	}
	e.mu.Unlock()

	if p != nil {
		select {
		case <-p.done:
		case <-ctx.Done():
			return PushResult{Status: PushFailed, At: e.now(), Err: ctx.Err()}
		}
		return e.lastResult()
	}

	e.pushMu.Lock()
	e.pushMu.Unlock()
	return e.lastResult()
}

// Run re-pulls the remote document every Config.RefreshInterval while there are no
// unpushed local changes. It returns when ctx is done.
func (e *Engine) Run(ctx context.Context) {
	if e.cfg.RefreshInterval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(e.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := e.Status()
			if !st.Hydrated || st.Dirty || st.Pending {
				continue
			}
			if err := e.Refresh(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("sync: periodic refresh", "principal", st.Principal, "err", err)
			}
		}
	}
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	version := e.store.Version()
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Principal: e.principal,
		ClientID:  e.clientID,
		Hydrated:  e.hydrated,
		Baseline:  cloneTime(e.baseline),
		Dirty:     e.hydrated && version != e.pushedVersion,
		Pending:   e.pending != nil,
		Last:      e.last,
	}
}

// OnPush registers fn to receive every push result. fn runs on the pushing goroutine.
func (e *Engine) OnPush(fn func(PushResult)) (unsubscribe func()) {
	e.lmu.Lock()
	e.nextListener++
	id := e.nextListener
	e.listeners[id] = fn
	e.lmu.Unlock()
	return func() {
		e.lmu.Lock()
		delete(e.listeners, id)
		e.lmu.Unlock()
	}
}

func (e *Engine) publish(res PushResult) {
	e.lmu.Lock()
	fns := make([]func(PushResult), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.lmu.Unlock()
	for _, fn := range fns {
		fn(res)
	}
}

func (e *Engine) lastResult() PushResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

var _ state.Scheduler = (*Engine)(nil)

// notifyAll tells subscribers the whole document changed.
func (e *Engine) notifyAll() {
	e.store.Notify(models.Wildcard)
}
