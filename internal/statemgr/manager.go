// Package statemgr wires the local state store and the sync engine into one object that
// application code constructs once and passes around.
package statemgr

import (
	"context"
	"errors"
	"time"

	"github.com/marcus/dealbook/internal/docstore"
	"github.com/marcus/dealbook/internal/models"
	"github.com/marcus/dealbook/internal/state"
	dsync "github.com/marcus/dealbook/internal/sync"
)

// ErrNoRemote is returned by Init when a principal is given but no document store is configured.
var ErrNoRemote = errors.New("no document store configured")

// Manager is one device's view of one CRM document.
type Manager struct {
	store  *state.Store
	engine *dsync.Engine
	remote docstore.Store
}

type options struct {
	store []state.Option
	sync  []dsync.Option
}

// Option configures a Manager.
type Option func(*options)

// WithSyncConfig sets debounce, refresh and push timeout.
func WithSyncConfig(cfg dsync.Config) Option {
	return func(o *options) { o.sync = append(o.sync, dsync.WithConfig(cfg)) }
}

// WithActivityLimit caps the activity log.
func WithActivityLimit(n int) Option {
	return func(o *options) { o.store = append(o.store, state.WithActivityLimit(n)) }
}

// WithClock sets the time source for entity timestamps and syncMeta stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.store = append(o.store, state.WithClock(now))
		o.sync = append(o.sync, dsync.WithClock(now))
	}
}

// New builds a manager. remote may be nil, in which case the manager only works locally.
func New(remote docstore.Store, ids dsync.IDSource, opts ...Option) *Manager {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	clientID := ids.ClientID()
	store := state.New(clientID, o.store...)
	engine := dsync.New(store, remote, ids, o.sync...)
	store.SetScheduler(engine)
	return &Manager{store: store, engine: engine, remote: remote}
}

// Store returns the underlying state store.
func (m *Manager) Store() *state.Store { return m.store }

// Engine returns the underlying sync engine.
func (m *Manager) Engine() *dsync.Engine { return m.engine }

// ClientID returns this device's client id.
func (m *Manager) ClientID() string { return m.engine.ClientID() }

// Get returns the live document.
func (m *Manager) Get() *models.Document { return m.store.Get() }

// Snapshot returns a deep copy of the document.
func (m *Manager) Snapshot() *models.Document { return m.store.Snapshot() }

// Subscribe registers fn for change notifications. See state.Store.Subscribe.
func (m *Manager) Subscribe(fn state.Subscriber) (unsubscribe func()) {
	return m.store.Subscribe(fn)
}

func (m *Manager) Add(category string, payload map[string]any) models.Entity {
	return m.store.Add(category, payload)
}

func (m *Manager) Update(category, id string, patch map[string]any) (models.Entity, bool) {
	return m.store.Update(category, id, patch)
}

func (m *Manager) Delete(category, id string) bool {
	return m.store.Delete(category, id)
}

func (m *Manager) UpdateSettings(patch map[string]any) {
	m.store.UpdateSettings(patch)
}

// Init hydrates from principal's remote document. An empty principal leaves the manager
// local-only.
func (m *Manager) Init(ctx context.Context, principal string) error {
	if principal != "" && m.remote == nil {
		return ErrNoRemote
	}
	return m.engine.Init(ctx, principal)
}

// Flush pushes pending changes now and waits for the result.
func (m *Manager) Flush(ctx context.Context) dsync.PushResult { return m.engine.Flush(ctx) }

// Refresh discards local changes and re-pulls the remote document.
func (m *Manager) Refresh(ctx context.Context) error { return m.engine.Refresh(ctx) }

// Run performs periodic refreshes until ctx is done.
func (m *Manager) Run(ctx context.Context) { m.engine.Run(ctx) }

func (m *Manager) Status() dsync.Status { return m.engine.Status() }

func (m *Manager) OnPush(fn func(dsync.PushResult)) (unsubscribe func()) {
	return m.engine.OnPush(fn)
}
