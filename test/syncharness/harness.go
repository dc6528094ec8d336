// Package syncharness drives several simulated devices against one shared document store
// so multi-device scenarios can be scripted step by step.
package syncharness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marcus/dealbook/internal/api"
	"github.com/marcus/dealbook/internal/docstore"
	"github.com/marcus/dealbook/internal/models"
	"github.com/marcus/dealbook/internal/serverdb"
	"github.com/marcus/dealbook/internal/statemgr"
	dsync "github.com/marcus/dealbook/internal/sync"
	"github.com/marcus/dealbook/internal/syncclient"
)

// Backend selects the shared store the devices talk to.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendHTTP   Backend = "http"
)

// Backends lists every backend, for tests that run a scenario against each.
var Backends = []Backend{BackendMemory, BackendSQLite, BackendHTTP}

type clientID string

func (c clientID) ClientID() string { return string(c) }

// SimulatedClient is one device with its own manager.
type SimulatedClient struct {
	ID  string
	Mgr *statemgr.Manager

	mu     sync.Mutex
	pushes []dsync.PushResult
}

// Pushes returns every push result the device has seen, oldest first.
func (c *SimulatedClient) Pushes() []dsync.PushResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dsync.PushResult(nil), c.pushes...)
}

// Harness orchestrates multi-device sync testing.
type Harness struct {
	t         *testing.T
	Principal string
	// Remote is direct access to the shared store, bypassing every device.
	Remote  docstore.Store
	Clients map[string]*SimulatedClient
	order   []string

	remoteFor func(id string) docstore.Store
}

// NewHarness creates numClients devices named client-A, client-B, ... sharing one store.
// Debounce is long enough that only Flush pushes.
func NewHarness(t *testing.T, backend Backend, numClients int, principal string) *Harness {
	t.Helper()
	h := &Harness{t: t, Principal: principal, Clients: make(map[string]*SimulatedClient)}

	switch backend {
	case BackendMemory:
		mem := docstore.NewMemory()
		h.Remote = mem
		h.remoteFor = func(string) docstore.Store { return mem }
	case BackendSQLite, BackendHTTP:
		db, err := serverdb.OpenDriver("sqlite3", ":memory:")
		if err != nil {
			t.Fatalf("open store db: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		h.Remote = db
		h.remoteFor = func(string) docstore.Store { return db }

		if backend == BackendHTTP {
			srv, err := api.NewServer(api.DefaultConfig(), db)
			if err != nil {
				t.Fatalf("new server: %v", err)
			}
			ts := httptest.NewServer(srv.Handler())
			t.Cleanup(ts.Close)
			h.remoteFor = func(id string) docstore.Store { return syncclient.New(ts.URL, id) }
		}
	default:
		t.Fatalf("unknown backend %q", backend)
	}

	for i := 0; i < numClients; i++ {
		h.AddClient(fmt.Sprintf("client-%c", 'A'+i))
	}
	return h
}

// AddClient adds a device that has not pulled yet.
func (h *Harness) AddClient(id string) *SimulatedClient {
	h.t.Helper()
	if _, ok := h.Clients[id]; ok {
		h.t.Fatalf("client %s already exists", id)
	}
	mgr := statemgr.New(h.remoteFor(id), clientID(id),
		statemgr.WithSyncConfig(dsync.Config{Debounce: time.Hour}))
	c := &SimulatedClient{ID: id, Mgr: mgr}
	mgr.OnPush(func(res dsync.PushResult) {
		c.mu.Lock()
		c.pushes = append(c.pushes, res)
		c.mu.Unlock()
	})
	h.Clients[id] = c
	h.order = append(h.order, id)
	return c
}

func (h *Harness) client(id string) *SimulatedClient {
	h.t.Helper()
	c, ok := h.Clients[id]
	if !ok {
		h.t.Fatalf("unknown client %s", id)
	}
	return c
}

// Init pulls (or creates) the shared document on one device.
func (h *Harness) Init(id string) error {
	return h.client(id).Mgr.Init(context.Background(), h.Principal)
}

// InitAll pulls on every device in creation order and fails the test on error.
func (h *Harness) InitAll() {
	h.t.Helper()
	for _, id := range h.order {
		if err := h.Init(id); err != nil {
			h.t.Fatalf("init %s: %v", id, err)
		}
	}
}

// Add creates an entity on one device without pushing it.
func (h *Harness) Add(id, category string, payload map[string]any) models.Entity {
	return h.client(id).Mgr.Add(category, payload)
}

// Update changes an entity on one device without pushing it.
func (h *Harness) Update(id, category, entityID string, patch map[string]any) bool {
	_, ok := h.client(id).Mgr.Update(category, entityID, patch)
	return ok
}

// Delete removes an entity on one device without pushing it.
func (h *Harness) Delete(id, category, entityID string) bool {
	return h.client(id).Mgr.Delete(category, entityID)
}

// Push flushes one device's pending change.
func (h *Harness) Push(id string) dsync.PushResult {
	return h.client(id).Mgr.Flush(context.Background())
}

// Pull re-pulls on one device, discarding its unpushed changes.
func (h *Harness) Pull(id string) error {
	return h.client(id).Mgr.Refresh(context.Background())
}

// Sync pushes then pulls, the way a device recovers after a conflict.
func (h *Harness) Sync(id string) error {
	res := h.Push(id)
	if res.Status == dsync.PushFailed {
		return res.Err
	}
	return h.Pull(id)
}

// RemoteDoc decodes the shared document, or nil when none exists.
func (h *Harness) RemoteDoc() *models.Document {
	h.t.Helper()
	rec, err := h.Remote.Get(context.Background(), h.Principal)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		h.t.Fatalf("get remote: %v", err)
	}
	doc, err := models.MergeRemote(models.NewDocument(""), rec.Doc)
	if err != nil {
		h.t.Fatalf("decode remote: %v", err)
	}
	return doc
}

// RemoteRaw returns the shared document exactly as stored.
func (h *Harness) RemoteRaw() map[string]json.RawMessage {
	h.t.Helper()
	rec, err := h.Remote.Get(context.Background(), h.Principal)
	if err != nil {
		h.t.Fatalf("get remote: %v", err)
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(rec.Doc, &out); err != nil {
		h.t.Fatalf("decode remote: %v", err)
	}
	return out
}

// SeedRemote writes doc as the shared document, as if another client had saved it.
func (h *Harness) SeedRemote(doc string) {
	h.t.Helper()
	if err := h.Remote.Set(context.Background(), h.Principal, json.RawMessage(doc)); err != nil {
		h.t.Fatalf("seed remote: %v", err)
	}
}

// AssertConverged verifies every device holds the same records, settings and activity
// as the shared document.
func (h *Harness) AssertConverged() {
	h.t.Helper()
	remote := h.RemoteDoc()
	if remote == nil {
		h.t.Fatal("no remote document")
	}
	want := dump(remote)
	for _, id := range h.order {
		if got := dump(h.client(id).Mgr.Snapshot()); got != want {
			h.t.Fatalf("%s diverged from remote:\n%s", id, diffLines(want, got))
		}
	}
}

// Diff returns a human-readable diff between two devices.
func (h *Harness) Diff(a, b string) string {
	return diffLines(dump(h.client(a).Mgr.Snapshot()), dump(h.client(b).Mgr.Snapshot()))
}

// CountEntities returns how many records one device holds in category.
func (h *Harness) CountEntities(id, category string) int {
	return len(h.client(id).Mgr.Snapshot().Categories[category])
}

// QueryEntity returns one record from a device, or nil.
func (h *Harness) QueryEntity(id, category, entityID string) models.Entity {
	for _, e := range h.client(id).Mgr.Snapshot().Categories[category] {
		if e.ID() == entityID {
			return e
		}
	}
	return nil
}

// dump renders the synced content deterministically. syncMeta.clientId is per device
// and is left out.
func dump(doc *models.Document) string {
	var sb strings.Builder
	cats := doc.CategoryNames()
	for _, c := range cats {
		for _, e := range doc.Categories[c] {
			data, _ := json.Marshal(e)
			fmt.Fprintf(&sb, "%s %s\n", c, data)
		}
	}
	keys := make([]string, 0, len(doc.Settings))
	for k := range doc.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data, _ := json.Marshal(doc.Settings[k])
		fmt.Fprintf(&sb, "settings %s=%s\n", k, data)
	}
	for _, a := range doc.ActivityLog {
		fmt.Fprintf(&sb, "activity %s %s %s\n", a.ID, a.Type, a.Text)
	}
	if at := doc.SyncMeta.LastUpdatedAt; at != nil {
		fmt.Fprintf(&sb, "saved %s\n", models.FormatTime(*at))
	}
	return sb.String()
}

func diffLines(want, got string) string {
	wl := strings.Split(want, "\n")
	gl := strings.Split(got, "\n")
	var sb strings.Builder
	n := len(wl)
	if len(gl) > n {
		n = len(gl)
	}
	for i := 0; i < n; i++ {
		var w, g string
		if i < len(wl) {
			w = wl[i]
		}
		if i < len(gl) {
			g = gl[i]
		}
		if w != g {
			fmt.Fprintf(&sb, "- %s\n+ %s\n", w, g)
		}
	}
	return sb.String()
}
