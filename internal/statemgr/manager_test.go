package statemgr

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus/dealbook/internal/docstore"
	"github.com/marcus/dealbook/internal/identity"
	"github.com/marcus/dealbook/internal/models"
	"github.com/marcus/dealbook/internal/serverdb"
	dsync "github.com/marcus/dealbook/internal/sync"
)

type txCounter struct {
	docstore.Store
	txs atomic.Int32
}

func (c *txCounter) Transaction(ctx context.Context, key string, fn func(tx *docstore.Tx) error) error {
	c.txs.Add(1)
	return c.Store.Transaction(ctx, key, fn)
}

func newDevice(t *testing.T, remote docstore.Store, opts ...Option) *Manager {
	t.Helper()
	ids := identity.NewProvider(identity.NewMemoryStorage())
	return New(remote, ids, opts...)
}

func seedRemote(t *testing.T, remote docstore.Store, key string, at time.Time) {
	t.Helper()
	doc := `{"categories":{},"syncMeta":{"clientId":"seed","lastUpdatedAt":"` +
		models.FormatTime(at) + `","lastUpdatedBy":"seed"}}`
	require.NoError(t, remote.Set(context.Background(), key, json.RawMessage(doc)))
}

func TestAddThenDebouncedPush(t *testing.T) {
	remote := &txCounter{Store: docstore.NewMemory()}
	seedRemote(t, remote, "acme", time.Now().Add(-time.Hour))
	m := newDevice(t, remote, WithSyncConfig(dsync.Config{Debounce: 40 * time.Millisecond}))
	require.NoError(t, m.Init(context.Background(), "acme"))

	deal := m.Add(models.CategoryDeals, map[string]any{"name": "Tower A"})

	doc := m.Get()
	require.NotEmpty(t, doc.Categories[models.CategoryDeals])
	first := doc.Categories[models.CategoryDeals][0]
	assert.Equal(t, deal.ID(), first.ID())
	assert.True(t, strings.HasPrefix(first.ID(), "dea_"), first.ID())
	assert.NotEmpty(t, first[models.FieldCreatedAt])
	require.NotEmpty(t, doc.ActivityLog)
	assert.Contains(t, doc.ActivityLog[0].Text, "Tower A")

	assert.Zero(t, remote.txs.Load(), "push must wait for the debounce interval")
	require.Eventually(t, func() bool { return remote.txs.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.EqualValues(t, 1, remote.txs.Load())
	assert.Equal(t, dsync.PushOK, m.Status().Last.Status)
}

func TestTwoDevicesConflict(t *testing.T) {
	runTwoDevices(t, docstore.NewMemory())
}

func TestTwoDevicesConflictSQLite(t *testing.T) {
	db, err := serverdb.OpenDriver("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	runTwoDevices(t, db)
}

func runTwoDevices(t *testing.T, remote docstore.Store) {
	t.Helper()
	ctx := context.Background()
	t0 := time.Now().Add(-time.Minute).UTC().Truncate(time.Millisecond)
	seedRemote(t, remote, "acme", t0)

	a := newDevice(t, remote)
	b := newDevice(t, remote)
	require.NoError(t, a.Init(ctx, "acme"))
	require.NoError(t, b.Init(ctx, "acme"))
	require.Equal(t, t0, *a.Status().Baseline)
	require.Equal(t, t0, *b.Status().Baseline)

	a.Add(models.CategoryTasks, map[string]any{"title": "From A"})
	resA := a.Flush(ctx)
	require.Equal(t, dsync.PushOK, resA.Status, resA.Err)
	assert.True(t, resA.Stamp.After(t0))

	rec, err := remote.Get(ctx, "acme")
	require.NoError(t, err)
	meta := models.RemoteSyncMeta(rec.Doc)
	require.NotNil(t, meta.LastUpdatedBy)
	assert.Equal(t, a.ClientID(), *meta.LastUpdatedBy)
	assert.True(t, meta.LastUpdatedAt.After(t0))

	added := b.Add(models.CategoryTasks, map[string]any{"title": "From B"})
	resB := b.Flush(ctx)
	require.Equal(t, dsync.PushConflict, resB.Status)
	assert.ErrorIs(t, resB.Err, dsync.ErrConflict)

	tasks := b.Get().Categories[models.CategoryTasks]
	require.Len(t, tasks, 1)
	assert.Equal(t, added.ID(), tasks[0].ID())
	assert.True(t, b.Status().Dirty)

	rec, err = remote.Get(ctx, "acme")
	require.NoError(t, err)
	remoteDoc, err := models.MergeRemote(models.NewDocument(""), rec.Doc)
	require.NoError(t, err)
	require.Len(t, remoteDoc.Categories[models.CategoryTasks], 1)
	assert.Equal(t, "From A", remoteDoc.Categories[models.CategoryTasks][0]["title"])
}

func TestManagersAreIndependent(t *testing.T) {
	a := newDevice(t, nil)
	b := newDevice(t, nil)
	a.Add(models.CategoryContacts, map[string]any{"fullName": "Ada"})

	assert.Len(t, a.Get().Categories[models.CategoryContacts], 1)
	assert.Empty(t, b.Get().Categories[models.CategoryContacts])
	assert.NotEqual(t, a.ClientID(), b.ClientID())
}

func TestLocalOnlyManager(t *testing.T) {
	m := newDevice(t, nil)
	ctx := context.Background()

	require.NoError(t, m.Init(ctx, ""))
	require.ErrorIs(t, m.Init(ctx, "acme"), ErrNoRemote)

	var calls int
	unsubscribe := m.Subscribe(func(*models.Document, string) { calls++ })
	m.UpdateSettings(map[string]any{"companyName": "Acme"})
	unsubscribe()
	m.UpdateSettings(map[string]any{"companyName": "Other"})

	assert.Equal(t, 2, calls)
	assert.Equal(t, "Other", m.Get().Settings["companyName"])
	assert.False(t, m.Status().Hydrated)
	assert.Equal(t, dsync.PushSkipped, m.Flush(ctx).Status)
}

func TestActivityLimitOption(t *testing.T) {
	m := newDevice(t, nil, WithActivityLimit(3))
	for i := 0; i < 5; i++ {
		m.Add(models.CategoryDeals, map[string]any{"name": "d"})
	}
	assert.Len(t, m.Get().ActivityLog, 3)
}

func TestClockOption(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	remote := docstore.NewMemory()
	m := newDevice(t, remote, WithClock(func() time.Time { return now }))
	require.NoError(t, m.Init(context.Background(), "acme"))

	assert.Equal(t, now, *m.Status().Baseline)
	e := m.Add(models.CategoryDeals, map[string]any{"name": "d"})
	assert.Equal(t, models.FormatTime(now), e[models.FieldCreatedAt])
}
