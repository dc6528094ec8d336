package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocumentDefaults(t *testing.T) {
	doc := NewDocument("dev-1")
	for _, c := range DefaultCategories() {
		list, ok := doc.Categories[c]
		require.True(t, ok, c)
		assert.Empty(t, list)
	}
	assert.Equal(t, "USD", doc.Settings["currency"])
	assert.Equal(t, "dev-1", doc.SyncMeta.ClientID)
	assert.Nil(t, doc.SyncMeta.LastUpdatedAt)
	assert.Nil(t, doc.SyncMeta.LastUpdatedBy)
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		entity Entity
		want   string
	}{
		{Entity{"id": "x", "name": "Deal"}, "Deal"},
		{Entity{"id": "x", "name": "  ", "title": "Task"}, "Task"},
		{Entity{"id": "x", "fullName": "Ada Lovelace"}, "Ada Lovelace"},
		{Entity{"id": "x", "label": "L"}, "L"},
		{Entity{"id": "x", "address": "1 Main St"}, "1 Main St"},
		{Entity{"id": "x", "name": 42}, "x"},
		{Entity{}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.entity.DisplayName())
	}
}

func TestSingular(t *testing.T) {
	assert.Equal(t, "deal", Singular(CategoryDeals))
	assert.Equal(t, "property", Singular(CategoryProperties))
	assert.Equal(t, "entity", Singular(CategoryEntities))
	assert.Equal(t, "staff", Singular("staff"))
	assert.Equal(t, "s", Singular("s"))
}

func TestCloneIsDeep(t *testing.T) {
	at := time.Now()
	by := "dev"
	doc := NewDocument("dev")
	doc.Categories[CategoryDeals] = []Entity{{"id": "d1", "tags": []any{"a"}, "meta": map[string]any{"k": "v"}}}
	doc.SyncMeta.LastUpdatedAt = &at
	doc.SyncMeta.LastUpdatedBy = &by
	doc.Extra = map[string]json.RawMessage{"x": json.RawMessage(`1`)}

	cp := doc.Clone()
	cp.Categories[CategoryDeals][0]["tags"].([]any)[0] = "changed"
	cp.Categories[CategoryDeals][0]["meta"].(map[string]any)["k"] = "changed"
	*cp.SyncMeta.LastUpdatedBy = "other"
	cp.Extra["x"][0] = '2'
	cp.Settings["theme"] = "dark"

	assert.Equal(t, "a", doc.Categories[CategoryDeals][0]["tags"].([]any)[0])
	assert.Equal(t, "v", doc.Categories[CategoryDeals][0]["meta"].(map[string]any)["k"])
	assert.Equal(t, "dev", *doc.SyncMeta.LastUpdatedBy)
	assert.Equal(t, `1`, string(doc.Extra["x"]))
	assert.Equal(t, "light", doc.Settings["theme"])
}

func TestMarshalKeepsExtraKeys(t *testing.T) {
	doc := NewDocument("dev")
	doc.Extra = map[string]json.RawMessage{"flags": json.RawMessage(`{"beta":true}`)}

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &top))
	assert.JSONEq(t, `{"beta":true}`, string(top["flags"]))
	assert.Contains(t, top, "categories")
	assert.Contains(t, top, "syncMeta")
}

func TestMergeRemoteRoundTrip(t *testing.T) {
	at := time.Date(2024, 2, 3, 4, 5, 6, 7_000_000, time.UTC)
	by := "dev-2"
	src := NewDocument("dev-2")
	src.Categories[CategoryDeals] = []Entity{{"id": "d1", "name": "Main"}}
	src.ActivityLog = []ActivityEntry{{ID: "a1", Text: "Added deal", At: at, Type: ActivityAdd}}
	src.SyncMeta.LastUpdatedAt = &at
	src.SyncMeta.LastUpdatedBy = &by
	data, err := json.Marshal(src)
	require.NoError(t, err)

	got, err := MergeRemote(NewDocument("dev-1"), data)
	require.NoError(t, err)
	assert.Equal(t, "Main", got.Categories[CategoryDeals][0]["name"])
	require.Len(t, got.ActivityLog, 1)
	assert.True(t, at.Equal(got.ActivityLog[0].At))
	require.NotNil(t, got.SyncMeta.LastUpdatedAt)
	assert.True(t, at.Equal(*got.SyncMeta.LastUpdatedAt))
	assert.Equal(t, "dev-2", *got.SyncMeta.LastUpdatedBy)
}

func TestMergeRemoteSettingsShallowMerge(t *testing.T) {
	got, err := MergeRemote(NewDocument(""), []byte(`{"settings":{"theme":"dark","extra":1}}`))
	require.NoError(t, err)
	assert.Equal(t, "dark", got.Settings["theme"])
	assert.Equal(t, "USD", got.Settings["currency"])
	assert.EqualValues(t, 1, got.Settings["extra"])
}

func TestMergeRemoteMalformedShapes(t *testing.T) {
	raw := `{
		"categories": {"deals": {"id": "x"}, "tasks": [null, "s", {"id": "t1"}], "new": []},
		"activityLog": [{"id": "a", "at": 1700000000000}, 3, {"id": "b", "at": "garbage"}],
		"settings": "nope",
		"syncMeta": {"lastUpdatedAt": 12, "lastUpdatedBy": 7}
	}`
	got, err := MergeRemote(NewDocument(""), []byte(raw))
	require.NoError(t, err)

	assert.Empty(t, got.Categories[CategoryDeals])
	require.Len(t, got.Categories[CategoryTasks], 1)
	assert.Equal(t, "t1", got.Categories[CategoryTasks][0].ID())
	assert.Contains(t, got.Categories, "new")
	assert.Contains(t, got.Categories, CategoryUploads)

	require.Len(t, got.ActivityLog, 2)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), got.ActivityLog[0].At)
	assert.True(t, got.ActivityLog[1].At.IsZero())

	assert.Equal(t, "light", got.Settings["theme"])
	require.NotNil(t, got.SyncMeta.LastUpdatedAt)
	assert.Equal(t, time.UnixMilli(12).UTC(), *got.SyncMeta.LastUpdatedAt)
	assert.Nil(t, got.SyncMeta.LastUpdatedBy)
}

func TestMergeRemoteRejectsNonObject(t *testing.T) {
	for _, raw := range []string{`[]`, `"x"`, `null`, `not json`} {
		_, err := MergeRemote(NewDocument(""), []byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestMergeRemoteDoesNotTouchBase(t *testing.T) {
	base := NewDocument("")
	_, err := MergeRemote(base, []byte(`{"settings":{"theme":"dark"}}`))
	require.NoError(t, err)
	assert.Equal(t, "light", base.Settings["theme"])
}

func TestRemoteSyncMeta(t *testing.T) {
	meta := RemoteSyncMeta([]byte(`{"syncMeta":{"clientId":"c","lastUpdatedAt":"2024-01-01T00:00:00.000Z","lastUpdatedBy":"c"}}`))
	assert.Equal(t, "c", meta.ClientID)
	require.NotNil(t, meta.LastUpdatedAt)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *meta.LastUpdatedAt)

	assert.Equal(t, SyncMeta{}, RemoteSyncMeta([]byte(`{}`)))
	assert.Equal(t, SyncMeta{}, RemoteSyncMeta([]byte(`oops`)))
}

func TestCategoryNames(t *testing.T) {
	doc := NewDocument("dev")
	doc.Categories["vendors"] = []Entity{}
	doc.Categories["brokers"] = []Entity{}
	delete(doc.Categories, CategoryUploads)

	names := doc.CategoryNames()
	want := append(DefaultCategories()[:7], "brokers", "vendors")
	require.Equal(t, want, names)
}
