package serverdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marcus/dealbook/internal/docstore"
	"github.com/marcus/dealbook/internal/docstore/docstoretest"
)

func newTestDB(t *testing.T) *ServerDB {
	t.Helper()
	db, err := OpenDriver("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestConformance(t *testing.T) {
	docstoretest.Run(t, func(t *testing.T) docstore.Store {
		return newTestDB(t)
	})
}

func TestOpenFileDefaultDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "docs.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Set(context.Background(), "k", json.RawMessage(`{"a":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	rec, err := db.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if rec.Revision != 1 {
		t.Fatalf("revision: got %d, want 1", rec.Revision)
	}
}

func TestMigrationsRecorded(t *testing.T) {
	db := newTestDB(t)
	if v := db.SchemaVersion(); v != ServerSchemaVersion {
		t.Fatalf("schema version: got %d, want %d", v, ServerSchemaVersion)
	}
	n, err := db.RunMigrations()
	if err != nil {
		t.Fatalf("rerun migrations: %v", err)
	}
	if n != 0 {
		t.Fatalf("rerun applied %d migrations, want 0", n)
	}
}

func TestMigrateFromVersion1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.db")
	raw, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := raw.Exec(serverSchema); err != nil {
		t.Fatalf("v1 schema: %v", err)
	}
	if _, err := raw.Exec(`INSERT INTO schema_info (key, value) VALUES ('version', '1')`); err != nil {
		t.Fatal(err)
	}
	if _, err := raw.Exec(`INSERT INTO documents (key, doc, revision, created_at, updated_at)
		VALUES ('acme', '{}', 4, '2026-01-02T03:04:05Z', '2026-01-02T03:04:05Z')`); err != nil {
		t.Fatal(err)
	}
	raw.Close()

	db, err := OpenDriver("sqlite3", path)
	if err != nil {
		t.Fatalf("open v1 db: %v", err)
	}
	defer db.Close()

	if v := db.SchemaVersion(); v != ServerSchemaVersion {
		t.Fatalf("schema version after migrate: got %d, want %d", v, ServerSchemaVersion)
	}
	ctx := context.Background()
	if err := db.Transaction(ctx, "acme", func(tx *docstore.Tx) error {
		tx.Set(json.RawMessage(`{"n":1}`))
		return nil
	}); err != nil {
		t.Fatalf("write after migrate: %v", err)
	}
	writes, err := db.RecentWrites(ctx, "acme", 10)
	if err != nil {
		t.Fatalf("recent writes: %v", err)
	}
	if len(writes) != 1 || writes[0].Revision != 5 {
		t.Fatalf("writes = %+v, want one at revision 5", writes)
	}
}

func TestPutDocumentPreconditions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec, err := db.PutDocument(ctx, "alice", json.RawMessage(`{"v":1}`), Precondition{IfAbsent: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Revision != 1 {
		t.Fatalf("revision: got %d, want 1", rec.Revision)
	}

	_, err = db.PutDocument(ctx, "alice", json.RawMessage(`{"v":2}`), Precondition{IfAbsent: true})
	if !errors.Is(err, docstore.ErrPreconditionFailed) {
		t.Fatalf("second create: got %v, want ErrPreconditionFailed", err)
	}

	_, err = db.PutDocument(ctx, "alice", json.RawMessage(`{"v":2}`), Precondition{IfMatch: 7})
	if !errors.Is(err, docstore.ErrPreconditionFailed) {
		t.Fatalf("stale if-match: got %v, want ErrPreconditionFailed", err)
	}

	rec, err = db.PutDocument(ctx, "alice", json.RawMessage(`{"v":2}`), Precondition{IfMatch: 1})
	if err != nil {
		t.Fatalf("matching if-match: %v", err)
	}
	if rec.Revision != 2 {
		t.Fatalf("revision: got %d, want 2", rec.Revision)
	}

	_, err = db.PutDocument(ctx, "bob", json.RawMessage(`{}`), Precondition{IfMatch: 1})
	if !errors.Is(err, docstore.ErrPreconditionFailed) {
		t.Fatalf("if-match on absent: got %v, want ErrPreconditionFailed", err)
	}
}

func TestPutDocumentRejectsInvalidJSON(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.PutDocument(context.Background(), "k", json.RawMessage(`{`), Precondition{}); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestRecentWrites(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	docs := []string{
		`{"syncMeta":{"lastUpdatedBy":"dev-a"}}`,
		`{"syncMeta":{"lastUpdatedBy":"dev-b"}}`,
		`{"other":true}`,
	}
	for _, d := range docs {
		if err := db.Set(ctx, "alice", json.RawMessage(d)); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	db.Set(ctx, "bob", json.RawMessage(`{}`))

	writes, err := db.RecentWrites(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("recent writes: %v", err)
	}
	if len(writes) != 3 {
		t.Fatalf("writes: got %d, want 3", len(writes))
	}
	if writes[0].Revision != 3 || writes[0].Writer != "" {
		t.Fatalf("newest write = %+v", writes[0])
	}
	if writes[1].Writer != "dev-b" || writes[2].Writer != "dev-a" {
		t.Fatalf("writers = %q, %q", writes[1].Writer, writes[2].Writer)
	}

	n, err := db.DocumentCount(ctx)
	if err != nil || n != 2 {
		t.Fatalf("document count: got %d err=%v, want 2", n, err)
	}
}

func TestListDocuments(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	db.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	db.Set(ctx, "alice", json.RawMessage(`{"a":1}`))
	db.Set(ctx, "bob", json.RawMessage(`{}`))
	db.Set(ctx, "alice", json.RawMessage(`{"a":2}`))

	docs, err := db.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("docs: got %d, want 2", len(docs))
	}
	if docs[0].Key != "alice" || docs[0].Revision != 2 || docs[0].Bytes != len(`{"a":2}`) {
		t.Fatalf("first doc = %+v", docs[0])
	}
	if !docs[0].CreatedAt.Equal(base.Add(time.Second)) || !docs[0].UpdatedAt.Equal(base.Add(3*time.Second)) {
		t.Fatalf("alice timestamps = %v / %v", docs[0].CreatedAt, docs[0].UpdatedAt)
	}
	if docs[1].Key != "bob" {
		t.Fatalf("second doc = %+v", docs[1])
	}
}
