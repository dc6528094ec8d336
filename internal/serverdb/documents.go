package serverdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marcus/dealbook/internal/docstore"
	"github.com/marcus/dealbook/internal/models"
)

// Precondition guards a write. The zero value writes unconditionally.
type Precondition struct {
	// IfMatch, when non-zero, requires the stored revision to equal it.
	IfMatch int64
	// IfAbsent requires that no document exists yet.
	IfAbsent bool
}

// GetDocument returns the stored record or docstore.ErrNotFound.
func (db *ServerDB) GetDocument(ctx context.Context, key string) (*docstore.Record, error) {
	return getDocument(ctx, db.conn, key)
}

// PutDocument writes doc under key if cond holds and returns the new record.
// A failed condition returns docstore.ErrPreconditionFailed.
func (db *ServerDB) PutDocument(ctx context.Context, key string, doc json.RawMessage, cond Precondition) (*docstore.Record, error) {
	if !docstore.ValidKey(key) {
		return nil, docstore.ErrInvalidKey
	}
	if !json.Valid(doc) {
		return nil, fmt.Errorf("put %s: invalid JSON document", key)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	current, err := getDocument(ctx, tx, key)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return nil, err
	}
	switch {
	case cond.IfAbsent && current != nil:
		return nil, docstore.ErrPreconditionFailed
	case cond.IfMatch != 0 && (current == nil || current.Revision != cond.IfMatch):
		return nil, docstore.ErrPreconditionFailed
	}

	rec, err := db.writeLocked(ctx, tx, key, doc, current)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// Get implements docstore.Store.
func (db *ServerDB) Get(ctx context.Context, key string) (*docstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !docstore.ValidKey(key) {
		return nil, docstore.ErrInvalidKey
	}
	return db.GetDocument(ctx, key)
}

// Set implements docstore.Store.
func (db *ServerDB) Set(ctx context.Context, key string, doc json.RawMessage) error {
	_, err := db.PutDocument(ctx, key, doc, Precondition{})
	return err
}

// Transaction implements docstore.Store. fn runs inside a SQL transaction holding the
// only connection, so it must not call back into db.
func (db *ServerDB) Transaction(ctx context.Context, key string, fn func(tx *docstore.Tx) error) error {
	if !docstore.ValidKey(key) {
		return docstore.ErrInvalidKey
	}
	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer sqlTx.Rollback()

	current, err := getDocument(ctx, sqlTx, key)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	tx := docstore.NewTx(current)
	if err := fn(tx); err != nil {
		return err
	}
	doc, ok := tx.Pending()
	if !ok {
		return nil
	}
	if !json.Valid(doc) {
		return fmt.Errorf("transaction %s: invalid JSON document", key)
	}
	if _, err := db.writeLocked(ctx, sqlTx, key, doc, current); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DocumentCount returns the number of stored documents.
func (db *ServerDB) DocumentCount(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDocument(ctx context.Context, q querier, key string) (*docstore.Record, error) {
	var doc, updatedAt string
	var rev int64
	err := q.QueryRowContext(ctx,
		`SELECT doc, revision, updated_at FROM documents WHERE key = ?`, key,
	).Scan(&doc, &rev, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("get document: parse updated_at: %w", err)
	}
	return &docstore.Record{Doc: json.RawMessage(doc), Revision: rev, UpdatedAt: ts}, nil
}

// writeLocked upserts the document and appends to write_log inside tx.
func (db *ServerDB) writeLocked(ctx context.Context, tx *sql.Tx, key string, doc json.RawMessage, current *docstore.Record) (*docstore.Record, error) {
	now := db.now().UTC()
	ts := now.Format(time.RFC3339Nano)

	var rev int64 = 1
	if current == nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (key, doc, revision, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			key, string(doc), rev, ts, ts,
		); err != nil {
			return nil, fmt.Errorf("insert document: %w", err)
		}
	} else {
		rev = current.Revision + 1
		res, err := tx.ExecContext(ctx,
			`UPDATE documents SET doc = ?, revision = ?, updated_at = ? WHERE key = ? AND revision = ?`,
			string(doc), rev, ts, key, current.Revision,
		)
		if err != nil {
			return nil, fmt.Errorf("update document: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, docstore.ErrPreconditionFailed
		}
	}

	writer := ""
	if by := models.RemoteSyncMeta(doc).LastUpdatedBy; by != nil {
		writer = *by
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO write_log (key, revision, writer, bytes, created_at) VALUES (?, ?, ?, ?, ?)`,
		key, rev, writer, len(doc), ts,
	); err != nil {
		return nil, fmt.Errorf("insert write log: %w", err)
	}

	return &docstore.Record{Doc: append(json.RawMessage(nil), doc...), Revision: rev, UpdatedAt: now}, nil
}

// DocumentInfo summarises one stored document without its body.
type DocumentInfo struct {
	Key       string    `json:"key"`
	Revision  int64     `json:"revision"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListDocuments returns every stored document, most recently updated first.
func (db *ServerDB) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT key, revision, LENGTH(doc), created_at, updated_at FROM documents ORDER BY updated_at DESC, key`,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentInfo
	for rows.Next() {
		var info DocumentInfo
		var created, updated string
		if err := rows.Scan(&info.Key, &info.Revision, &info.Bytes, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, info)
	}
	return out, rows.Err()
}
