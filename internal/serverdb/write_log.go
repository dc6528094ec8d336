package serverdb

import (
	"context"
	"fmt"
	"time"
)

// WriteEntry is one committed write of a document.
type WriteEntry struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Revision  int64     `json:"revision"`
	Writer    string    `json:"writer"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// RecentWrites returns up to limit writes of key, newest first.
func (db *ServerDB) RecentWrites(ctx context.Context, key string, limit int) ([]WriteEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, key, revision, writer, bytes, created_at FROM write_log WHERE key = ? ORDER BY id DESC LIMIT ?`,
		key, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query write log: %w", err)
	}
	defer rows.Close()

	var out []WriteEntry
	for rows.Next() {
		var e WriteEntry
		var created string
		if err := rows.Scan(&e.ID, &e.Key, &e.Revision, &e.Writer, &e.Bytes, &created); err != nil {
			return nil, fmt.Errorf("scan write log: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
