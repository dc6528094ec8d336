// Package serverdb stores principal documents in SQLite for the document store server.
package serverdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDriver is the database/sql driver name Open uses.
const DefaultDriver = "sqlite"

// memoryPath opens a private in-memory database.
const memoryPath = ":memory:"

var pragmas = []struct {
	stmt     string
	required bool
}{
	{"PRAGMA journal_mode=WAL", true},
	{"PRAGMA busy_timeout=5000", true},
	{"PRAGMA synchronous=NORMAL", false},
}

// ServerDB is a SQLite-backed document store.
type ServerDB struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// Open opens the document database at dbPath with the default driver,
// creating the file and schema when needed.
func Open(dbPath string) (*ServerDB, error) {
	return OpenDriver(DefaultDriver, dbPath)
}

// OpenDriver is Open with an explicit database/sql driver name.
func OpenDriver(driver, dbPath string) (*ServerDB, error) {
	if dbPath != memoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	conn, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serialises document transactions and keeps :memory: one database.
	conn.SetMaxOpenConns(1)

	db := &ServerDB{conn: conn, path: dbPath, now: time.Now}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *ServerDB) init() error {
	for _, p := range pragmas {
		if _, err := db.conn.Exec(p.stmt); err != nil {
			if p.required {
				return fmt.Errorf("%s: %w", p.stmt, err)
			}
			slog.Debug("serverdb: pragma ignored", "pragma", p.stmt, "err", err)
		}
	}
	if _, err := db.conn.Exec(serverSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Path returns the database path.
func (db *ServerDB) Path() string {
	return db.path
}

// Ping checks the database connection is alive.
func (db *ServerDB) Ping() error {
	return db.conn.Ping()
}

// Close checkpoints the WAL and closes the database connection.
func (db *ServerDB) Close() error {
	if db.path != memoryPath {
		if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			slog.Warn("serverdb: wal checkpoint", "err", err)
		}
	}
	return db.conn.Close()
}

// RunMigrations applies every migration newer than the recorded schema version and returns
// how many ran. Each migration commits together with its version bump.
// A fresh database has the full schema already and is stamped with the current version.
func (db *ServerDB) RunMigrations() (int, error) {
	current := db.getSchemaVersion()
	if current == 0 {
		// created just now by serverSchema, which includes version 1
		current = 1
		if err := db.setSchemaVersion(db.conn, current); err != nil {
			return 0, fmt.Errorf("record initial version: %w", err)
		}
	}

	ran := 0
	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}
		if err := db.applyMigration(m); err != nil {
			return ran, err
		}
		slog.Info("serverdb: migrated", "version", m.Version, "desc", m.Description)
		ran++
	}
	return ran, nil
}

func (db *ServerDB) applyMigration(m Migration) error {
	tx, err := db.conn.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("migration %d: begin: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := db.setSchemaVersion(tx, m.Version); err != nil {
		return fmt.Errorf("migration %d: set version: %w", m.Version, err)
	}
	return tx.Commit()
}

// SchemaVersion returns the recorded schema version.
func (db *ServerDB) SchemaVersion() int {
	return db.getSchemaVersion()
}

func (db *ServerDB) getSchemaVersion() int {
	var raw string
	if err := db.conn.QueryRow(`SELECT value FROM schema_info WHERE key = 'version'`).Scan(&raw); err != nil {
		return 0
	}
	v, _ := strconv.Atoi(raw)
	return v
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (db *ServerDB) setSchemaVersion(e execer, version int) error {
	_, err := e.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`, strconv.Itoa(version))
	return err
}
