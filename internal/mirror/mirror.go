// Package mirror is the durable local key/value store holding every
// collection as a JSON document. It survives restarts and works with no
// remote connectivity.
package mirror

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const dbFile = "desk.db"

// Storage keys. Names match the browser-era layout so exported data stays
// recognizable.
const (
	KeyUsers        = "crm_users"
	KeyClients      = "crm_clients"
	KeyTasks        = "crm_tasks"
	KeyAccounts     = "crm_finance_accounts"
	KeyTransactions = "crm_finance_transactions"
	KeyMessages     = "crm_messages"
	KeySales        = "crm_sales"
	KeyServices     = "crm_services"
	KeyTimesheet    = "crm_timesheet"
	KeyAdvances     = "crm_advances"
	KeyTheme        = "crm_theme"

	KeyInventory          = "crm_inventory"
	KeyCMSObjects         = "crm_cms_objects"
	KeyMaintenanceObjects = "crm_maintenance_objects"
	KeyDocuments          = "crm_documents"
)

// UnmirroredKeys are local-only keys with no in-process owner; a system
// wipe removes them outright.
var UnmirroredKeys = []string{KeyInventory, KeyCMSObjects, KeyMaintenanceObjects, KeyDocuments}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Mirror wraps the sqlite connection
type Mirror struct {
	conn *sql.DB
	dir  string
}

// Open opens (creating if needed) the mirror under dir.
func Open(dir string) (*Mirror, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	conn, err := sql.Open("sqlite", filepath.Join(dir, dbFile))
	if err != nil {
		return nil, fmt.Errorf("open mirror: %w", err)
	}

	// WAL lets a watching process read while a one-shot command writes
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	m, err := New(conn, dir)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return m, nil
}

// New wraps an already-open connection. An empty dir disables the
// cross-process write lock.
func New(conn *sql.DB, dir string) (*Mirror, error) {
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Mirror{conn: conn, dir: dir}, nil
}

// Close closes the database
func (m *Mirror) Close() error {
	return m.conn.Close()
}

// Dir returns the data directory, empty for in-memory mirrors.
func (m *Mirror) Dir() string {
	return m.dir
}

func (m *Mirror) withWriteLock(fn func() error) error {
	if m.dir == "" {
		return fn()
	}
	locker := newWriteLocker(m.dir)
	if err := locker.acquire(defaultTimeout); err != nil {
		return err
	}
	defer locker.release()
	return fn()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Get returns the raw document stored at key.
func (m *Mirror) Get(key string) ([]byte, bool, error) {
	var value string
	err := m.conn.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return []byte(value), true, nil
}

// Load decodes the document at key, returning fallback when the key is
// absent. A corrupt document also yields fallback, with the decode error.
func Load[T any](m *Mirror, key string, fallback T) (T, error) {
	data, ok, err := m.Get(key)
	if err != nil || !ok {
		return fallback, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return fallback, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}

// Save replaces the document at key with the JSON encoding of value.
func (m *Mirror) Save(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return m.withWriteLock(func() error {
		_, err := m.conn.Exec(`
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, string(data), now())
		if err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
		return nil
	})
}

// SaveMany writes several documents in one transaction.
func (m *Mirror) SaveMany(docs map[string]any) error {
	encoded := make(map[string]string, len(docs))
	for k, v := range docs {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", k, err)
		}
		encoded[k] = string(data)
	}
	return m.withWriteLock(func() error {
		tx, err := m.conn.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		at := now()
		for k, v := range encoded {
			if _, err := tx.Exec(`
				INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				k, v, at); err != nil {
				return fmt.Errorf("write %s: %w", k, err)
			}
		}
		return tx.Commit()
	})
}

// Remove deletes keys; missing keys are ignored.
func (m *Mirror) Remove(keys ...string) error {
	return m.withWriteLock(func() error {
		for _, k := range keys {
			if _, err := m.conn.Exec("DELETE FROM kv WHERE key = ?", k); err != nil {
				return fmt.Errorf("remove %s: %w", k, err)
			}
		}
		return nil
	})
}

// Keys lists every stored key with its last write time.
func (m *Mirror) Keys() (map[string]time.Time, error) {
	rows, err := m.conn.Query("SELECT key, updated_at FROM kv ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]time.Time{}
	for rows.Next() {
		var k, at string
		if err := rows.Scan(&k, &at); err != nil {
			return nil, err
		}
		t, _ := time.Parse(time.RFC3339Nano, at)
		out[k] = t
	}
	return out, rows.Err()
}
