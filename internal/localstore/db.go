// Package localstore is the device-local persistent key/value store that backs
// the offline cache and the operation queue. Values live in a single SQLite
// file, local.db, in the data dir.
//
// Every write holds an OS lock on local.lock next to it, so the tally CLI
// processes sharing a data dir (a command run while `tally monitor` is open,
// or two commands at once) never interleave their queue or cache writes. The
// lock file records the holder's pid for the busy error.
package localstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const dbFile = "local.db"

// DefaultQuota mirrors the few-megabyte budget browsers grant an origin.
const DefaultQuota int64 = 5 << 20

// ErrQuotaExceeded is returned by Set when the write would not fit.
var ErrQuotaExceeded = errors.New("local storage quota exceeded")

// Store wraps the key/value database connection
type Store struct {
	conn    *sql.DB
	baseDir string
	quota   int64
}

// Option configures a Store.
type Option func(*Store)

// WithQuota caps the total number of value bytes. Zero or negative disables the cap.
func WithQuota(n int64) Option {
	return func(s *Store) { s.quota = n }
}

// Open opens (creating if needed) the store under baseDir and runs pending migrations.
func Open(baseDir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	conn, err := sql.Open("sqlite", filepath.Join(baseDir, dbFile))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads while writes are serialized
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout as fallback protection (500ms, matches lock timeout)
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	conn.Exec("PRAGMA synchronous=NORMAL")

	return newStore(conn, baseDir, opts)
}

// OpenConn wraps an already opened connection. No file lock is taken, so it
// is meant for in-memory databases in tests and single-process embedding.
func OpenConn(conn *sql.DB, opts ...Option) (*Store, error) {
	conn.SetMaxOpenConns(1)
	return newStore(conn, "", opts)
}

func newStore(conn *sql.DB, baseDir string, opts []Option) (*Store, error) {
	s := &Store{conn: conn, baseDir: baseDir, quota: DefaultQuota}
	for _, o := range opts {
		o(s)
	}
	if _, err := s.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.conn.Close()
}

// BaseDir returns the directory holding the database, or "" for wrapped connections.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// withWriteLock runs fn holding the cross-process write lock. Wrapped
// connections from OpenConn have no data dir and skip it.
func (s *Store) withWriteLock(fn func() error) error {
	if s.baseDir == "" {
		return fn()
	}
	locker := newWriteLocker(s.baseDir)
	if err := locker.acquire(defaultTimeout); err != nil {
		return err
	}
	defer locker.release()
	return fn()
}

// Get returns the value stored under key. The bool is false when the key is absent.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
// Returns ErrQuotaExceeded when the store would grow past its quota.
func (s *Store) Set(key string, value []byte) error {
	return s.withWriteLock(func() error {
		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		if s.quota > 0 {
			var used int64
			err := tx.QueryRow(`SELECT COALESCE(SUM(LENGTH(value)), 0) FROM kv WHERE key != ?`, key).Scan(&used)
			if err != nil {
				return fmt.Errorf("measure usage: %w", err)
			}
			if used+int64(len(value)) > s.quota {
				return fmt.Errorf("set %s (%d bytes, %d used of %d): %w", key, len(value), used, s.quota, ErrQuotaExceeded)
			}
		}

		_, err = tx.Exec(`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)`,
			key, value, time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			if isFull(err) {
				return fmt.Errorf("set %s: %w", key, ErrQuotaExceeded)
			}
			return fmt.Errorf("set %s: %w", key, err)
		}
		if err := tx.Commit(); err != nil {
			if isFull(err) {
				return fmt.Errorf("commit %s: %w", key, ErrQuotaExceeded)
			}
			return fmt.Errorf("commit %s: %w", key, err)
		}
		return nil
	})
}

// Remove deletes key. Removing a missing key is not an error.
func (s *Store) Remove(key string) error {
	return s.withWriteLock(func() error {
		if _, err := s.conn.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
		return nil
	})
}

// Keys lists the keys starting with prefix, sorted.
func (s *Store) Keys(prefix string) ([]string, error) {
	rows, err := s.conn.Query(`SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Usage returns the total number of value bytes stored.
func (s *Store) Usage() (int64, error) {
	var used int64
	err := s.conn.QueryRow(`SELECT COALESCE(SUM(LENGTH(value)), 0) FROM kv`).Scan(&used)
	return used, err
}

// isFull matches SQLITE_FULL as reported by both drivers.
func isFull(err error) bool {
	return strings.Contains(err.Error(), "database or disk is full")
}
