// Package store - sqlite.go provides the durable record backend.
//
// DESIGN: One table, append-only writes. The full record is stored as a
// JSON column so reads round-trip exactly; the indexed columns exist for
// ad-hoc querying with the sqlite3 CLI. Timestamps are RFC3339Nano so
// string comparison orders them.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tschaume/httptrail/internal/monitoring"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS access_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	ts TEXT NOT NULL,
	method TEXT NOT NULL,
	path TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	body_bytes INTEGER NOT NULL,
	total_latency_ms INTEGER NOT NULL,
	record TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_access_log_ts ON access_log(ts);
`

// SQLiteStore persists records to a single-file database.
type SQLiteStore struct {
	db        *sql.DB
	retention time.Duration
	mu        sync.Mutex
	stopChan  chan struct{}
	stopped   bool
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string, retention time.Duration) (*SQLiteStore, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// The driver is file-backed; concurrent writers contend on the file
	// lock, so serialize through one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}

	s := &SQLiteStore{
		db:        db,
		retention: retention,
		stopChan:  make(chan struct{}),
	}
	go s.cleanup()
	return s, nil
}

// Append stores one record.
func (s *SQLiteStore) Append(rec monitoring.AccessRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal access record: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO access_log (request_id, ts, method, path, status_code, body_bytes, total_latency_ms, record)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID,
		rec.Timestamp.Format(time.RFC3339Nano),
		rec.Method,
		rec.Path,
		rec.StatusCode,
		rec.BodyBytes,
		rec.TotalLatencyMs,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("insert access record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *SQLiteStore) Recent(limit int) ([]monitoring.AccessRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT record FROM access_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query access records: %w", err)
	}
	defer rows.Close()

	var out []monitoring.AccessRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan access record: %w", err)
		}
		var rec monitoring.AccessRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal access record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Len reports the number of retained records.
func (s *SQLiteStore) Len() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM access_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count access records: %w", err)
	}
	return n, nil
}

// Close stops the sweeper and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopChan)
	}
	s.mu.Unlock()
	return s.db.Close()
}

// cleanup periodically deletes records past the retention window.
func (s *SQLiteStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.retention).Format(time.RFC3339Nano)
			if _, err := s.db.Exec(`DELETE FROM access_log WHERE ts < ?`, cutoff); err != nil {
				return
			}
		}
	}
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
