// Package store provides access record retention for the query endpoints.
//
// DESIGN: Records flow in from the record sink and are read back by the
// /logs/recent endpoint. Two backends:
//   - MemoryStore: fixed-capacity ring, oldest records overwritten
//   - SQLiteStore: durable single-file database (sqlite.go)
//
// Both prune records past the retention window from a background sweeper.
// For multi-instance deployments, implement Store with a shared database.
package store

import (
	"sync"
	"time"

	"github.com/tschaume/httptrail/internal/monitoring"
)

// DefaultRetention keeps records for a day unless configured otherwise.
const DefaultRetention = 24 * time.Hour

// Store defines the interface for access record retention.
type Store interface {
	// Append stores one completed exchange.
	Append(rec monitoring.AccessRecord) error

	// Recent returns up to limit records, newest first.
	Recent(limit int) ([]monitoring.AccessRecord, error)

	// Len reports the number of retained records.
	Len() (int, error)

	// Close cleans up resources.
	Close() error
}

// MemoryStore is a fixed-capacity in-memory ring of records.
type MemoryStore struct {
	mu        sync.RWMutex
	records   []monitoring.AccessRecord
	head      int // index of the oldest record
	size      int
	retention time.Duration
	stopChan  chan struct{}
	stopped   bool
}

// NewMemoryStore creates a ring holding at most capacity records. Records
// older than retention are swept in the background; retention <= 0 keeps
// the default window.
func NewMemoryStore(capacity int, retention time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = 1024
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	s := &MemoryStore{
		records:   make([]monitoring.AccessRecord, capacity),
		retention: retention,
		stopChan:  make(chan struct{}),
	}

	// Start cleanup goroutine
	go s.cleanup()

	return s
}

// Append stores one record, overwriting the oldest when full.
func (s *MemoryStore) Append(rec monitoring.AccessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}

	capacity := len(s.records)
	if s.size == capacity {
		s.records[s.head] = rec
		s.head = (s.head + 1) % capacity
		return nil
	}
	s.records[(s.head+s.size)%capacity] = rec
	s.size++
	return nil
}

// Recent returns up to limit records, newest first.
func (s *MemoryStore) Recent(limit int) ([]monitoring.AccessRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > s.size {
		limit = s.size
	}
	capacity := len(s.records)
	out := make([]monitoring.AccessRecord, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (s.head + s.size - 1 - i + capacity) % capacity
		out = append(out, s.records[idx])
	}
	return out, nil
}

// Len reports the number of retained records.
func (s *MemoryStore) Len() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size, nil
}

// Close stops the cleanup goroutine and clears data.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stopped {
		s.stopped = true
		close(s.stopChan)
		s.records = nil
		s.size = 0
	}
	return nil
}

// cleanup periodically drops records past the retention window.
func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.mu.Lock()
			if !s.stopped {
				cutoff := time.Now().Add(-s.retention)
				capacity := len(s.records)
				for s.size > 0 && s.records[s.head].Timestamp.Before(cutoff) {
					s.records[s.head] = monitoring.AccessRecord{}
					s.head = (s.head + 1) % capacity
					s.size--
				}
			}
			s.mu.Unlock()
		}
	}
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
