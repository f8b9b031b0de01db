// Package sink - storesink.go feeds the retention store.
package sink

import (
	"github.com/tschaume/httptrail/internal/store"
)

// StoreSink appends every exchange to the retention store backing the
// query endpoints.
type StoreSink struct {
	store store.Store
}

// NewStoreSink wraps an opened store.
func NewStoreSink(st store.Store) *StoreSink {
	return &StoreSink{store: st}
}

func (s *StoreSink) Name() string { return "store" }

// Write appends the record.
func (s *StoreSink) Write(ev *Event) error {
	return s.store.Append(*ev.Record)
}

// Close is a no-op; the store's owner closes it.
func (s *StoreSink) Close() error { return nil }

// Ensure StoreSink implements Sink
var _ Sink = (*StoreSink)(nil)
