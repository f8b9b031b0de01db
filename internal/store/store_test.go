package store_test

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tschaume/httptrail/internal/monitoring"
	"github.com/tschaume/httptrail/internal/store"
)

func record(id string, status int) monitoring.AccessRecord {
	return monitoring.AccessRecord{
		RequestID:  id,
		Timestamp:  time.Now(),
		Method:     "GET",
		Path:       "/items",
		Proto:      "HTTP/1.1",
		StatusCode: status,
		BodyBytes:  64,
	}
}

// =============================================================================
// MEMORY STORE TESTS
// =============================================================================

func TestMemoryStore_AppendAndRecent(t *testing.T) {
	s := store.NewMemoryStore(8, time.Hour)
	defer s.Close()

	require.NoError(t, s.Append(record("req-1", 200)))
	require.NoError(t, s.Append(record("req-2", 404)))
	require.NoError(t, s.Append(record("req-3", 500)))

	recs, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "req-3", recs[0].RequestID)
	assert.Equal(t, "req-1", recs[2].RequestID)

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMemoryStore_RecentHonorsLimit(t *testing.T) {
	s := store.NewMemoryStore(8, time.Hour)
	defer s.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(record(fmt.Sprintf("req-%d", i), 200)))
	}

	recs, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "req-4", recs[0].RequestID)
	assert.Equal(t, "req-3", recs[1].RequestID)
}

func TestMemoryStore_OverflowDropsOldest(t *testing.T) {
	s := store.NewMemoryStore(3, time.Hour)
	defer s.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(record(fmt.Sprintf("req-%d", i), 200)))
	}

	recs, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "req-4", recs[0].RequestID)
	assert.Equal(t, "req-2", recs[2].RequestID)
}

func TestMemoryStore_AppendAfterClose(t *testing.T) {
	s := store.NewMemoryStore(4, time.Hour)
	require.NoError(t, s.Close())

	assert.NoError(t, s.Append(record("req-1", 200)))

	recs, err := s.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

// =============================================================================
// SQLITE STORE TESTS
// =============================================================================

func TestSQLiteStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.db")
	s, err := store.OpenSQLite(path, time.Hour)
	require.NoError(t, err)
	defer s.Close()

	rec := record("req-1", 200)
	rec.UserAgent = "curl/8.0"
	rec.ResponseHeaders = map[string]string{"content-type": "application/json"}
	require.NoError(t, s.Append(rec))
	require.NoError(t, s.Append(record("req-2", 503)))

	recs, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "req-2", recs[0].RequestID)
	assert.Equal(t, 503, recs[0].StatusCode)
	assert.Equal(t, "curl/8.0", recs[1].UserAgent)
	assert.Equal(t, "application/json", recs[1].ResponseHeaders["content-type"])

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteStore_ReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.db")

	s, err := store.OpenSQLite(path, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Append(record("req-1", 200)))
	require.NoError(t, s.Close())

	s, err = store.OpenSQLite(path, time.Hour)
	require.NoError(t, err)
	defer s.Close()

	recs, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "req-1", recs[0].RequestID)
}
