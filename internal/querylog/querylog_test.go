package querylog

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openForTest(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(context.Background(), filepath.Join(t.TempDir(), "queries.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecorder_RecordAndTop(t *testing.T) {
	r := openForTest(t)
	ctx := context.Background()

	clock := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	require.NoError(t, r.Record(ctx, "Playa Delfines", "Puerto Juárez", 1))
	clock = clock.Add(time.Minute)
	require.NoError(t, r.Record(ctx, "  playa delfines", "PUERTO JUÁREZ ", 2))
	clock = clock.Add(time.Minute)
	require.NoError(t, r.Record(ctx, "Holbox", "Centro", 2))

	top, err := r.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)

	assert.Equal(t, "playa delfines", top[0].Origin)
	assert.Equal(t, "puerto juárez", top[0].Dest)
	assert.Equal(t, 2, top[0].Hits)
	assert.Equal(t, uint64(2), top[0].CatalogGeneration)
	assert.Equal(t, time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC), top[0].FirstSeen)
	assert.Equal(t, time.Date(2026, 10, 1, 12, 1, 0, 0, time.UTC), top[0].LastSeen)

	assert.Equal(t, "holbox", top[1].Origin)
	assert.Equal(t, 1, top[1].Hits)

	top, err = r.Top(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestRecorder_IgnoresEmptyQueries(t *testing.T) {
	r := openForTest(t)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, " ", "", 1))

	top, err := r.Top(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestRecorder_Prune(t *testing.T) {
	r := openForTest(t)
	ctx := context.Background()

	clock := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }
	require.NoError(t, r.Record(ctx, "old", "query", 1))

	clock = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.Record(ctx, "new", "query", 1))

	n, err := r.Prune(ctx, time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	top, err := r.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "new", top[0].Origin)
}

func TestRecorder_ConcurrentRecords(t *testing.T) {
	r := openForTest(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Record(ctx, "a", "b", 1))
		}()
	}
	wg.Wait()

	top, err := r.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, 20, top[0].Hits)
}
