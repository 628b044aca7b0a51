package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration, maxSize int64) *DiskCache {
	t.Helper()
	c, err := New(t.TempDir(), ttl, maxSize, nil)
	require.NoError(t, err)
	return c
}

func constLoader(data []byte, calls *atomic.Int64) Loader {
	return func(ctx context.Context) ([]byte, error) {
		if calls != nil {
			calls.Add(1)
		}
		return data, nil
	}
}

func TestMissThenHit(t *testing.T) {
	c := newTestCache(t, time.Hour, 0)
	var calls atomic.Int64

	got, err := c.GetOrFetch(context.Background(), "data/a.csv", constLoader([]byte("payload"), &calls))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
	assert.Equal(t, int64(1), calls.Load())

	got, err = c.GetOrFetch(context.Background(), "data/a.csv", constLoader([]byte("other"), &calls))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got, "hit must serve the cached artifact")
	assert.Equal(t, int64(1), calls.Load(), "hit must not invoke the loader")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats["hit_count"])
	assert.Equal(t, int64(1), stats["miss_count"])
	assert.Equal(t, 0.5, stats["hit_ratio"])
}

func TestLoaderErrorPropagates(t *testing.T) {
	c := newTestCache(t, time.Hour, 0)
	wantErr := fmt.Errorf("storage down")

	_, err := c.GetOrFetch(context.Background(), "k", func(ctx context.Context) ([]byte, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 0, c.Stats()["entries"])
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t, time.Minute, 0)
	now := time.Now()
	c.now = func() time.Time { return now }

	var calls atomic.Int64
	_, err := c.GetOrFetch(context.Background(), "k", constLoader([]byte("v1"), &calls))
	require.NoError(t, err)

	// Within the TTL the entry is fresh.
	now = now.Add(30 * time.Second)
	_, err = c.GetOrFetch(context.Background(), "k", constLoader([]byte("v2"), &calls))
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())

	// Past the TTL the loader runs again.
	now = now.Add(2 * time.Minute)
	got, err := c.GetOrFetch(context.Background(), "k", constLoader([]byte("v3"), &calls))
	require.NoError(t, err)
	assert.Equal(t, []byte("v3"), got)
	assert.Equal(t, int64(2), calls.Load())
}

func TestLRUEviction(t *testing.T) {
	// Budget fits two 4-byte artifacts, not three.
	c := newTestCache(t, time.Hour, 8)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.GetOrFetch(ctx, "a", constLoader([]byte("aaaa"), nil))
	require.NoError(t, err)
	now = now.Add(time.Second)
	_, err = c.GetOrFetch(ctx, "b", constLoader([]byte("bbbb"), nil))
	require.NoError(t, err)

	// Touch "a" so "b" becomes least recently used.
	now = now.Add(time.Second)
	_, err = c.GetOrFetch(ctx, "a", constLoader(nil, nil))
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = c.GetOrFetch(ctx, "c", constLoader([]byte("cccc"), nil))
	require.NoError(t, err)

	var bCalls atomic.Int64
	_, err = c.GetOrFetch(ctx, "b", constLoader([]byte("bbbb"), &bCalls))
	require.NoError(t, err)
	assert.Equal(t, int64(1), bCalls.Load(), "b should have been evicted")

	stats := c.Stats()
	assert.LessOrEqual(t, stats["total_size_bytes"].(int64), int64(8))
}

func TestCorruptedIndexStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, indexFileName), []byte("{not json"), 0644))

	c, err := New(dir, time.Hour, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Stats()["entries"])
}

func TestIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, time.Hour, 0, nil)
	require.NoError(t, err)
	_, err = c.GetOrFetch(context.Background(), "k", constLoader([]byte("v"), nil))
	require.NoError(t, err)

	reopened, err := New(dir, time.Hour, 0, nil)
	require.NoError(t, err)

	var calls atomic.Int64
	got, err := reopened.GetOrFetch(context.Background(), "k", constLoader([]byte("other"), &calls))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, int64(0), calls.Load())
}

func TestVanishedArtifactRefetches(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, time.Hour, 0, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.GetOrFetch(ctx, "k", constLoader([]byte("v1"), nil))
	require.NoError(t, err)

	// Delete the artifact behind the cache's back.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		if e.Name() != indexFileName {
			require.NoError(t, os.Remove(filepath.Join(dir, e.Name())))
		}
	}

	got, err := c.GetOrFetch(ctx, "k", constLoader([]byte("v2"), nil))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, time.Hour, 0, nil)
	require.NoError(t, err)

	_, err = c.GetOrFetch(context.Background(), "k", constLoader([]byte("v"), nil))
	require.NoError(t, err)
	require.NoError(t, c.Clear())

	assert.Equal(t, 0, c.Stats()["entries"])
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConcurrentAccess(t *testing.T) {
	c := newTestCache(t, time.Hour, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				key := fmt.Sprintf("key-%d", j%5)
				got, err := c.GetOrFetch(ctx, key, func(ctx context.Context) ([]byte, error) {
					return []byte(key), nil
				})
				assert.NoError(t, err)
				assert.Equal(t, []byte(key), got)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, c.Stats()["entries"])
}
