// Package cache implements the path-keyed disk cache that sits between the
// data access layer and object storage. Entries expire after a TTL and the
// total artifact size is kept under a configurable budget by least-recently-
// used eviction. Artifacts are written atomically (temp file then rename) so
// concurrent readers never observe a partial file.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const indexFileName = "index.json"

// Defaults applied when the corresponding option is zero.
const (
	DefaultTTL     = 24 * time.Hour
	DefaultMaxSize = 10 << 30 // 10 GiB
)

// Entry is the metadata kept per cached artifact.
type Entry struct {
	Key        string    `json:"key"`
	File       string    `json:"file"`
	FetchedAt  time.Time `json:"fetched_at"`
	SizeBytes  int64     `json:"size_bytes"`
	LastAccess time.Time `json:"last_access"`
}

// Loader produces the artifact on a cache miss. It may block for an unbounded
// time and may fail; failures propagate to the caller unmodified.
type Loader func(ctx context.Context) ([]byte, error)

// DiskCache is safe for concurrent use. The metadata index is guarded by a
// single mutex; loader and artifact I/O happen outside it.
type DiskCache struct {
	dir     string
	ttl     time.Duration
	maxSize int64
	logger  *slog.Logger

	mu        sync.Mutex
	entries   map[string]*Entry
	hitCount  int64
	missCount int64

	now func() time.Time // test override
}

// New opens (or creates) a disk cache rooted at dir. A corrupted or missing
// index is treated as an empty cache, never a fatal error.
func New(dir string, ttl time.Duration, maxSize int64, logger *slog.Logger) (*DiskCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	c := &DiskCache{
		dir:     dir,
		ttl:     ttl,
		maxSize: maxSize,
		logger:  logger,
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	c.loadIndex()
	return c, nil
}

// GetOrFetch returns the artifact for key. A fresh entry is served from disk
// without invoking loader; otherwise loader runs, the result is persisted
// atomically and older entries are evicted until the size budget holds.
func (c *DiskCache) GetOrFetch(ctx context.Context, key string, loader Loader) ([]byte, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !c.expiredLocked(e) {
		e.LastAccess = c.now()
		c.hitCount++
		hits.Inc()
		file := filepath.Join(c.dir, e.File)
		c.saveIndexLocked()
		c.mu.Unlock()

		data, err := os.ReadFile(file)
		if err == nil {
			return data, nil
		}
		// Artifact vanished under us; fall through to a refetch.
		c.logger.WarnContext(ctx, "cache artifact missing, refetching",
			"key", key, "file", file, "error", err)
		c.mu.Lock()
		delete(c.entries, key)
	}
	c.missCount++
	misses.Inc()
	c.mu.Unlock()

	data, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.store(key, data); err != nil {
		return nil, err
	}
	return data, nil
}

// store persists the artifact and records its entry under the mutex.
func (c *DiskCache) store(key string, data []byte) error {
	file := artifactName(key)
	path := filepath.Join(c.dir, file)
	tmp, err := os.CreateTemp(c.dir, file+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish artifact: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.entries[key] = &Entry{
		Key:        key,
		File:       file,
		FetchedAt:  now,
		SizeBytes:  int64(len(data)),
		LastAccess: now,
	}
	c.evictLocked()
	c.saveIndexLocked()
	return nil
}

// Clear removes all artifacts and metadata synchronously.
func (c *DiskCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if err := os.Remove(filepath.Join(c.dir, e.File)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove artifact %s: %w", e.File, err)
		}
		delete(c.entries, key)
	}
	if err := os.Remove(filepath.Join(c.dir, indexFileName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove index: %w", err)
	}
	return nil
}

// Stats reports cache counters in the shape exposed by the stats endpoint.
func (c *DiskCache) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, e := range c.entries {
		total += e.SizeBytes
	}
	totalRequests := c.hitCount + c.missCount
	hitRatio := float64(0)
	if totalRequests > 0 {
		hitRatio = float64(c.hitCount) / float64(totalRequests)
	}
	return map[string]interface{}{
		"entries":          len(c.entries),
		"total_size_bytes": total,
		"max_size_bytes":   c.maxSize,
		"hit_count":        c.hitCount,
		"miss_count":       c.missCount,
		"hit_ratio":        hitRatio,
		"ttl_seconds":      c.ttl.Seconds(),
	}
}

func (c *DiskCache) expiredLocked(e *Entry) bool {
	return c.now().Sub(e.FetchedAt) > c.ttl
}

// evictLocked drops least-recently-used entries (ties broken by earliest
// FetchedAt) until the total size fits the budget.
func (c *DiskCache) evictLocked() {
	var total int64
	for _, e := range c.entries {
		total += e.SizeBytes
	}
	if total <= c.maxSize {
		return
	}
	ordered := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].LastAccess.Equal(ordered[j].LastAccess) {
			return ordered[i].LastAccess.Before(ordered[j].LastAccess)
		}
		return ordered[i].FetchedAt.Before(ordered[j].FetchedAt)
	})
	for _, e := range ordered {
		if total <= c.maxSize {
			break
		}
		if err := os.Remove(filepath.Join(c.dir, e.File)); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("failed to remove evicted artifact", "key", e.Key, "error", err)
		}
		delete(c.entries, e.Key)
		total -= e.SizeBytes
		evictions.Inc()
		c.logger.Debug("evicted cache entry", "key", e.Key, "size_bytes", e.SizeBytes)
	}
}

func (c *DiskCache) loadIndex() {
	path := filepath.Join(c.dir, indexFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("failed to read cache index, starting empty", "error", err)
		}
		return
	}
	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("corrupted cache index, starting empty", "error", err)
		return
	}
	for _, e := range entries {
		c.entries[e.Key] = e
	}
}

// saveIndexLocked writes the index atomically. Index write failures are
// logged rather than raised: the cache can always rebuild from empty.
func (c *DiskCache) saveIndexLocked() {
	entries := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		c.logger.Warn("failed to marshal cache index", "error", err)
		return
	}
	path := filepath.Join(c.dir, indexFileName)
	tmp, err := os.CreateTemp(c.dir, indexFileName+".tmp-*")
	if err != nil {
		c.logger.Warn("failed to write cache index", "error", err)
		return
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		c.logger.Warn("failed to write cache index", "error", err)
		return
	}
	tmp.Close()
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		c.logger.Warn("failed to publish cache index", "error", err)
	}
}

// artifactName derives a filesystem-safe name from the logical path.
func artifactName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + ".bin"
}
