package probe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tafreeman/prompteval/internal/model"
)

// Outcome-dependent TTLs. A usable model stays trusted for an hour; a
// permanent error (bad credentials, nonexistent model) is not worth
// re-probing for a day; a transient error is retried after five minutes.
const (
	ttlUsable    = time.Hour
	ttlPermanent = 24 * time.Hour
	ttlTransient = 5 * time.Minute
)

// Entry is a cached probe result with its computed expiry.
type Entry struct {
	Result    Result    `json:"result"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Cache stores probe results keyed by model id, in memory and optionally on
// disk so results survive process restarts. It is safe for concurrent use;
// an entry past its expiry is never returned as authoritative.
type Cache struct {
	mu      sync.Mutex
	dir     string // empty disables the disk layer
	entries map[model.ID]Entry

	hits   int64
	misses int64
}

// NewCache creates a cache. dir is the directory for the disk layer; empty
// keeps the cache purely in-process.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir, entries: make(map[model.ID]Entry)}
}

// Lookup returns the cached result for id if present and not expired.
func (c *Cache) Lookup(id model.ID, now time.Time) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok && c.dir != "" {
		if loaded, err := c.readFile(id); err == nil {
			entry, ok = *loaded, true
			c.entries[id] = entry
		}
	}
	if !ok || now.After(entry.ExpiresAt) {
		c.misses++
		return nil, false
	}

	c.hits++
	r := entry.Result
	return &r, true
}

// Store saves a probe result, computing the expiry from its outcome class.
// A new result supersedes any previous entry for the same model.
func (c *Cache) Store(r Result) {
	entry := Entry{Result: r, ExpiresAt: r.CheckedAt.Add(ttlFor(r))}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[r.Model] = entry
	if c.dir != "" {
		// Disk write failures leave the in-memory layer intact.
		_ = c.writeFile(entry)
	}
}

// Invalidate removes the entry for id, forcing a real probe on next check.
func (c *Cache) Invalidate(id model.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	if c.dir != "" {
		_ = os.Remove(c.path(id))
	}
}

// Purge drops every entry, memory and disk, forcing fresh probes for all
// models on the next check.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.entries {
		if c.dir != "" {
			_ = os.Remove(c.path(id))
		}
	}
	c.entries = make(map[model.ID]Entry)
	if c.dir != "" {
		if files, err := filepath.Glob(filepath.Join(c.dir, "*.json")); err == nil {
			for _, f := range files {
				_ = os.Remove(f)
			}
		}
	}
}

// Stats reports cache performance counters.
type Stats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}

// ttlFor returns the TTL for a result's outcome class.
func ttlFor(r Result) time.Duration {
	switch {
	case r.Usable:
		return ttlUsable
	case r.Retryable:
		return ttlTransient
	default:
		return ttlPermanent
	}
}

func (c *Cache) path(id model.ID) string {
	return filepath.Join(c.dir, id.Key()+".json")
}

func (c *Cache) readFile(id model.ID) (*Entry, error) {
	data, err := os.ReadFile(c.path(id))
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parsing cache entry for %s: %w", id, err)
	}
	return &entry, nil
}

func (c *Cache) writeFile(entry Entry) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	// Write-then-rename so a crash never leaves a torn entry.
	tmp := c.path(entry.Result.Model) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path(entry.Result.Model))
}
