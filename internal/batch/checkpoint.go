package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// checkpointRecord is one line of the checkpoint file. The first line of a
// fresh file carries StartedAt; every later line carries a completed item id.
type checkpointRecord struct {
	StartedAt *time.Time `json:"started_at,omitempty"`
	ID        string     `json:"id,omitempty"`
}

// Checkpoint is the append-only log of completed item ids. It is the sole
// durable recovery record of a batch run: a crash loses at most the one
// item that was in flight. Appends are serialized and fsynced so a torn
// write never corrupts prior records.
type Checkpoint struct {
	mu        sync.Mutex
	f         *os.File
	done      map[string]bool
	startedAt time.Time
}

// OpenCheckpoint opens (or creates) the checkpoint at path and reads it
// fully, so Done answers for every previously completed item.
func OpenCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint: %w", err)
	}

	c := &Checkpoint{f: f, done: make(map[string]bool)}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec checkpointRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// A torn trailing line from a crash mid-append: the item it
			// would have named is simply reprocessed.
			continue
		}
		if rec.StartedAt != nil {
			c.startedAt = *rec.StartedAt
		}
		if rec.ID != "" {
			c.done[rec.ID] = true
		}
	}
	if err := scanner.Err(); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	// Terminate a torn trailing line so the next append starts clean.
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		buf := make([]byte, 1)
		if _, err := f.ReadAt(buf, info.Size()-1); err == nil && buf[0] != '\n' {
			if _, err := f.Write([]byte("\n")); err != nil {
				f.Close()
				return nil, fmt.Errorf("repairing checkpoint: %w", err)
			}
		}
	}

	if c.startedAt.IsZero() {
		c.startedAt = time.Now().UTC()
		if err := c.appendRecord(checkpointRecord{StartedAt: &c.startedAt}); err != nil {
			f.Close()
			return nil, err
		}
	}

	return c, nil
}

// Done reports whether id completed in this or a previous run.
func (c *Checkpoint) Done(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done[id]
}

// StartedAt returns when the batch (first run, not the resume) started.
func (c *Checkpoint) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// Append marks id complete and flushes it to durable storage before
// returning. Safe for concurrent workers.
func (c *Checkpoint) Append(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done[id] {
		return nil
	}
	if err := c.appendRecord(checkpointRecord{ID: id}); err != nil {
		return err
	}
	c.done[id] = true
	return nil
}

// appendRecord writes one line and fsyncs. Callers hold the lock (or are
// still constructing the checkpoint).
func (c *Checkpoint) appendRecord(rec checkpointRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := c.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending checkpoint: %w", err)
	}
	if err := c.f.Sync(); err != nil {
		return fmt.Errorf("flushing checkpoint: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (c *Checkpoint) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.f.Close()
}
