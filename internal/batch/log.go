package batch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Record is one self-contained result line for one evaluated item, appended
// to the log the moment the item finishes so a crash never loses prior
// results.
type Record struct {
	Item       string             `json:"item"`
	Model      string             `json:"model"`
	Scores     map[string]float64 `json:"scores,omitempty"`
	Overall    float64            `json:"overall,omitempty"`
	PassRate   float64            `json:"pass_rate,omitempty"`
	Pass       bool               `json:"pass"`
	Code       string             `json:"code,omitempty"`
	Retries    int                `json:"retries"`
	InTokens   int64              `json:"in_tokens,omitempty"`
	OutTokens  int64              `json:"out_tokens,omitempty"`
	DurationMs int64              `json:"duration_ms"`
	Timestamp  time.Time          `json:"ts"`
}

// ResultLog appends line-delimited JSON records. Appends are serialized so
// concurrent workers never interleave within a line.
type ResultLog struct {
	mu sync.Mutex
	w  io.Writer
	f  *os.File // non-nil when we own a file and should sync/close it
}

// OpenResultLog opens (or creates) a result log file in append mode.
func OpenResultLog(path string) (*ResultLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening result log: %w", err)
	}
	return &ResultLog{w: f, f: f}, nil
}

// NewResultLog writes records to an arbitrary writer (stdout, test buffer).
func NewResultLog(w io.Writer) *ResultLog {
	return &ResultLog{w: w}
}

// Append writes one record and flushes it.
func (l *ResultLog) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending result log: %w", err)
	}
	if l.f != nil {
		if err := l.f.Sync(); err != nil {
			return fmt.Errorf("flushing result log: %w", err)
		}
	}
	return nil
}

// Close closes the underlying file when the log owns one.
func (l *ResultLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f != nil {
		return l.f.Close()
	}
	return nil
}
