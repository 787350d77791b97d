// Package batch discovers work items, drives probe-dispatch-evaluate
// pipelines over them with bounded concurrency and retries, and persists
// enough state (checkpoint + incremental result log) to survive
// interruption.
package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Item is one unit of batch work: a candidate document on disk. The id is
// the slash-separated path relative to the discovery root, stable across
// platforms so checkpoints written on one machine resume on another.
type Item struct {
	ID   string
	Path string
}

// Filter restricts discovery.
type Filter struct {
	// Include are glob patterns matched against the item id; empty means
	// "*.md".
	Include []string
	// Exclude are glob patterns matched against the item id; any match
	// drops the item.
	Exclude []string
	// Only restricts to these exact ids (e.g. a changed-files list);
	// empty means no restriction.
	Only []string
}

// Discover walks root and returns the matching items in sorted id order.
// An unreadable root is an error, not an empty batch.
func Discover(root string, f Filter) ([]Item, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("input path: %w", err)
	}
	if !info.IsDir() {
		return []Item{{ID: filepath.Base(root), Path: root}}, nil
	}

	include := f.Include
	if len(include) == 0 {
		include = []string{"*.md"}
	}
	only := make(map[string]bool, len(f.Only))
	for _, id := range f.Only {
		only[id] = true
	}

	var items []Item
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		id := filepath.ToSlash(rel)

		if !matchAny(include, id) {
			return nil
		}
		if matchAny(f.Exclude, id) {
			return nil
		}
		if len(only) > 0 && !only[id] {
			return nil
		}
		items = append(items, Item{ID: id, Path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering items: %w", err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// matchAny reports whether id matches any pattern, testing both the full id
// and its base name so "*.md" covers nested files.
func matchAny(patterns []string, id string) bool {
	base := id
	if idx := strings.LastIndexByte(id, '/'); idx >= 0 {
		base = id[idx+1:]
	}
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, id); ok {
			return true
		}
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}
