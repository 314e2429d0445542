// Package state persists the per-source derivation index between runs.
//
// The index maps each source path to its last-seen content hash and the
// set of augmentation slots already materialized for that hash. It is
// what makes incremental runs O(1) per (source, slot) pair: a slot is
// fresh iff the stored hash matches the file's current fingerprint and
// the slot's key is present.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/zjrosen/cardforge/internal/log"
)

// Completed records one materialized augmentation slot.
type Completed struct {
	OutputPath string    `json:"output_path"`
	CreatedAt  time.Time `json:"created_at"`
}

// Entry is the persisted record for one source file.
type Entry struct {
	Hash          string               `json:"hash"`
	Augmentations map[string]Completed `json:"augmentations"`
}

// Snapshot captures the run configuration alongside the index, so a
// later reader can tell which settings produced the tree.
type Snapshot struct {
	NumAugmentations  int      `json:"num_augmentations"`
	ImageQuality      int      `json:"image_quality"`
	AugmentationTypes []string `json:"augmentation_types"`
	Seed              int64    `json:"seed"`
}

type fileLayout struct {
	ProcessedFiles map[string]Entry `json:"processed_files"`
	LastUpdate     time.Time        `json:"last_update"`
	Config         Snapshot         `json:"config"`
}

// Store holds the in-memory index with explicit load/save lifecycle.
// One engine process owns the file per invocation; the mutex only guards
// readers on other goroutines (the watcher), not concurrent writers.
type Store struct {
	path string

	mu        sync.Mutex
	processed map[string]Entry
	snapshot  Snapshot
}

// AugKey builds the `<kind>_<index>` key identifying one derivation slot.
func AugKey(kind string, index int) string {
	return kind + "_" + strconv.Itoa(index)
}

// Load reads the state file at path. A missing or corrupt file degrades
// to an empty index: the next run simply recomputes everything.
func Load(path string) *Store {
	s := &Store{
		path:      path,
		processed: make(map[string]Entry),
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: configured state file path
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn(log.CatState, "state file unreadable, treating as empty", "path", path, "error", err)
		}
		return s
	}

	var layout fileLayout
	if err := json.Unmarshal(data, &layout); err != nil {
		log.Warn(log.CatState, "state file corrupt, treating as empty", "path", path, "error", err)
		return s
	}

	if layout.ProcessedFiles != nil {
		s.processed = layout.ProcessedFiles
	}
	s.snapshot = layout.Config
	log.Info(log.CatState, "state loaded", "path", path, "sources", len(s.processed))
	return s
}

// IsFresh reports whether the slot identified by key is already
// materialized for the given content hash. A hash mismatch means the
// source changed, which invalidates every slot of that source.
func (s *Store) IsFresh(sourcePath, hash, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.processed[sourcePath]
	if !ok || entry.Hash != hash {
		return false
	}
	_, done := entry.Augmentations[key]
	return done
}

// Mark records a completed slot. If the stored hash differs from hash,
// the entry's previous slots are discarded first: they belong to stale
// content.
func (s *Store) Mark(sourcePath, hash, key, outputPath string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.processed[sourcePath]
	if !ok || entry.Hash != hash {
		entry = Entry{Hash: hash, Augmentations: make(map[string]Completed)}
	}
	entry.Augmentations[key] = Completed{OutputPath: outputPath, CreatedAt: at}
	s.processed[sourcePath] = entry
}

// Entry returns a copy of the record for sourcePath.
func (s *Store) Entry(sourcePath string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.processed[sourcePath]
	if !ok {
		return Entry{}, false
	}
	cp := Entry{Hash: entry.Hash, Augmentations: make(map[string]Completed, len(entry.Augmentations))}
	for k, v := range entry.Augmentations {
		cp.Augmentations[k] = v
	}
	return cp, true
}

// Sources returns the indexed source paths in unspecified order.
func (s *Store) Sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make([]string, 0, len(s.processed))
	for p := range s.processed {
		paths = append(paths, p)
	}
	return paths
}

// Remove drops the record for a source that no longer exists.
func (s *Store) Remove(sourcePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processed, sourcePath)
}

// Len returns the number of indexed sources.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

// SetConfig records the run configuration persisted with the index.
func (s *Store) SetConfig(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
}

// Config returns the persisted run configuration.
func (s *Store) Config() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Save writes the index atomically: marshal to a temp file in the same
// directory, then rename over the target. An interrupt mid-save leaves
// either the previous file or the new one, never a partial write.
func (s *Store) Save() error {
	s.mu.Lock()
	layout := fileLayout{
		ProcessedFiles: s.processed,
		LastUpdate:     time.Now().UTC(),
		Config:         s.snapshot,
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(layout, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}

	log.Info(log.CatState, "state saved", "path", s.path, "sources", len(layout.ProcessedFiles))
	return nil
}
