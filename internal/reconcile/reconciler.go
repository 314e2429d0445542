// Package reconcile removes derived artifacts whose source file no
// longer exists (orphan GC).
//
// Only files carrying the `_aug_<n>` marker are candidates: original
// copies never participate in orphan detection, so a parsing edge case
// can cost at most regeneratable derived files, never data. A derived
// file's source is resolved through the registry when a row exists
// (explicit metadata) and recovered from the filename only as a
// fallback.
package reconcile

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/zjrosen/cardforge/internal/identity"
	"github.com/zjrosen/cardforge/internal/log"
)

// SourceLookup resolves an output path to its recorded original
// filename. ok is false when no metadata exists for the path.
type SourceLookup func(fullPath string) (originalFilename string, ok bool)

// Result reports what a reconcile pass removed.
type Result struct {
	RemovedFiles []string
	RemovedDirs  int
}

// Reconciler sweeps an output tree against the live source listing.
type Reconciler struct {
	outputRoot string
	lookup     SourceLookup
}

// New returns a Reconciler for outputRoot. lookup may be nil, in which
// case every derived file is matched by filename recovery alone.
func New(outputRoot string, lookup SourceLookup) *Reconciler {
	return &Reconciler{outputRoot: outputRoot, lookup: lookup}
}

// Reconcile deletes derived files whose source stem is absent from
// sourceNames (base filenames of the live source files), then prunes
// directories the deletions emptied.
func (r *Reconciler) Reconcile(sourceNames []string) (*Result, error) {
	valid := make(map[string]struct{}, len(sourceNames))
	for _, name := range sourceNames {
		valid[identity.Stem(name)] = struct{}{}
	}

	result := &Result{}

	err := filepath.WalkDir(r.outputRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == r.outputRoot {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !identity.IsDerivedName(d.Name()) {
			return nil
		}

		if _, ok := valid[r.sourceStem(path, d.Name())]; ok {
			return nil
		}

		if err := os.Remove(path); err != nil {
			log.ErrorErr(log.CatReconcile, "failed to remove orphan", err, "path", path)
			return nil
		}
		log.Info(log.CatReconcile, "orphan removed", "path", path)
		result.RemovedFiles = append(result.RemovedFiles, path)
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("walking output tree: %w", err)
	}

	removedDirs, err := pruneEmptyDirs(r.outputRoot)
	result.RemovedDirs = removedDirs
	if err != nil {
		return result, err
	}

	sort.Strings(result.RemovedFiles)
	return result, nil
}

// sourceStem resolves the stem of the source that produced a derived
// file: registry metadata first, filename recovery as fallback.
func (r *Reconciler) sourceStem(path, name string) string {
	if r.lookup != nil {
		if original, ok := r.lookup(path); ok {
			return identity.Stem(original)
		}
	}
	return identity.BaseStem(identity.Stem(name))
}

// pruneEmptyDirs removes directories left empty by the deletion pass,
// post-order so a parent emptied by its children's removal is itself
// removed. The root is never deleted.
func pruneEmptyDirs(root string) (int, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking for empty directories: %w", err)
	}

	// Deepest first.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	removed := 0
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err == nil {
			removed++
			log.Debug(log.CatReconcile, "empty directory removed", "path", dir)
		}
	}
	return removed, nil
}
