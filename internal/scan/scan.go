// Package scan discovers labeled source images under the source root.
//
// Both layouts found in the wild are supported: a flat directory of
// scans, and one level of subdirectories (one per set or per scanning
// session). Deeper nesting is ignored.
package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zjrosen/cardforge/internal/identity"
	"github.com/zjrosen/cardforge/internal/log"
)

// imageExts are the accepted source container formats.
var imageExts = map[string]bool{
	".webp": true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Source is one discovered source image.
type Source struct {
	// Path is the absolute or root-relative path to the file.
	Path string

	// Name is the bare filename, the unit the state store and registry
	// key on.
	Name string

	// ID is the parsed card identity.
	ID identity.Identity
}

// Skipped records a file the scanner saw but could not use.
type Skipped struct {
	Path   string
	Reason string
}

// Result holds the outcome of one directory scan.
type Result struct {
	Sources []Source
	Skipped []Skipped
}

// IsImage reports whether a filename has a supported image extension.
func IsImage(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// Dir scans root for source images. Files whose names do not parse to an
// identity are recorded as skipped rather than failing the scan; only an
// unreadable root is an error. Results are sorted by path so runs are
// deterministic.
func Dir(root string) (*Result, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading source directory: %w", err)
	}

	res := &Result{}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if entry.IsDir() {
			if err := res.scanSubdir(filepath.Join(root, name)); err != nil {
				return nil, err
			}
			continue
		}
		res.consider(filepath.Join(root, name))
	}

	sort.Slice(res.Sources, func(i, j int) bool {
		return res.Sources[i].Path < res.Sources[j].Path
	})

	log.Debug(log.CatScan, "scan complete",
		"root", root,
		"sources", len(res.Sources),
		"skipped", len(res.Skipped))
	return res, nil
}

func (r *Result) scanSubdir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading source subdirectory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		r.consider(filepath.Join(dir, entry.Name()))
	}
	return nil
}

func (r *Result) consider(path string) {
	name := filepath.Base(path)
	if !IsImage(name) {
		r.Skipped = append(r.Skipped, Skipped{Path: path, Reason: "unsupported extension"})
		return
	}
	if identity.IsDerivedName(name) {
		// Derived files do not belong in the source tree; running the
		// pipeline over its own output would compound augmentations.
		r.Skipped = append(r.Skipped, Skipped{Path: path, Reason: "derived filename"})
		return
	}
	id, err := identity.Parse(name)
	if err != nil {
		log.Warn(log.CatScan, "unparseable filename", "path", path)
		r.Skipped = append(r.Skipped, Skipped{Path: path, Reason: err.Error()})
		return
	}
	r.Sources = append(r.Sources, Source{Path: path, Name: name, ID: id})
}
