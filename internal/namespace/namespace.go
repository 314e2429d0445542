// Package namespace computes the canonical on-disk layout of the
// augmented output tree.
//
// Every artifact, original or derived, lives at
// `<root>/<set>/<variant>/<filename>`. Derived filenames append
// `_aug_<slot+1>` to the source stem so the slot that produced a file can
// always be recovered, and so re-running the pipeline recomputes the same
// path for the same slot.
package namespace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zjrosen/cardforge/internal/identity"
)

// DefaultExt is the container extension used when a source filename
// carries none.
const DefaultExt = ".webp"

// Builder lays out output paths under a fixed root.
type Builder struct {
	root string
}

// NewBuilder returns a Builder rooted at dir.
func NewBuilder(dir string) *Builder {
	return &Builder{root: dir}
}

// Root returns the output root directory.
func (b *Builder) Root() string {
	return b.root
}

// OriginalPath returns the path of the unmodified copy of a source file.
func (b *Builder) OriginalPath(id identity.Identity, filename string) string {
	return filepath.Join(b.root, id.Set, id.Variant, filepath.Base(filename))
}

// DerivedPath returns the path of the derived artifact for one
// augmentation slot. The filename is a pure function of the identity, the
// source filename, and the slot index; slot numbering in filenames is
// 1-based to match the historical dataset layout.
func (b *Builder) DerivedPath(id identity.Identity, filename string, slot int) string {
	return filepath.Join(b.root, id.Set, id.Variant, DerivedName(filename, slot))
}

// DerivedName builds the `{stem}_aug_{slot+1}{ext}` filename for a slot.
func DerivedName(filename string, slot int) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	if ext == "" {
		ext = DefaultExt
	}
	stem := identity.Stem(base)
	return fmt.Sprintf("%s%saug%s%d%s", stem, identity.Separator, identity.Separator, slot+1, ext)
}

// EnsureDir creates the parent directory of path if it does not exist.
// Creating an existing directory is a no-op.
func EnsureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	return nil
}
