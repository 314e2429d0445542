// Package fingerprint computes content hashes of source files for change
// detection.
//
// The fingerprint is a pure function of the file's bytes: it ignores the
// path, mtime and identity, so renaming a file does not invalidate its
// derivations but editing its pixels does. Hashes are cached per run
// because the engine may ask for the same file's fingerprint several
// times (staleness check, state update, registry row).
package fingerprint

import (
	"context"
	"crypto/md5" //nolint:gosec // G501: change detection, not cryptography
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zjrosen/cardforge/internal/cachemanager"
)

// Fingerprinter hashes file contents with a per-run read-through cache.
type Fingerprinter struct {
	cache cachemanager.CacheManager[string, string]
}

// New returns a Fingerprinter with a fresh in-memory cache.
func New() *Fingerprinter {
	return &Fingerprinter{
		cache: cachemanager.NewInMemoryCacheManager[string, string](
			"fingerprint", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval),
	}
}

// Sum returns the hex MD5 digest of the file at path, computing it at
// most once per run. An unreadable file propagates the I/O error; callers
// treat that as "cannot verify freshness" and recompute derivations.
func (f *Fingerprinter) Sum(ctx context.Context, path string) (string, error) {
	if digest, ok := f.cache.Get(ctx, path); ok {
		return digest, nil
	}

	digest, err := SumFile(path)
	if err != nil {
		return "", err
	}

	f.cache.Set(ctx, path, digest, cachemanager.DefaultExpiration)
	return digest, nil
}

// Invalidate drops the cached digest for path, forcing the next Sum to
// re-read the file.
func (f *Fingerprinter) Invalidate(ctx context.Context, path string) {
	_ = f.cache.Delete(ctx, path)
}

// SumFile hashes a file's raw bytes without caching.
func SumFile(path string) (string, error) {
	file, err := os.Open(path) //nolint:gosec // G304: path comes from the scanned source tree
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	h := md5.New() //nolint:gosec
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
