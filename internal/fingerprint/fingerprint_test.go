package fingerprint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSumFile_Deterministic(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "s1_001.webp", "card pixels")

	a, err := SumFile(path)
	require.NoError(t, err)
	b, err := SumFile(path)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 32, "md5 hex digest is 32 chars")
}

func TestSumFile_ContentOnly(t *testing.T) {
	dir := t.TempDir()
	pathA := writeFile(t, dir, "s1_001.webp", "same bytes")
	pathB := writeFile(t, dir, "s2_099_pf.webp", "same bytes")

	a, err := SumFile(pathA)
	require.NoError(t, err)
	b, err := SumFile(pathB)
	require.NoError(t, err)
	require.Equal(t, a, b, "fingerprint must not depend on the path")
}

func TestSumFile_Missing(t *testing.T) {
	_, err := SumFile(filepath.Join(t.TempDir(), "nope.webp"))
	require.Error(t, err)
}

func TestSum_CachesPerRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeFile(t, dir, "s1_001.webp", "v1")

	f := New()
	first, err := f.Sum(ctx, path)
	require.NoError(t, err)

	// Mutate the file; the cached digest is still served until
	// invalidated. A new run builds a new Fingerprinter, so this staleness
	// never crosses runs.
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	cached, err := f.Sum(ctx, path)
	require.NoError(t, err)
	require.Equal(t, first, cached)

	f.Invalidate(ctx, path)
	fresh, err := f.Sum(ctx, path)
	require.NoError(t, err)
	require.NotEqual(t, first, fresh)
}
