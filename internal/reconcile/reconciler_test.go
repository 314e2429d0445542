package reconcile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root string, parts ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{root}, parts...)...)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("pixels"), 0o644))
	return path
}

func TestReconcile_RemovesOrphanedDerived(t *testing.T) {
	out := t.TempDir()
	keep := touch(t, out, "s1", "normal", "s1_001_aug_1.webp")
	orphan1 := touch(t, out, "s1", "normal", "s1_002_aug_1.webp")
	orphan2 := touch(t, out, "s1", "normal", "s1_002_aug_2.webp")

	r := New(out, nil)
	result, err := r.Reconcile([]string{"s1_001.webp"})
	require.NoError(t, err)

	require.ElementsMatch(t, []string{orphan1, orphan2}, result.RemovedFiles)
	require.FileExists(t, keep)
	require.NoFileExists(t, orphan1)
	require.NoFileExists(t, orphan2)
}

func TestReconcile_NeverTouchesOriginals(t *testing.T) {
	out := t.TempDir()
	// An original copy whose source is gone: not suffix-marked, so it is
	// not an orphan candidate.
	original := touch(t, out, "s1", "normal", "s1_002.webp")

	r := New(out, nil)
	result, err := r.Reconcile([]string{"s1_001.webp"})
	require.NoError(t, err)

	require.Empty(t, result.RemovedFiles)
	require.FileExists(t, original)
}

func TestReconcile_PrunesEmptyDirs(t *testing.T) {
	out := t.TempDir()
	touch(t, out, "s1", "pf", "s1_009_pf_aug_1.webp")
	keep := touch(t, out, "s1", "normal", "s1_001.webp")

	r := New(out, nil)
	result, err := r.Reconcile([]string{"s1_001.webp"})
	require.NoError(t, err)

	require.Len(t, result.RemovedFiles, 1)
	require.NoDirExists(t, filepath.Join(out, "s1", "pf"))
	require.FileExists(t, keep)
	require.DirExists(t, out, "output root itself is never deleted")
}

func TestReconcile_RegistryLookupWins(t *testing.T) {
	out := t.TempDir()
	// Identity contains the marker token naturally; filename recovery
	// would mis-resolve this file's source, the registry row does not.
	tricky := touch(t, out, "s1", "normal", "s1_007_aug_1.webp")

	lookup := func(fullPath string) (string, bool) {
		if fullPath == tricky {
			return "s1_007.webp", true
		}
		return "", false
	}

	r := New(out, lookup)
	result, err := r.Reconcile([]string{"s1_007.webp"})
	require.NoError(t, err)
	require.Empty(t, result.RemovedFiles)
	require.FileExists(t, tricky)

	// Remove the source: now the registry-resolved stem is invalid and
	// the file goes.
	result, err = r.Reconcile([]string{"s1_008.webp"})
	require.NoError(t, err)
	require.Equal(t, []string{tricky}, result.RemovedFiles)
}

func TestReconcile_FallbackToFilenameRecovery(t *testing.T) {
	out := t.TempDir()
	unregistered := touch(t, out, "s1", "normal", "s1_003_aug_2.webp")

	lookup := func(string) (string, bool) { return "", false }

	r := New(out, lookup)
	result, err := r.Reconcile([]string{"s1_001.webp"})
	require.NoError(t, err)
	require.Equal(t, []string{unregistered}, result.RemovedFiles)
}

func TestReconcile_MissingOutputRoot(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "nope"), nil)
	result, err := r.Reconcile([]string{"s1_001.webp"})
	require.NoError(t, err)
	require.Empty(t, result.RemovedFiles)
}
