package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root string, parts ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{root}, parts...)...)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("pixels"), 0o644))
	return path
}

func TestDir_FlatLayout(t *testing.T) {
	root := t.TempDir()
	a := write(t, root, "s1_001.webp")
	b := write(t, root, "s1_002_pf.jpg")

	res, err := Dir(root)
	require.NoError(t, err)
	require.Len(t, res.Sources, 2)

	require.Equal(t, a, res.Sources[0].Path)
	require.Equal(t, "s1_001.webp", res.Sources[0].Name)
	require.Equal(t, "s1", res.Sources[0].ID.Set)
	require.Equal(t, "normal", res.Sources[0].ID.Variant)

	require.Equal(t, b, res.Sources[1].Path)
	require.Equal(t, "pf", res.Sources[1].ID.Variant)
}

func TestDir_OneLevelSubdirs(t *testing.T) {
	root := t.TempDir()
	write(t, root, "set1", "s1_001.webp")
	write(t, root, "set2", "s2_010_foil.png")
	// Deeper nesting is ignored.
	write(t, root, "set1", "deep", "s1_099.webp")

	res, err := Dir(root)
	require.NoError(t, err)
	require.Len(t, res.Sources, 2)
	require.Equal(t, "s1_001.webp", res.Sources[0].Name)
	require.Equal(t, "s2_010_foil.png", res.Sources[1].Name)
}

func TestDir_SkipsNonSources(t *testing.T) {
	root := t.TempDir()
	write(t, root, "notes.txt")
	write(t, root, "s1_001_aug_2.webp")
	write(t, root, "loose.webp")
	write(t, root, ".cardforge", "state.json")
	keep := write(t, root, "s1_001.webp")

	res, err := Dir(root)
	require.NoError(t, err)
	require.Len(t, res.Sources, 1)
	require.Equal(t, keep, res.Sources[0].Path)

	reasons := map[string]string{}
	for _, s := range res.Skipped {
		reasons[filepath.Base(s.Path)] = s.Reason
	}
	require.Equal(t, "unsupported extension", reasons["notes.txt"])
	require.Equal(t, "derived filename", reasons["s1_001_aug_2.webp"])
	require.Contains(t, reasons["loose.webp"], "identity")
	require.NotContains(t, reasons, "state.json")
}

func TestDir_MissingRoot(t *testing.T) {
	_, err := Dir(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestIsImage(t *testing.T) {
	require.True(t, IsImage("a.webp"))
	require.True(t, IsImage("a.JPG"))
	require.True(t, IsImage("a.jpeg"))
	require.True(t, IsImage("a.png"))
	require.False(t, IsImage("a.gif"))
	require.False(t, IsImage("a"))
}
