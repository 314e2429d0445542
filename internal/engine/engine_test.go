package engine

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/cardforge/internal/config"
	"github.com/zjrosen/cardforge/internal/registry"
	"github.com/zjrosen/cardforge/internal/state"
	"github.com/zjrosen/cardforge/internal/transform"
)

func writePNG(t *testing.T, path string, tint uint8) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: tint, G: uint8(x * 30), B: uint8(y * 30), A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

type fixture struct {
	cfg   config.Config
	store *state.Store
	repo  *registry.Repository
}

func setup(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	cfg := config.Defaults()
	cfg.SourceDir = filepath.Join(root, "cards")
	cfg.OutputDir = filepath.Join(root, "out")
	cfg.Augmentation.Count = 3
	cfg.Augmentation.Types = []string{transform.KindRotate, transform.KindBrightness, transform.KindContrast}
	cfg.Augmentation.Seed = 42
	cfg.Augmentation.Backend = transform.BackendBasic
	require.NoError(t, os.MkdirAll(cfg.SourceDir, 0o755))

	db, err := registry.NewDB(cfg.RegistryDBPath())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &fixture{
		cfg:   cfg,
		store: state.Load(cfg.StateFilePath()),
		repo:  registry.NewRepository(db),
	}
}

func (f *fixture) engine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(f.cfg, f.store, WithRepository(f.repo), WithRunID("test-run"))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestRun_EndToEnd(t *testing.T) {
	f := setup(t)
	writePNG(t, filepath.Join(f.cfg.SourceDir, "s1_001.png"), 10)
	writePNG(t, filepath.Join(f.cfg.SourceDir, "s1_002_pf.png"), 200)

	summary, err := f.engine(t).Run(context.Background(), ModeFull)
	require.NoError(t, err)

	require.Equal(t, 2, summary.Sources)
	require.Equal(t, 6, summary.Produced)
	require.Zero(t, summary.Skipped)
	require.Zero(t, summary.Failed)
	// 2 originals + 6 derived.
	require.Len(t, summary.Records, 8)

	require.FileExists(t, filepath.Join(f.cfg.OutputDir, "s1", "normal", "s1_001.png"))
	require.FileExists(t, filepath.Join(f.cfg.OutputDir, "s1", "normal", "s1_001_aug_1.png"))
	require.FileExists(t, filepath.Join(f.cfg.OutputDir, "s1", "normal", "s1_001_aug_3.png"))
	require.FileExists(t, filepath.Join(f.cfg.OutputDir, "s1", "pf", "s1_002_pf.png"))
	require.FileExists(t, filepath.Join(f.cfg.OutputDir, "s1", "pf", "s1_002_pf_aug_2.png"))

	// The original copy is bit-identical to its source.
	src, err := os.ReadFile(filepath.Join(f.cfg.SourceDir, "s1_001.png"))
	require.NoError(t, err)
	dst, err := os.ReadFile(filepath.Join(f.cfg.OutputDir, "s1", "normal", "s1_001.png"))
	require.NoError(t, err)
	require.Equal(t, src, dst)

	require.Equal(t, 2, f.store.Len())
	entry, ok := f.store.Entry(filepath.Join(f.cfg.SourceDir, "s1_001.png"))
	require.True(t, ok)
	require.Len(t, entry.Augmentations, 3)
	require.Contains(t, entry.Augmentations, state.AugKey(transform.KindRotate, 0))
	require.Contains(t, entry.Augmentations, state.AugKey(transform.KindBrightness, 1))
	require.Contains(t, entry.Augmentations, state.AugKey(transform.KindContrast, 2))

	rows, err := f.repo.All()
	require.NoError(t, err)
	require.Len(t, rows, 8)
	for _, row := range rows {
		require.Equal(t, "test-run", row.RunID)
		require.Equal(t, "s1", row.SetName)
	}

	// The state file landed on disk.
	require.FileExists(t, f.cfg.StateFilePath())
}

func TestRun_IncrementalIsIdempotent(t *testing.T) {
	f := setup(t)
	writePNG(t, filepath.Join(f.cfg.SourceDir, "s1_001.png"), 10)
	writePNG(t, filepath.Join(f.cfg.SourceDir, "s1_002.png"), 60)

	first, err := f.engine(t).Run(context.Background(), ModeIncremental)
	require.NoError(t, err)
	require.Equal(t, 6, first.Produced)

	second, err := f.engine(t).Run(context.Background(), ModeIncremental)
	require.NoError(t, err)
	require.Zero(t, second.Produced)
	require.Equal(t, 6, second.Skipped)

	// Merging the second run's rows changed nothing.
	rows, err := f.repo.All()
	require.NoError(t, err)
	require.Len(t, rows, 8)
}

func TestRun_IncrementalDetectsContentChange(t *testing.T) {
	f := setup(t)
	changed := filepath.Join(f.cfg.SourceDir, "s1_001.png")
	writePNG(t, changed, 10)
	writePNG(t, filepath.Join(f.cfg.SourceDir, "s1_002.png"), 60)

	_, err := f.engine(t).Run(context.Background(), ModeIncremental)
	require.NoError(t, err)

	// New pixels, same name: every slot of this source is stale.
	writePNG(t, changed, 250)

	summary, err := f.engine(t).Run(context.Background(), ModeIncremental)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Produced)
	require.Equal(t, 3, summary.Skipped)
}

func TestRun_IncrementalRefillsDeletedOutput(t *testing.T) {
	f := setup(t)
	writePNG(t, filepath.Join(f.cfg.SourceDir, "s1_001.png"), 10)

	_, err := f.engine(t).Run(context.Background(), ModeIncremental)
	require.NoError(t, err)

	gone := filepath.Join(f.cfg.OutputDir, "s1", "normal", "s1_001_aug_2.png")
	require.NoError(t, os.Remove(gone))

	summary, err := f.engine(t).Run(context.Background(), ModeIncremental)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Produced)
	require.Equal(t, 2, summary.Skipped)
	require.FileExists(t, gone)
}

func TestRun_FullAlwaysRebuilds(t *testing.T) {
	f := setup(t)
	writePNG(t, filepath.Join(f.cfg.SourceDir, "s1_001.png"), 10)

	_, err := f.engine(t).Run(context.Background(), ModeIncremental)
	require.NoError(t, err)

	summary, err := f.engine(t).Run(context.Background(), ModeFull)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Produced)
	require.Zero(t, summary.Skipped)
}

func TestRun_BadSourceDoesNotAbortRun(t *testing.T) {
	f := setup(t)
	writePNG(t, filepath.Join(f.cfg.SourceDir, "s1_001.png"), 10)
	require.NoError(t, os.WriteFile(
		filepath.Join(f.cfg.SourceDir, "s1_002.png"), []byte("not an image"), 0o644))

	summary, err := f.engine(t).Run(context.Background(), ModeFull)
	require.NoError(t, err)

	require.Equal(t, 3, summary.Produced)
	require.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	require.Contains(t, summary.Failures[0].Source, "s1_002.png")

	// The healthy source still has its artifacts and state entry.
	require.FileExists(t, filepath.Join(f.cfg.OutputDir, "s1", "normal", "s1_001_aug_1.png"))
	_, ok := f.store.Entry(filepath.Join(f.cfg.SourceDir, "s1_001.png"))
	require.True(t, ok)
}

func TestCleanup_RemovesDerivedOfDeletedSource(t *testing.T) {
	f := setup(t)
	removed := filepath.Join(f.cfg.SourceDir, "s1_001.png")
	writePNG(t, removed, 10)
	writePNG(t, filepath.Join(f.cfg.SourceDir, "s1_002.png"), 60)

	e := f.engine(t)
	_, err := e.Run(context.Background(), ModeFull)
	require.NoError(t, err)

	require.NoError(t, os.Remove(removed))

	result, err := e.Cleanup(context.Background())
	require.NoError(t, err)

	require.Len(t, result.RemovedFiles, 3)
	require.Equal(t, 1, result.DroppedState)
	require.True(t, result.DroppedRowsOK)

	// Derived files of the gone source are removed, its original copy and
	// the surviving source's artifacts stay.
	require.NoFileExists(t, filepath.Join(f.cfg.OutputDir, "s1", "normal", "s1_001_aug_1.png"))
	require.FileExists(t, filepath.Join(f.cfg.OutputDir, "s1", "normal", "s1_001.png"))
	require.FileExists(t, filepath.Join(f.cfg.OutputDir, "s1", "normal", "s1_002_aug_1.png"))

	require.Equal(t, 1, f.store.Len())

	for _, path := range result.RemovedFiles {
		_, ok, err := f.repo.SourceFor(path)
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestKindForSlot(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		catalog := rapid.SliceOfN(rapid.SampledFrom(transform.Kinds()), 1, 9).Draw(t, "catalog")
		slot := rapid.IntRange(0, 1000).Draw(t, "slot")

		kind := kindForSlot(catalog, slot)
		require.Contains(t, catalog, kind)
		// Deterministic and cyclic with the catalog's period.
		require.Equal(t, kind, kindForSlot(catalog, slot))
		require.Equal(t, kind, kindForSlot(catalog, slot+len(catalog)))
	})
}

func TestStats(t *testing.T) {
	f := setup(t)
	writePNG(t, filepath.Join(f.cfg.SourceDir, "s1_001.png"), 10)
	writePNG(t, filepath.Join(f.cfg.SourceDir, "s2_007_foil.png"), 90)

	e := f.engine(t)
	_, err := e.Run(context.Background(), ModeFull)
	require.NoError(t, err)

	stats, err := e.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 8, stats.Total)
	require.Equal(t, 2, stats.Originals)
	require.Equal(t, 6, stats.Derived)
	require.Equal(t, 2, stats.Cards)
	require.Equal(t, 4, stats.PerSet["s1"])
	require.Equal(t, 4, stats.PerSet["s2"])
	require.Equal(t, 2, stats.PerKind[transform.KindRotate])
}
