// Package engine drives derivation runs: it scans sources, decides per
// slot whether work is needed, applies transforms and keeps the state
// index and artifact registry in step with the output tree.
package engine

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/cardforge/internal/config"
	"github.com/zjrosen/cardforge/internal/fingerprint"
	"github.com/zjrosen/cardforge/internal/log"
	"github.com/zjrosen/cardforge/internal/namespace"
	"github.com/zjrosen/cardforge/internal/pubsub"
	"github.com/zjrosen/cardforge/internal/reconcile"
	"github.com/zjrosen/cardforge/internal/registry"
	"github.com/zjrosen/cardforge/internal/scan"
	"github.com/zjrosen/cardforge/internal/state"
	"github.com/zjrosen/cardforge/internal/transform"
)

// Mode selects how much work a run does.
type Mode string

const (
	// ModeFull rebuilds every artifact regardless of the state index.
	ModeFull Mode = "full"
	// ModeIncremental skips slots whose source hash and slot key are
	// already recorded.
	ModeIncremental Mode = "incremental"
)

// Progress is the payload published on the engine's event broker.
type Progress struct {
	Source string
	Kind   string
	Slot   int
	Output string
	Err    string
}

// Failure records one slot or source that could not be processed. A
// failure never aborts the run; the remaining work still happens.
type Failure struct {
	Source string
	Kind   string
	Slot   int
	Err    error
}

// Summary is the outcome of one run.
type Summary struct {
	RunID    string
	Mode     Mode
	Sources  int
	Produced int
	Skipped  int
	Failed   int
	Records  []registry.Record
	Failures []Failure
	Duration time.Duration
}

// Engine owns one derivation pipeline instance.
type Engine struct {
	cfg        config.Config
	store      *state.Store
	repo       *registry.Repository
	ns         *namespace.Builder
	fp         *fingerprint.Fingerprinter
	transforms *transform.Registry
	broker     *pubsub.Broker[Progress]
	tracer     trace.Tracer
	rng        *rand.Rand
	runID      string
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithRepository attaches the artifact registry. Runs merge their
// records into it and cleanup consults it for orphan resolution.
func WithRepository(repo *registry.Repository) Option {
	return func(e *Engine) { e.repo = repo }
}

// WithTracer attaches a tracer for stage-level spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// New builds an engine from validated configuration and a loaded state
// store.
func New(cfg config.Config, store *state.Store, opts ...Option) (*Engine, error) {
	transforms, err := transform.NewRegistry(cfg.Augmentation.Backend)
	if err != nil {
		return nil, err
	}

	seed := cfg.Augmentation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	e := &Engine{
		cfg:        cfg,
		store:      store,
		ns:         namespace.NewBuilder(cfg.OutputDir),
		fp:         fingerprint.New(),
		transforms: transforms,
		broker:     pubsub.NewBroker[Progress](),
		tracer:     noop.NewTracerProvider().Tracer("engine"),
		rng:        rand.New(rand.NewSource(seed)), //nolint:gosec // G404: transform jitter, not cryptography
		runID:      uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Events exposes the progress broker for subscribers (the watcher UI,
// tests). Callers must not close it; Close does.
func (e *Engine) Events() *pubsub.Broker[Progress] {
	return e.broker
}

// Close releases the engine's event broker.
func (e *Engine) Close() {
	e.broker.Close()
}

// Run executes one derivation pass over the source tree. Per-artifact
// failures are collected in the summary; the returned error is reserved
// for faults that stop the run entirely (unreadable source root, state
// save failure).
func (e *Engine) Run(ctx context.Context, mode Mode) (*Summary, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.run",
		trace.WithAttributes(
			attribute.String("mode", string(mode)),
			attribute.String("run_id", e.runID),
		))
	defer span.End()

	scanned, err := e.scanSources(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{RunID: e.runID, Mode: mode, Sources: len(scanned.Sources)}
	e.store.SetConfig(state.Snapshot{
		NumAugmentations:  e.cfg.Augmentation.Count,
		ImageQuality:      e.cfg.Augmentation.Quality,
		AugmentationTypes: e.cfg.Augmentation.Types,
		Seed:              e.cfg.Augmentation.Seed,
	})

	log.Info(log.CatEngine, "run started",
		"mode", mode, "run_id", e.runID, "sources", len(scanned.Sources))

	for _, src := range scanned.Sources {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		e.processSource(ctx, mode, src, summary)
	}

	// The index is saved even after partial failures so the completed
	// slots are not redone next run.
	if err := e.saveState(ctx); err != nil {
		return summary, err
	}

	if e.repo != nil && len(summary.Records) > 0 {
		if _, err := e.repo.Merge(summary.Records); err != nil {
			return summary, fmt.Errorf("merging registry: %w", err)
		}
	}

	summary.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("produced", summary.Produced),
		attribute.Int("skipped", summary.Skipped),
		attribute.Int("failed", summary.Failed),
	)
	log.Info(log.CatEngine, "run finished",
		"produced", summary.Produced, "skipped", summary.Skipped,
		"failed", summary.Failed, "duration", summary.Duration)
	return summary, nil
}

func (e *Engine) scanSources(ctx context.Context) (*scan.Result, error) {
	_, span := e.tracer.Start(ctx, "engine.scan")
	defer span.End()

	scanned, err := scan.Dir(e.cfg.SourceDir)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("sources", len(scanned.Sources)),
		attribute.Int("skipped", len(scanned.Skipped)),
	)
	return scanned, nil
}

func (e *Engine) saveState(ctx context.Context) error {
	_, span := e.tracer.Start(ctx, "engine.save_state")
	defer span.End()
	return e.store.Save()
}

// processSource handles one source file: the unmodified copy plus every
// augmentation slot.
func (e *Engine) processSource(ctx context.Context, mode Mode, src scan.Source, summary *Summary) {
	hash, err := e.fp.Sum(ctx, src.Path)
	if err != nil {
		e.fail(summary, Failure{Source: src.Path, Err: err})
		return
	}

	if err := e.writeOriginal(mode, src, summary); err != nil {
		e.fail(summary, Failure{Source: src.Path, Kind: transform.KindOriginal, Err: err})
		return
	}

	// The source pixels are decoded at most once per run, and only when
	// some slot actually needs them.
	var decoded image.Image

	catalog := e.cfg.Augmentation.Types
	for slot := 0; slot < e.cfg.Augmentation.Count; slot++ {
		kind := kindForSlot(catalog, slot)
		key := state.AugKey(kind, slot)
		outPath := e.ns.DerivedPath(src.ID, src.Name, slot)

		if mode == ModeIncremental && e.slotFresh(src.Path, hash, key, outPath) {
			summary.Skipped++
			e.broker.Publish(pubsub.SkippedEvent, Progress{Source: src.Path, Kind: kind, Slot: slot, Output: outPath})
			continue
		}

		if decoded == nil {
			decoded, err = transform.ReadImage(src.Path)
			if err != nil {
				e.fail(summary, Failure{Source: src.Path, Err: err})
				return
			}
		}

		if err := e.produceSlot(decoded, kind, outPath); err != nil {
			e.fail(summary, Failure{Source: src.Path, Kind: kind, Slot: slot, Err: err})
			continue
		}

		e.store.Mark(src.Path, hash, key, outPath, time.Now().UTC())
		summary.Produced++
		summary.Records = append(summary.Records, e.record(src, kind, outPath))
		e.broker.Publish(pubsub.ProducedEvent, Progress{Source: src.Path, Kind: kind, Slot: slot, Output: outPath})
		log.Debug(log.CatEngine, "slot produced", "source", src.Name, "kind", kind, "slot", slot)
	}
}

// kindForSlot maps an augmentation slot onto the configured catalog,
// cycling when the slot count exceeds the catalog length. The mapping
// is what keeps slot keys and output names stable across runs.
func kindForSlot(catalog []string, slot int) string {
	return catalog[slot%len(catalog)]
}

// slotFresh reports whether a slot can be skipped: the state index must
// record it for the current hash and the output file must still exist
// (cleanup may have removed it behind the index's back).
func (e *Engine) slotFresh(sourcePath, hash, key, outPath string) bool {
	if !e.store.IsFresh(sourcePath, hash, key) {
		return false
	}
	if _, err := os.Stat(outPath); err != nil {
		return false
	}
	return true
}

// writeOriginal places the byte-for-byte copy of the source in the
// output tree. Full runs always rewrite it; incremental runs only fill
// it in when missing. The copy is registered either way so the registry
// row survives registry rebuilds.
func (e *Engine) writeOriginal(mode Mode, src scan.Source, summary *Summary) error {
	dst := e.ns.OriginalPath(src.ID, src.Name)
	if err := namespace.EnsureDir(dst); err != nil {
		return err
	}

	_, statErr := os.Stat(dst)
	if mode == ModeFull || statErr != nil {
		if err := transform.CopyFile(src.Path, dst); err != nil {
			return err
		}
	}
	summary.Records = append(summary.Records, e.record(src, transform.KindOriginal, dst))
	return nil
}

func (e *Engine) produceSlot(src image.Image, kind, outPath string) error {
	out, err := e.transforms.Apply(kind, src, e.rng)
	if err != nil {
		return err
	}
	if err := namespace.EnsureDir(outPath); err != nil {
		return err
	}
	return transform.WriteImage(outPath, out, e.cfg.Augmentation.Quality)
}

func (e *Engine) record(src scan.Source, kind, outPath string) registry.Record {
	full := outPath
	if abs, err := filepath.Abs(outPath); err == nil {
		full = abs
	}
	return registry.Record{
		Filename:         filepath.Base(outPath),
		Filepath:         filepath.Join(src.ID.Set, src.ID.Variant, filepath.Base(outPath)),
		OriginalFilename: src.Name,
		AugmentationType: kind,
		SetName:          src.ID.Set,
		CardNumber:       src.ID.Number,
		Variant:          src.ID.Variant,
		FullPath:         full,
		RunID:            e.runID,
		CreatedAt:        time.Now().UTC(),
	}
}

func (e *Engine) fail(summary *Summary, f Failure) {
	summary.Failed++
	summary.Failures = append(summary.Failures, f)
	e.broker.Publish(pubsub.FailedEvent, Progress{Source: f.Source, Kind: f.Kind, Slot: f.Slot, Err: f.Err.Error()})
	log.ErrorErr(log.CatEngine, "slot failed", f.Err, "source", f.Source, "kind", f.Kind, "slot", f.Slot)
}

// CleanupResult is the outcome of a cleanup pass.
type CleanupResult struct {
	RemovedFiles  []string
	RemovedDirs   int
	DroppedState  int
	DroppedRowsOK bool
}

// Cleanup removes derived artifacts whose source no longer exists, drops
// their registry rows, and prunes state entries for vanished sources.
// Originals in the output tree are never touched.
func (e *Engine) Cleanup(ctx context.Context) (*CleanupResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.cleanup")
	defer span.End()

	scanned, err := e.scanSources(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(scanned.Sources))
	for i, src := range scanned.Sources {
		names[i] = src.Name
	}

	var lookup reconcile.SourceLookup
	if e.repo != nil {
		lookup = func(fullPath string) (string, bool) {
			original, ok, err := e.repo.SourceFor(fullPath)
			if err != nil {
				log.ErrorErr(log.CatReconcile, "registry lookup failed", err, "path", fullPath)
				return "", false
			}
			return original, ok
		}
	}

	// Registry rows key on absolute paths; walk the same way so row
	// deletion matches what the reconciler removed.
	outputRoot := e.cfg.OutputDir
	if abs, err := filepath.Abs(outputRoot); err == nil {
		outputRoot = abs
	}

	result, err := reconcile.New(outputRoot, lookup).Reconcile(names)
	if err != nil {
		return nil, err
	}

	out := &CleanupResult{RemovedFiles: result.RemovedFiles, RemovedDirs: result.RemovedDirs}

	if e.repo != nil && len(result.RemovedFiles) > 0 {
		if err := e.repo.Delete(result.RemovedFiles); err != nil {
			return out, fmt.Errorf("dropping registry rows: %w", err)
		}
		out.DroppedRowsOK = true
	}

	for _, path := range e.store.Sources() {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			e.store.Remove(path)
			out.DroppedState++
		}
	}
	if err := e.store.Save(); err != nil {
		return out, err
	}

	span.SetAttributes(
		attribute.Int("removed_files", len(out.RemovedFiles)),
		attribute.Int("removed_dirs", out.RemovedDirs),
		attribute.Int("dropped_state", out.DroppedState),
	)
	log.Info(log.CatReconcile, "cleanup finished",
		"removed_files", len(out.RemovedFiles),
		"removed_dirs", out.RemovedDirs,
		"dropped_state", out.DroppedState)
	return out, nil
}

// Stats reports registry aggregates. Requires an attached repository.
func (e *Engine) Stats(ctx context.Context) (registry.Stats, error) {
	_, span := e.tracer.Start(ctx, "engine.stats")
	defer span.End()

	if e.repo == nil {
		return registry.Stats{}, fmt.Errorf("stats requires a registry")
	}
	return e.repo.Stats()
}
