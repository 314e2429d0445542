// Package transform applies pixel-level augmentations to card images.
//
// Two backends implement the same operation set: a rich one built on the
// imaging library and a basic hand-rolled fallback for builds where the
// rich path is unwanted. The backend is chosen once from configuration;
// nothing branches on it per call. Every operation returns a new image
// and must never mutate its input, so the engine can retry a slot with a
// fresh copy.
package transform

import (
	"errors"
	"fmt"
	"image"
	"math/rand"
)

// Transform kind names. KindOriginal is the sentinel used in registry
// rows for unmodified copies; it is not an applicable transform.
const (
	KindRotate     = "rotate"
	KindBrightness = "brightness"
	KindContrast   = "contrast"
	KindSaturation = "saturation"
	KindNoise      = "noise"
	KindBlur       = "blur"
	KindCrop       = "crop"
	KindFlip       = "flip"
	KindCombined   = "combined"

	KindOriginal = "original"
)

// ErrUnsupported is returned when a transform kind is not in the catalog.
var ErrUnsupported = errors.New("unsupported transform kind")

// Backend names accepted by NewRegistry.
const (
	BackendImaging = "imaging"
	BackendBasic   = "basic"
)

// ops is the operation set a backend provides. Implementations return
// new images; inputs are read-only.
type ops interface {
	rotate(img image.Image, rng *rand.Rand) image.Image
	brightness(img image.Image, rng *rand.Rand) image.Image
	contrast(img image.Image, rng *rand.Rand) image.Image
	saturation(img image.Image, rng *rand.Rand) image.Image
	blur(img image.Image, rng *rand.Rand) image.Image
	crop(img image.Image, rng *rand.Rand) image.Image
	flip(img image.Image, rng *rand.Rand) image.Image
}

// Registry dispatches transform kinds to the selected backend.
type Registry struct {
	backend ops
	name    string
}

// NewRegistry builds a Registry for the named backend.
func NewRegistry(backend string) (*Registry, error) {
	switch backend {
	case BackendImaging, "":
		return &Registry{backend: imagingOps{}, name: BackendImaging}, nil
	case BackendBasic:
		return &Registry{backend: basicOps{}, name: BackendBasic}, nil
	default:
		return nil, fmt.Errorf("unknown transform backend %q", backend)
	}
}

// Name returns the selected backend name.
func (r *Registry) Name() string {
	return r.name
}

// Kinds returns every applicable transform kind, in catalog order.
func Kinds() []string {
	return []string{
		KindRotate, KindBrightness, KindContrast, KindSaturation,
		KindNoise, KindBlur, KindCrop, KindFlip, KindCombined,
	}
}

// Supported reports whether kind is an applicable transform.
func Supported(kind string) bool {
	for _, k := range Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// Apply runs one transform kind against img, drawing its random
// parameters from rng, and returns the transformed copy.
func (r *Registry) Apply(kind string, img image.Image, rng *rand.Rand) (image.Image, error) {
	switch kind {
	case KindRotate:
		return r.backend.rotate(img, rng), nil
	case KindBrightness:
		return r.backend.brightness(img, rng), nil
	case KindContrast:
		return r.backend.contrast(img, rng), nil
	case KindSaturation:
		return r.backend.saturation(img, rng), nil
	case KindNoise:
		return addNoise(img, rng), nil
	case KindBlur:
		return r.backend.blur(img, rng), nil
	case KindCrop:
		return r.backend.crop(img, rng), nil
	case KindFlip:
		return r.backend.flip(img, rng), nil
	case KindCombined:
		return r.combined(img, rng)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, kind)
	}
}

// combined chains 2-3 randomly picked color-space transforms. Geometry
// transforms are excluded so the combined result stays aligned with the
// card frame, matching the historical dataset.
func (r *Registry) combined(img image.Image, rng *rand.Rand) (image.Image, error) {
	pool := []string{KindNoise, KindBrightness, KindContrast, KindSaturation}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	n := 2 + rng.Intn(2)
	out := img
	for _, kind := range pool[:n] {
		var err error
		out, err = r.Apply(kind, out, rng)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Parameter ranges, shared by both backends.
const (
	rotateMaxDeg  = 15.0
	factorMin     = 0.8 // brightness/contrast/saturation multiplier
	factorMax     = 1.2
	noiseSigma    = 0.1 * 255
	blurRadiusMin = 0.5
	blurRadiusMax = 1.5
	cropFactorMin = 0.90
	cropFactorMax = 0.95
)

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
