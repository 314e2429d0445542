package transform

import (
	"image"
	"image/color"
	"math/rand"

	"github.com/disintegration/imaging"
)

// imagingOps is the rich backend, built on the imaging library.
type imagingOps struct{}

func (imagingOps) rotate(img image.Image, rng *rand.Rand) image.Image {
	angle := uniform(rng, -rotateMaxDeg, rotateMaxDeg)
	bounds := img.Bounds()
	// White fill matches the card scan background. Rotate expands the
	// canvas to fit the rotated frame; crop back so dimensions are stable.
	rotated := imaging.Rotate(img, angle, color.White)
	return imaging.CropCenter(rotated, bounds.Dx(), bounds.Dy())
}

func (imagingOps) brightness(img image.Image, rng *rand.Rand) image.Image {
	factor := uniform(rng, factorMin, factorMax)
	return imaging.AdjustBrightness(img, (factor-1)*100)
}

func (imagingOps) contrast(img image.Image, rng *rand.Rand) image.Image {
	factor := uniform(rng, factorMin, factorMax)
	return imaging.AdjustContrast(img, (factor-1)*100)
}

func (imagingOps) saturation(img image.Image, rng *rand.Rand) image.Image {
	factor := uniform(rng, factorMin, factorMax)
	return imaging.AdjustSaturation(img, (factor-1)*100)
}

func (imagingOps) blur(img image.Image, rng *rand.Rand) image.Image {
	return imaging.Blur(img, uniform(rng, blurRadiusMin, blurRadiusMax))
}

func (imagingOps) crop(img image.Image, rng *rand.Rand) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	factor := uniform(rng, cropFactorMin, cropFactorMax)
	cw := int(float64(w) * factor)
	ch := int(float64(h) * factor)
	if cw < 1 || ch < 1 {
		return imaging.Clone(img)
	}

	left := bounds.Min.X + rng.Intn(w-cw+1)
	top := bounds.Min.Y + rng.Intn(h-ch+1)

	cropped := imaging.Crop(img, image.Rect(left, top, left+cw, top+ch))
	return imaging.Resize(cropped, w, h, imaging.Lanczos)
}

func (imagingOps) flip(img image.Image, _ *rand.Rand) image.Image {
	return imaging.FlipH(img)
}
