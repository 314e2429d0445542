package transform

import (
	"image"
	"image/color"
	"math"
	"math/rand"
)

// basicOps is the hand-rolled fallback backend. It trades quality for
// zero dependence on the imaging library: nearest-neighbor rotation, box
// blur, simple per-pixel color math.
type basicOps struct{}

func (basicOps) rotate(img image.Image, rng *rand.Rand) image.Image {
	angle := uniform(rng, -rotateMaxDeg, rotateMaxDeg) * math.Pi / 180
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	cx, cy := float64(w)/2, float64(h)/2

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	sin, cos := math.Sin(angle), math.Cos(angle)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Inverse mapping: rotate the destination pixel back into
			// the source frame.
			dx, dy := float64(x)-cx, float64(y)-cy
			sx := int(math.Round(cx + dx*cos + dy*sin))
			sy := int(math.Round(cy - dx*sin + dy*cos))
			if sx >= 0 && sx < w && sy >= 0 && sy < h {
				out.Set(x, y, img.At(bounds.Min.X+sx, bounds.Min.Y+sy))
			} else {
				out.Set(x, y, color.White)
			}
		}
	}
	return out
}

func (basicOps) brightness(img image.Image, rng *rand.Rand) image.Image {
	factor := uniform(rng, factorMin, factorMax)
	return mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
		return r * factor, g * factor, b * factor
	})
}

func (basicOps) contrast(img image.Image, rng *rand.Rand) image.Image {
	factor := uniform(rng, factorMin, factorMax)
	return mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
		return (r-128)*factor + 128, (g-128)*factor + 128, (b-128)*factor + 128
	})
}

func (basicOps) saturation(img image.Image, rng *rand.Rand) image.Image {
	factor := uniform(rng, factorMin, factorMax)
	return mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
		gray := 0.299*r + 0.587*g + 0.114*b
		return gray + (r-gray)*factor, gray + (g-gray)*factor, gray + (b-gray)*factor
	})
}

func (basicOps) blur(img image.Image, rng *rand.Rand) image.Image {
	radius := int(math.Ceil(uniform(rng, blurRadiusMin, blurRadiusMax)))
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sr, sg, sb, n float64
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					sx, sy := x+dx, y+dy
					if sx < 0 || sx >= w || sy < 0 || sy >= h {
						continue
					}
					r, g, b, _ := img.At(bounds.Min.X+sx, bounds.Min.Y+sy).RGBA()
					sr += float64(r >> 8)
					sg += float64(g >> 8)
					sb += float64(b >> 8)
					n++
				}
			}
			out.Set(x, y, color.RGBA{
				R: uint8(sr / n),
				G: uint8(sg / n),
				B: uint8(sb / n),
				A: 255,
			})
		}
	}
	return out
}

func (basicOps) crop(img image.Image, rng *rand.Rand) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	factor := uniform(rng, cropFactorMin, cropFactorMax)
	cw := int(float64(w) * factor)
	ch := int(float64(h) * factor)
	if cw < 1 || ch < 1 {
		return mapPixels(img, func(r, g, b float64) (float64, float64, float64) { return r, g, b })
	}

	left := rng.Intn(w - cw + 1)
	top := rng.Intn(h - ch + 1)

	// Nearest-neighbor resize back to the source dimensions.
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx := left + x*cw/w
			sy := top + y*ch/h
			out.Set(x, y, img.At(bounds.Min.X+sx, bounds.Min.Y+sy))
		}
	}
	return out
}

func (basicOps) flip(img image.Image, _ *rand.Rand) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(x, y, img.At(bounds.Min.X+w-1-x, bounds.Min.Y+y))
		}
	}
	return out
}

// addNoise overlays gaussian pixel noise. Both backends share it; the
// imaging library has no noise primitive.
func addNoise(img image.Image, rng *rand.Rand) image.Image {
	return mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
		return r + rng.NormFloat64()*noiseSigma,
			g + rng.NormFloat64()*noiseSigma,
			b + rng.NormFloat64()*noiseSigma
	})
}

// mapPixels applies f to every pixel's 8-bit RGB channels, clamping the
// result, and returns a new image.
func mapPixels(img image.Image, f func(r, g, b float64) (float64, float64, float64)) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			nr, ng, nb := f(float64(r>>8), float64(g>>8), float64(b>>8))
			out.Set(x, y, color.RGBA{
				R: clamp8(nr),
				G: clamp8(ng),
				B: clamp8(nb),
				A: uint8(a >> 8),
			})
		}
	}
	return out
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
