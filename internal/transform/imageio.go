package transform

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/webp"

	// Registers the webp decoder; jpeg and png register via the encoder
	// imports above.
	_ "golang.org/x/image/webp"
)

// ReadImage decodes the image at path.
func ReadImage(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the scanned source tree
	if err != nil {
		return nil, fmt.Errorf("opening image %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image %s: %w", path, err)
	}
	return img, nil
}

// WriteImage encodes img to path, picking the encoder from the file
// extension. Quality applies to lossy formats (webp, jpeg).
func WriteImage(path string, img image.Image, quality int) error {
	f, err := os.Create(path) //nolint:gosec // G304: path computed by the namespace builder
	if err != nil {
		return fmt.Errorf("creating image %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".webp", "":
		err = webp.Encode(f, img, webp.Options{Quality: quality})
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
	case ".png":
		err = png.Encode(f, img)
	default:
		f.Close()
		os.Remove(path)
		return fmt.Errorf("unsupported image extension %q", filepath.Ext(path))
	}
	if err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encoding image %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing image %s: %w", path, err)
	}
	return nil
}

// CopyFile copies a source file byte-for-byte to dst. Used for the
// "original" namespace copies so they stay bit-identical to the source.
func CopyFile(src, dst string) error {
	data, err := os.ReadFile(src) //nolint:gosec // G304: path comes from the scanned source tree
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}
