package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// defaultConfigTemplate is written verbatim so a fresh config file keeps
// its comments; marshaling the struct would lose them.
const defaultConfigTemplate = `# cardforge configuration
#
# Directory of labeled source scans, named <set>_<number>[_<variant>].<ext>
source_dir: ./cards

# Root of the derived output tree (<set>/<variant>/<filename>)
output_dir: ./cards_augmented

# state_file: override the derivation index location
# registry_path: override the artifact registry location

augmentation:
  # Derived variants per source image. The types catalog cycles when
  # count exceeds its length.
  count: 4
  types:
    - rotate
    - brightness
    - contrast
    - saturation
    - combined
  # Encoder quality for lossy formats (1-100)
  quality: 95
  # 0 seeds transforms from the clock; any other value is reproducible
  seed: 0
  # "imaging" (rich) or "basic" (no imaging library)
  backend: imaging

watch:
  debounce: 2s

tracing:
  enabled: false
  # "file", "stdout" or "otlp"
  exporter: file
  otlp_endpoint: localhost:4317
  sample_rate: 1.0
`

// WriteDefaultConfig creates a commented default config file at path.
// Parent directories are created as needed; an existing file is left
// untouched.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
