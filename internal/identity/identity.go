// Package identity extracts the semantic key of a card from its filename.
//
// Card scans are named `<set>_<number>[_<variant>]` (e.g. "s1_042_pf.webp").
// Derived files carry a synthetic `_aug_<n>` suffix which must be stripped
// before the identity is read, so "s1_042_pf_aug_3.webp" and
// "s1_042_pf.webp" resolve to the same card.
package identity

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Separator joins the identity segments in filenames and composite IDs.
const Separator = "_"

// AugMarker is the literal token that marks a derived filename
// ("<stem>_aug_<n>").
const AugMarker = "aug"

// VariantNormal is the variant assigned when a filename carries no
// variant segment.
const VariantNormal = "normal"

// ErrNotParseable is returned when a filename does not carry enough
// segments to form an identity.
var ErrNotParseable = errors.New("filename does not encode a card identity")

// Identity is the semantic key shared by all captures of one card.
type Identity struct {
	Set     string
	Number  string
	Variant string
}

// CompositeID returns the canonical `set_number_variant` key.
func (id Identity) CompositeID() string {
	return id.Set + Separator + id.Number + Separator + id.Variant
}

func (id Identity) String() string {
	return id.CompositeID()
}

// StripAugSuffix removes a trailing `aug_<n>` pair from the split stem.
// It is a pure string operation, applied before identity extraction so
// derived filenames resolve to their source card. Returns the (possibly
// shortened) segments and whether a suffix was removed.
func StripAugSuffix(parts []string) ([]string, bool) {
	if len(parts) >= 4 && parts[len(parts)-2] == AugMarker {
		if _, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			return parts[:len(parts)-2], true
		}
	}
	return parts, false
}

// Parse derives an Identity from a filename (with or without extension).
// Fewer than two segments is ErrNotParseable; a missing third segment
// defaults the variant to VariantNormal.
func Parse(name string) (Identity, error) {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	parts := strings.Split(stem, Separator)
	parts, _ = StripAugSuffix(parts)

	if len(parts) < 2 {
		return Identity{}, fmt.Errorf("%w: %q", ErrNotParseable, name)
	}

	id := Identity{
		Set:     parts[0],
		Number:  parts[1],
		Variant: VariantNormal,
	}
	if len(parts) > 2 {
		id.Variant = parts[2]
	}
	return id, nil
}

// Stem returns the filename without its extension.
func Stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// BaseStem strips a `_aug_<n>` suffix from a stem, recovering the stem of
// the originating source file. Returns the input unchanged when no suffix
// is present.
func BaseStem(stem string) string {
	parts, _ := StripAugSuffix(strings.Split(stem, Separator))
	return strings.Join(parts, Separator)
}

// IsDerivedName reports whether a filename carries the `_aug_<n>` suffix.
func IsDerivedName(name string) bool {
	_, stripped := StripAugSuffix(strings.Split(Stem(name), Separator))
	return stripped
}
