// Package preprocess turns source images into normalized images: decoded,
// decimated, composited over a blurred fill of themselves at the target
// aspect ratio, and persisted as PNG.
package preprocess

import (
	"fmt"
	"math"
	"strings"
)

// Tier selects the working resolution of normalized images.
type Tier int

const (
	TierPreview Tier = iota
	TierStandard
	TierExport
)

var tierNames = map[Tier]string{
	TierPreview:  "preview",
	TierStandard: "standard",
	TierExport:   "export",
}

// ParseTier converts a config token into a Tier.
func ParseTier(s string) (Tier, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	for tier, name := range tierNames {
		if name == t {
			return tier, nil
		}
	}
	return TierStandard, fmt.Errorf("unknown texture tier %q", s)
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

// LongEdge returns the size in pixels of the longer output side.
func (t Tier) LongEdge() int {
	switch t {
	case TierPreview:
		return 720
	case TierExport:
		return 2160
	default:
		return 1080
	}
}

// OutputSize returns the normalized image size for the aspect ratio
// (width/height) and tier. Landscape outputs take the tier's long edge as
// width, portrait outputs as height. Both sides are even.
func OutputSize(aspect float64, tier Tier) (int, int) {
	long := float64(tier.LongEdge())
	if math.IsNaN(aspect) || math.IsInf(aspect, 0) || aspect <= 0 {
		aspect = 16.0 / 9.0
	}
	if aspect >= 1 {
		return even(long), even(long / aspect)
	}
	return even(long * aspect), even(long)
}

// even rounds v to the nearest even integer, never below 2.
func even(v float64) int {
	n := int(math.Round(v/2)) * 2
	if n < 2 {
		return 2
	}
	return n
}
