// Package effects holds the catalog of transition effects: metadata plus the
// Kage body implementing each transition.
package effects

import (
	"fmt"
	"strings"
)

// Category groups effects for display and filtering.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryFade
	CategoryWipe
	CategorySlide
	CategoryRotate
	CategoryBlur
	CategoryCreative
	CategoryCinematic
	CategoryThreeD
)

// categoryTokens maps the @category token to its Category
var categoryTokens = map[string]Category{
	"FADE":      CategoryFade,
	"WIPE":      CategoryWipe,
	"SLIDE":     CategorySlide,
	"ROTATE":    CategoryRotate,
	"BLUR":      CategoryBlur,
	"CREATIVE":  CategoryCreative,
	"CINEMATIC": CategoryCinematic,
	"THREE_D":   CategoryThreeD,
}

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryFade,
	CategoryWipe,
	CategorySlide,
	CategoryRotate,
	CategoryBlur,
	CategoryCreative,
	CategoryCinematic,
	CategoryThreeD,
}

// ParseCategory converts a metadata token into a Category. Matching ignores
// case and accepts "-" in place of "_" ("three-d").
func ParseCategory(token string) (Category, error) {
	t := strings.ToUpper(strings.TrimSpace(token))
	t = strings.ReplaceAll(t, "-", "_")
	if c, ok := categoryTokens[t]; ok {
		return c, nil
	}
	return CategoryUnknown, fmt.Errorf("unrecognized category %q", token)
}

// String returns the metadata token for the category.
func (c Category) String() string {
	for token, cat := range categoryTokens {
		if cat == c {
			return token
		}
	}
	return "UNKNOWN"
}

// Descriptor describes one transition effect. Descriptors are immutable once
// parsed and shared by pointer.
type Descriptor struct {
	ID       string   // Stable key used by projects and config
	Name     string   // Display name
	Category Category // Display group
	Premium  bool     // Gated in product tiers; informational here
	Body     string   // Kage source defining func transition(uv vec2) vec4
	Source   string   // Origin of the definition (root name + file), for diagnostics
}
