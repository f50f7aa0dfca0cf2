package api

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultAspectRatio is used when a sequence does not name one.
const DefaultAspectRatio = 16.0 / 9.0

// ParseAspectRatio accepts "W:H", "W/H" or a decimal ratio.
func ParseAspectRatio(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty aspect ratio")
	}

	if i := strings.IndexAny(s, ":/"); i >= 0 {
		w, errW := strconv.ParseFloat(strings.TrimSpace(s[:i]), 64)
		h, errH := strconv.ParseFloat(strings.TrimSpace(s[i+1:]), 64)
		if errW != nil || errH != nil {
			return 0, fmt.Errorf("invalid aspect ratio %q", s)
		}
		return checkAspect(s, w/h)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid aspect ratio %q", s)
	}
	return checkAspect(s, v)
}

func checkAspect(s string, v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, fmt.Errorf("aspect ratio %q must be positive", s)
	}
	return v, nil
}

// DisplayAspectRatio returns the aspect ratio of a width×height frame.
func DisplayAspectRatio(width, height int) float64 {
	if width <= 0 || height <= 0 {
		return DefaultAspectRatio
	}
	return float64(width) / float64(height)
}
