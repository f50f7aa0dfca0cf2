package project

import (
	"fmt"
	"math"
	"strings"

	"github.com/user-none/slidefx/api"
)

// ValidationError lists the problems that make a project unusable.
type ValidationError struct {
	Path     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid project %s: %s", e.Path, strings.Join(e.Problems, "; "))
}

// ValidateFile checks the fields that cannot be corrected and returns
// human-readable problem descriptions. An empty slice means the file is
// usable.
func ValidateFile(f *File) []string {
	var problems []string

	if f.Version != 0 && f.Version != 1 {
		problems = append(problems, fmt.Sprintf("version: %d (valid: 1)", f.Version))
	}
	if f.AspectRatio != "" {
		if _, err := api.ParseAspectRatio(f.AspectRatio); err != nil {
			problems = append(problems, fmt.Sprintf("aspect_ratio: %v", err))
		}
	}
	if len(f.Clips) == 0 {
		problems = append(problems, "clips: at least one clip is required")
	}
	for i, c := range f.Clips {
		if strings.TrimSpace(c.Image) == "" {
			problems = append(problems, fmt.Sprintf("clips[%d].image: missing", i))
		}
	}

	return problems
}

// SanitizeClips silently corrects out-of-range clip fields and fills in
// defaults, so invalid values never reach the timeline.
func SanitizeClips(f *File) {
	defDuration := f.Defaults.DurationMs
	if defDuration < MinDurationMs {
		defDuration = DefaultDurationMs
	}
	defOverlap := DefaultOverlap
	if f.Defaults.Overlap != nil {
		defOverlap = clampOverlap(*f.Defaults.Overlap)
	}

	for i := range f.Clips {
		c := &f.Clips[i]
		c.Image = strings.TrimSpace(c.Image)

		switch {
		case c.DurationMs == 0:
			c.DurationMs = defDuration
		case c.DurationMs < MinDurationMs:
			c.DurationMs = MinDurationMs
		}

		if c.Overlap == nil {
			v := defOverlap
			c.Overlap = &v
		} else {
			v := clampOverlap(*c.Overlap)
			c.Overlap = &v
		}

		switch strings.TrimSpace(c.Transition) {
		case "":
			c.Transition = f.Defaults.Transition
		case NoTransition:
			c.Transition = ""
		default:
			c.Transition = strings.TrimSpace(c.Transition)
		}
		if c.Transition == NoTransition {
			c.Transition = ""
		}
	}
}

func clampOverlap(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > MaxOverlap {
		return MaxOverlap
	}
	return v
}
