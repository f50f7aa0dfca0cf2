// Package project reads slideshow project files and exposes them as an
// api.Sequence.
package project

// Defaults applied to clips that leave a field out.
const (
	DefaultDurationMs = 3000
	DefaultOverlap    = 0.25

	// MaxOverlap bounds the overlap fraction. At 0.5 the transition spans
	// the whole image.
	MaxOverlap = 0.5

	// MinDurationMs is the shortest clip accepted.
	MinDurationMs = 100
)

// File is the on-disk project format.
type File struct {
	Version     int    `yaml:"version"`
	Title       string `yaml:"title,omitempty"`
	AspectRatio string `yaml:"aspect_ratio"`

	// Assets optionally names a directory or archive, relative to the project
	// file, that image paths are resolved in.
	Assets string `yaml:"assets,omitempty"`

	Defaults ClipDefaults `yaml:"defaults,omitempty"`
	Clips    []ClipEntry  `yaml:"clips"`
}

// ClipDefaults fill in fields individual clips omit.
type ClipDefaults struct {
	DurationMs int64    `yaml:"duration_ms,omitempty"`
	Transition string   `yaml:"transition,omitempty"`
	Overlap    *float64 `yaml:"overlap,omitempty"`
}

// ClipEntry is one clip as written in the project file.
type ClipEntry struct {
	Image      string   `yaml:"image"`
	DurationMs int64    `yaml:"duration_ms,omitempty"`
	Transition string   `yaml:"transition,omitempty"`
	Overlap    *float64 `yaml:"overlap,omitempty"`
}

// NoTransition in a clip's transition field disables the default transition.
const NoTransition = "none"
