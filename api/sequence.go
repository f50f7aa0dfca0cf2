// Package api defines what the compositing engine consumes from the project
// layer: an ordered list of clips and the output aspect ratio.
package api

import "io/fs"

// Sequence is the ordered slideshow the engine renders.
type Sequence interface {
	// Clips returns the clips in playback order.
	Clips() []Clip

	// TargetAspectRatio returns the output width divided by height.
	TargetAspectRatio() float64
}

// Clip is one image on the timeline.
type Clip interface {
	// ImageSource names the image asset, a path or a name inside the
	// sequence's asset filesystem.
	ImageSource() string

	// ImageDurationMs is how long the clip occupies the timeline.
	ImageDurationMs() int64

	// TransitionID selects the effect into the next clip. Empty means none.
	TransitionID() string

	// TransitionOverlapFraction sizes the transition relative to the clip.
	TransitionOverlapFraction() float64
}

// AssetResolver enables loading image sources from a filesystem other than
// the local one, such as an extracted archive.
type AssetResolver interface {
	// AssetFS returns the filesystem ImageSource names are resolved in.
	AssetFS() fs.FS
}

// Titled enables a display title for the sequence.
type Titled interface {
	Title() string
}

// StaticClip is a Clip backed by plain values.
type StaticClip struct {
	Source     string
	DurationMs int64
	Transition string
	Overlap    float64
}

func (c StaticClip) ImageSource() string                { return c.Source }
func (c StaticClip) ImageDurationMs() int64             { return c.DurationMs }
func (c StaticClip) TransitionID() string               { return c.Transition }
func (c StaticClip) TransitionOverlapFraction() float64 { return c.Overlap }

// StaticSequence is a Sequence backed by plain values.
type StaticSequence struct {
	Items  []StaticClip
	Aspect float64
}

func (s *StaticSequence) Clips() []Clip {
	out := make([]Clip, len(s.Items))
	for i, c := range s.Items {
		out[i] = c
	}
	return out
}

func (s *StaticSequence) TargetAspectRatio() float64 { return s.Aspect }
