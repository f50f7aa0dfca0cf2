// Package timeline maps a global playback clock onto clips and transition
// progress.
//
// Clips play back to back. A clip's transition into the next clip occupies
// the tail of the clip's own display time:
//
//	Start                 TransitionStart        TransitionEnd = next Start
//	|-------- still -------|====== transition =====|
package timeline

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/exp/constraints"
)

// ErrNoClips is returned when a schedule is built from an empty clip list.
var ErrNoClips = errors.New("timeline has no clips")

// Phase is where a clock position falls relative to a clip's transition.
type Phase int

const (
	PhaseBefore Phase = iota
	PhaseIn
	PhaseAfter
	// PhasePassthrough is a clip without a transition (always the last
	// clip). Only the outgoing image is shown.
	PhasePassthrough
)

func (p Phase) String() string {
	switch p {
	case PhaseBefore:
		return "before"
	case PhaseIn:
		return "in"
	case PhaseAfter:
		return "after"
	case PhasePassthrough:
		return "passthrough"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// ClipSpec is the scheduling input for one clip.
type ClipSpec struct {
	ImageDuration time.Duration
	// OverlapFraction sizes the transition into the next clip as a share
	// of twice the image duration.
	OverlapFraction float64
	// TransitionID is the effect into the next clip. Empty means none.
	TransitionID string
}

// ClipTiming is the derived timing of one clip.
type ClipTiming struct {
	Index              int
	Start              time.Duration
	ImageDuration      time.Duration
	TransitionDuration time.Duration
	TransitionStart    time.Duration
	TransitionEnd      time.Duration
	TransitionID       string
}

// End returns the time the clip stops being current.
func (c ClipTiming) End() time.Duration {
	return c.Start + c.ImageDuration
}

// At classifies t against the clip's transition window and returns the
// linear progress for that phase.
func (c ClipTiming) At(t time.Duration) (Phase, float64) {
	if c.TransitionDuration <= 0 {
		return PhasePassthrough, 0
	}
	switch {
	case t < c.TransitionStart:
		return PhaseBefore, 0
	case t < c.TransitionEnd:
		linear := float64(t-c.TransitionStart) / float64(c.TransitionDuration)
		return PhaseIn, clamp(linear, 0, 1)
	default:
		return PhaseAfter, 1
	}
}

// Position is the result of resolving a clock value.
type Position struct {
	ClipIndex int
	Phase     Phase
	Linear    float64
}

// Schedule holds the timings of a clip sequence. It is immutable.
type Schedule struct {
	timings  []ClipTiming
	duration time.Duration
}

// TransitionDuration returns overlap × 2 × imageDuration clamped to
// [0, imageDuration].
func TransitionDuration(imageDuration time.Duration, overlap float64) time.Duration {
	if imageDuration <= 0 || math.IsNaN(overlap) || overlap <= 0 {
		return 0
	}
	frac := clamp(overlap*2, 0, 1)
	return time.Duration(math.Round(frac * float64(imageDuration)))
}

// NewSchedule derives clip timings. The last clip, and any clip without a
// transition id, gets a zero-length transition.
func NewSchedule(clips []ClipSpec) (*Schedule, error) {
	if len(clips) == 0 {
		return nil, ErrNoClips
	}

	s := &Schedule{timings: make([]ClipTiming, len(clips))}
	var start time.Duration
	for i, c := range clips {
		if c.ImageDuration <= 0 {
			return nil, fmt.Errorf("clip %d: image duration must be positive, got %v", i, c.ImageDuration)
		}
		var td time.Duration
		if i < len(clips)-1 && c.TransitionID != "" {
			td = TransitionDuration(c.ImageDuration, c.OverlapFraction)
		}
		s.timings[i] = ClipTiming{
			Index:              i,
			Start:              start,
			ImageDuration:      c.ImageDuration,
			TransitionDuration: td,
			TransitionStart:    start + c.ImageDuration - td,
			TransitionEnd:      start + c.ImageDuration,
			TransitionID:       c.TransitionID,
		}
		start += c.ImageDuration
	}
	s.duration = start
	return s, nil
}

// Timings returns a copy of every clip's timing.
func (s *Schedule) Timings() []ClipTiming {
	out := make([]ClipTiming, len(s.timings))
	copy(out, s.timings)
	return out
}

// Len returns the number of clips.
func (s *Schedule) Len() int {
	return len(s.timings)
}

// Duration returns the total playback length.
func (s *Schedule) Duration() time.Duration {
	return s.duration
}

// ClipAt returns the timing of clip i.
func (s *Schedule) ClipAt(i int) (ClipTiming, bool) {
	if i < 0 || i >= len(s.timings) {
		return ClipTiming{}, false
	}
	return s.timings[i], true
}

// Resolve maps a clock value to the current clip and its transition
// progress. Times before zero resolve to the first clip; times at or past
// the end resolve to the last clip.
func (s *Schedule) Resolve(t time.Duration) Position {
	t = clamp(t, 0, s.duration)
	i := sort.Search(len(s.timings), func(i int) bool {
		return s.timings[i].End() > t
	})
	if i == len(s.timings) {
		i = len(s.timings) - 1
	}
	phase, linear := s.timings[i].At(t)
	return Position{ClipIndex: i, Phase: phase, Linear: linear}
}

// FrameCount returns how many frames cover the schedule at fps, counting a
// partial last frame.
func (s *Schedule) FrameCount(fps int) int {
	if fps <= 0 {
		return 0
	}
	n := int64(s.duration) * int64(fps)
	frames := n / int64(time.Second)
	if n%int64(time.Second) != 0 {
		frames++
	}
	return int(frames)
}

// FrameTime returns the clock value of frame n at fps.
func FrameTime(n, fps int) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(fps))
}

func clamp[N constraints.Integer | constraints.Float](n, minN, maxN N) N {
	n = min(n, maxN)
	n = max(n, minN)
	return n
}
