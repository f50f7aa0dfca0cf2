package timeline

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/user-none/slidefx/shader"
)

const ms = time.Millisecond

func twoClips(t *testing.T) *Schedule {
	t.Helper()
	s, err := NewSchedule([]ClipSpec{
		{ImageDuration: 3000 * ms, OverlapFraction: 0.3, TransitionID: "fade"},
		{ImageDuration: 3000 * ms, OverlapFraction: 0.3, TransitionID: "fade"},
	})
	if err != nil {
		t.Fatalf("NewSchedule failed: %v", err)
	}
	return s
}

func TestTransitionWindow(t *testing.T) {
	s := twoClips(t)
	c, _ := s.ClipAt(0)
	if c.TransitionDuration != 1800*ms {
		t.Errorf("TransitionDuration = %v, want 1.8s", c.TransitionDuration)
	}
	if c.TransitionStart != 1200*ms {
		t.Errorf("TransitionStart = %v, want 1.2s", c.TransitionStart)
	}
	if c.TransitionEnd != 3000*ms {
		t.Errorf("TransitionEnd = %v, want 3s", c.TransitionEnd)
	}
	if s.Duration() != 6000*ms {
		t.Errorf("Duration = %v, want 6s", s.Duration())
	}
}

func TestResolveScenarios(t *testing.T) {
	s := twoClips(t)
	tests := []struct {
		name      string
		at        time.Duration
		clip      int
		phase     Phase
		linear    float64
		wantEased float64
	}{
		{"before transition", 600 * ms, 0, PhaseBefore, 0, 0},
		{"window start", 1200 * ms, 0, PhaseIn, 0, 0},
		{"mid transition", 2100 * ms, 0, PhaseIn, 0.5, 0.70710678},
		{"next clip start", 3000 * ms, 1, PhasePassthrough, 0, 0},
		{"last clip", 4500 * ms, 1, PhasePassthrough, 0, 0},
		{"negative clock", -time.Second, 0, PhaseBefore, 0, 0},
		{"past end", 10 * time.Second, 1, PhasePassthrough, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := s.Resolve(tt.at)
			if pos.ClipIndex != tt.clip {
				t.Errorf("ClipIndex = %d, want %d", pos.ClipIndex, tt.clip)
			}
			if pos.Phase != tt.phase {
				t.Errorf("Phase = %v, want %v", pos.Phase, tt.phase)
			}
			if math.Abs(pos.Linear-tt.linear) > 1e-9 {
				t.Errorf("Linear = %v, want %v", pos.Linear, tt.linear)
			}
			if eased := shader.Ease(pos.Linear); math.Abs(eased-tt.wantEased) > 1e-6 {
				t.Errorf("eased = %v, want %v", eased, tt.wantEased)
			}
		})
	}
}

func TestClipAtPhases(t *testing.T) {
	s := twoClips(t)
	c, _ := s.ClipAt(0)
	if p, v := c.At(3500 * ms); p != PhaseAfter || v != 1 {
		t.Errorf("At(3.5s) = %v, %v; want after, 1", p, v)
	}
	last, _ := s.ClipAt(1)
	if last.TransitionDuration != 0 {
		t.Errorf("last clip TransitionDuration = %v, want 0", last.TransitionDuration)
	}
	if _, ok := s.ClipAt(2); ok {
		t.Error("ClipAt(2) should be out of range")
	}
	if _, ok := s.ClipAt(-1); ok {
		t.Error("ClipAt(-1) should be out of range")
	}
}

func TestTransitionDuration(t *testing.T) {
	tests := []struct {
		name    string
		image   time.Duration
		overlap float64
		want    time.Duration
	}{
		{"proportional", 3000 * ms, 0.3, 1800 * ms},
		{"clamped to image", 2000 * ms, 0.8, 2000 * ms},
		{"zero overlap", 2000 * ms, 0, 0},
		{"negative overlap", 2000 * ms, -0.5, 0},
		{"NaN overlap", 2000 * ms, math.NaN(), 0},
		{"zero image", 0, 0.3, 0},
		{"huge overlap", 3000 * ms, 1e10, 3000 * ms},
		{"overflowing overlap", 3000 * ms, 1e300, 3000 * ms},
		{"infinite overlap", 3000 * ms, math.Inf(1), 3000 * ms},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TransitionDuration(tt.image, tt.overlap); got != tt.want {
				t.Errorf("TransitionDuration(%v, %v) = %v, want %v", tt.image, tt.overlap, got, tt.want)
			}
		})
	}
}

func TestNoTransitionIDIsPassthrough(t *testing.T) {
	s, err := NewSchedule([]ClipSpec{
		{ImageDuration: time.Second, OverlapFraction: 0.5},
		{ImageDuration: time.Second},
	})
	if err != nil {
		t.Fatalf("NewSchedule failed: %v", err)
	}
	if pos := s.Resolve(900 * ms); pos.Phase != PhasePassthrough {
		t.Errorf("Phase = %v, want passthrough", pos.Phase)
	}
}

func TestNewScheduleErrors(t *testing.T) {
	if _, err := NewSchedule(nil); !errors.Is(err, ErrNoClips) {
		t.Errorf("NewSchedule(nil) error = %v, want ErrNoClips", err)
	}
	if _, err := NewSchedule([]ClipSpec{{ImageDuration: 0}}); err == nil {
		t.Error("expected error for zero image duration")
	}
}

func TestTimingInvariants(t *testing.T) {
	s, err := NewSchedule([]ClipSpec{
		{ImageDuration: 2500 * ms, OverlapFraction: 0.2, TransitionID: "a"},
		{ImageDuration: 1000 * ms, OverlapFraction: 0.9, TransitionID: "b"},
		{ImageDuration: 4000 * ms, OverlapFraction: 0.1, TransitionID: "c"},
		{ImageDuration: 3000 * ms, OverlapFraction: 0.4, TransitionID: "d"},
	})
	if err != nil {
		t.Fatalf("NewSchedule failed: %v", err)
	}
	timings := s.Timings()
	for i, c := range timings {
		if c.TransitionStart > c.TransitionEnd {
			t.Errorf("clip %d: start %v after end %v", i, c.TransitionStart, c.TransitionEnd)
		}
		if c.TransitionStart < c.Start {
			t.Errorf("clip %d: transition starts before clip", i)
		}
		if i+1 < len(timings) && c.TransitionEnd > timings[i+1].Start {
			t.Errorf("clip %d: transition ends after next clip start", i)
		}
	}
	if timings[len(timings)-1].TransitionDuration != 0 {
		t.Error("last clip must have no transition")
	}
}

func TestResolveMonotonicWithinClip(t *testing.T) {
	s := twoClips(t)
	prevClip, prevLinear := 0, 0.0
	for at := time.Duration(0); at <= s.Duration(); at += 10 * ms {
		pos := s.Resolve(at)
		if pos.ClipIndex < prevClip {
			t.Fatalf("clip index went backwards at %v", at)
		}
		if pos.ClipIndex == prevClip && pos.Linear < prevLinear {
			t.Fatalf("progress went backwards at %v: %v < %v", at, pos.Linear, prevLinear)
		}
		if pos.Linear < 0 || pos.Linear > 1 {
			t.Fatalf("progress out of range at %v: %v", at, pos.Linear)
		}
		prevClip, prevLinear = pos.ClipIndex, pos.Linear
	}
}

func TestFrames(t *testing.T) {
	s := twoClips(t)
	if n := s.FrameCount(30); n != 180 {
		t.Errorf("FrameCount(30) = %d, want 180", n)
	}
	if n := s.FrameCount(0); n != 0 {
		t.Errorf("FrameCount(0) = %d, want 0", n)
	}
	odd, _ := NewSchedule([]ClipSpec{{ImageDuration: 1010 * ms}})
	if n := odd.FrameCount(10); n != 11 {
		t.Errorf("FrameCount with partial frame = %d, want 11", n)
	}
	if got := FrameTime(45, 30); got != 1500*ms {
		t.Errorf("FrameTime(45, 30) = %v, want 1.5s", got)
	}
}

func TestPhaseString(t *testing.T) {
	if PhaseIn.String() != "in" || PhasePassthrough.String() != "passthrough" {
		t.Error("unexpected phase names")
	}
	if Phase(9).String() != "Phase(9)" {
		t.Errorf("Phase(9).String() = %q", Phase(9).String())
	}
}
