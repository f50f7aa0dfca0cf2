package player

import (
	"fmt"
	"time"

	"github.com/user-none/slidefx/timeline"
)

// Clock is the preview playback position. It is only touched from the game
// loop.
type Clock struct {
	pos    time.Duration
	total  time.Duration
	paused bool
	loop   bool
}

// NewClock creates a clock over [0, total].
func NewClock(total time.Duration, loop bool) *Clock {
	return &Clock{total: total, loop: loop}
}

// Position returns the current clock value.
func (c *Clock) Position() time.Duration { return c.pos }

// Total returns the running time.
func (c *Clock) Total() time.Duration { return c.total }

// Paused reports whether playback is paused.
func (c *Clock) Paused() bool { return c.paused }

// TogglePause flips between playing and paused. Resuming at the end of a
// non-looping clock restarts it.
func (c *Clock) TogglePause() {
	c.paused = !c.paused
	if !c.paused && !c.loop && c.pos >= c.total {
		c.pos = 0
	}
}

// Advance moves the clock forward by dt unless paused. At the end it wraps
// when looping and stops otherwise.
func (c *Clock) Advance(dt time.Duration) {
	if c.paused || dt <= 0 {
		return
	}
	c.pos += dt
	if c.pos < c.total {
		return
	}
	if c.loop && c.total > 0 {
		c.pos %= c.total
		return
	}
	c.pos = c.total
	c.paused = true
}

// Seek moves the clock by delta, clamped to [0, total].
func (c *Clock) Seek(delta time.Duration) {
	c.SeekTo(c.pos + delta)
}

// SeekTo moves the clock to t, clamped to [0, total].
func (c *Clock) SeekTo(t time.Duration) {
	c.pos = max(0, min(t, c.total))
}

const rewindGrace = 500 * time.Millisecond

// clipJump returns the start of the clip before or after the one playing at
// t. Going back more than rewindGrace into a clip lands on that clip's own
// start first.
func clipJump(s *timeline.Schedule, t time.Duration, forward bool) time.Duration {
	cur := s.Resolve(t).ClipIndex
	if forward {
		next, ok := s.ClipAt(cur + 1)
		if !ok {
			return s.Duration()
		}
		return next.Start
	}
	timing, _ := s.ClipAt(cur)
	if t-timing.Start > rewindGrace || cur == 0 {
		return timing.Start
	}
	prev, _ := s.ClipAt(cur - 1)
	return prev.Start
}

// formatClock renders d as m:ss.t
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	tenths := d / (100 * time.Millisecond)
	return fmt.Sprintf("%d:%02d.%d", tenths/600, (tenths/10)%60, tenths%10)
}

// frameName returns the file name of export frame n.
func frameName(n int) string {
	return fmt.Sprintf("frame_%06d.png", n)
}
