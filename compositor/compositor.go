// Package compositor draws one output frame: it resolves the clock to a clip
// and progress, picks the effect, binds both clip images and draws.
package compositor

import (
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/user-none/slidefx/effects"
	"github.com/user-none/slidefx/logging"
	"github.com/user-none/slidefx/shader"
	"github.com/user-none/slidefx/timeline"
)

var (
	// ErrNotReady is returned while the current clip's image is still being
	// prepared or loaded.
	ErrNotReady = errors.New("clip texture not ready")

	// ErrNoEffect is returned when even the default effect cannot be built.
	ErrNoEffect = errors.New("no usable effect")
)

// Runtime compiles and draws effect programs. *shader.Runtime implements it.
type Runtime interface {
	Compile(d *effects.Descriptor) (*shader.Program, error)
	Use(p *shader.Program)
	BindFrame(from, to *ebiten.Image, params shader.FrameParams)
	Draw(dst *ebiten.Image) error
}

// Catalog looks effects up by id. *effects.Store implements it.
type Catalog interface {
	Get(id string) (*effects.Descriptor, bool)
	Default() (*effects.Descriptor, error)
}

// Textures hands out the output-sized image of each clip. *Slots implements
// it.
type Textures interface {
	// Texture returns the image for clip i, or false if it is not ready.
	Texture(i int) (*ebiten.Image, bool)

	// Retain keeps the textures of clips lo..hi resident and frees the rest.
	Retain(lo, hi int)
}

// Params are the frame inputs that do not change with the clock.
type Params struct {
	AspectRatio float64
	Smoothness  float64
	FadeColor   color.Color
}

// Stats counts how frames were drawn.
type Stats struct {
	Frames    int
	HardCuts  int
	Fallbacks int
}

// Compositor is the only component that changes draw state within a frame.
// It runs on the thread that owns the graphics context.
type Compositor struct {
	rt       Runtime
	catalog  Catalog
	textures Textures
	schedule *timeline.Schedule
	params   Params

	defaultEffect *effects.Descriptor
	defaultOnly   bool

	// Log-once sets
	fallbackLogged map[string]bool
	hardCutLogged  map[int]bool

	stats Stats
}

// New creates a compositor. It fails only when the catalog has no default
// effect.
func New(rt Runtime, catalog Catalog, textures Textures, schedule *timeline.Schedule, params Params) (*Compositor, error) {
	d, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve default effect: %w", err)
	}
	return &Compositor{
		rt:             rt,
		catalog:        catalog,
		textures:       textures,
		schedule:       schedule,
		params:         params,
		defaultEffect:  d,
		fallbackLogged: make(map[string]bool),
		hardCutLogged:  make(map[int]bool),
	}, nil
}

// Refresh re-resolves the default effect, e.g. after the catalog reloaded.
func (c *Compositor) Refresh() error {
	d, err := c.catalog.Default()
	if err != nil {
		return fmt.Errorf("failed to resolve default effect: %w", err)
	}
	c.defaultEffect = d
	c.fallbackLogged = make(map[string]bool)
	return nil
}

// UseDefaultOnly draws every transition with the default effect, ignoring
// the clips' own effects.
func (c *Compositor) UseDefaultOnly(on bool) {
	c.defaultOnly = on
}

// DefaultOnly reports whether UseDefaultOnly is on.
func (c *Compositor) DefaultOnly() bool {
	return c.defaultOnly
}

// DefaultEffect returns the effect used for fallbacks and still frames.
func (c *Compositor) DefaultEffect() *effects.Descriptor {
	return c.defaultEffect
}

// Render draws the frame at clock t into dst.
func (c *Compositor) Render(dst *ebiten.Image, t time.Duration) error {
	return c.Compose(dst, c.schedule.Resolve(t))
}

// Compose draws the frame for pos into dst. Outside a transition window the
// current clip is drawn through the default effect at progress 0.
func (c *Compositor) Compose(dst *ebiten.Image, pos timeline.Position) error {
	timing, ok := c.schedule.ClipAt(pos.ClipIndex)
	if !ok {
		return fmt.Errorf("clip %d out of range", pos.ClipIndex)
	}
	c.textures.Retain(pos.ClipIndex, pos.ClipIndex+1)

	from, ok := c.textures.Texture(pos.ClipIndex)
	if !ok {
		return ErrNotReady
	}

	switch pos.Phase {
	case timeline.PhaseIn, timeline.PhaseAfter:
		to, ok := c.textures.Texture(pos.ClipIndex + 1)
		if !ok {
			c.stats.HardCuts++
			if !c.hardCutLogged[pos.ClipIndex] {
				c.hardCutLogged[pos.ClipIndex] = true
				logging.Logger().Warn("next clip not ready, hard cut", "clip", pos.ClipIndex)
			}
			return c.draw(dst, c.defaultEffect, from, from, 0)
		}
		return c.draw(dst, c.effectFor(timing.TransitionID), from, to, pos.Linear)
	default:
		return c.draw(dst, c.defaultEffect, from, from, 0)
	}
}

// effectFor returns the descriptor for id, or the default when id is not in
// the catalog or only the default is in use.
func (c *Compositor) effectFor(id string) *effects.Descriptor {
	if c.defaultOnly {
		return c.defaultEffect
	}
	if d, ok := c.catalog.Get(id); ok {
		return d
	}
	c.noteFallback(id, "effect not found, using default")
	return c.defaultEffect
}

func (c *Compositor) noteFallback(id, msg string) {
	c.stats.Fallbacks++
	if !c.fallbackLogged[id] {
		c.fallbackLogged[id] = true
		logging.Logger().Warn(msg, "effect", id, "default", c.defaultEffect.ID)
	}
}

func (c *Compositor) draw(dst *ebiten.Image, d *effects.Descriptor, from, to *ebiten.Image, linear float64) error {
	p, err := c.rt.Compile(d)
	if err != nil && d != c.defaultEffect {
		c.noteFallback(d.ID, "effect failed to compile, using default")
		p, err = c.rt.Compile(c.defaultEffect)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoEffect, err)
	}

	c.rt.Use(p)
	c.rt.BindFrame(from, to, shader.FrameParams{
		Progress:    linear,
		AspectRatio: c.params.AspectRatio,
		Smoothness:  c.params.Smoothness,
		FadeColor:   c.params.FadeColor,
	})
	if err := c.rt.Draw(dst); err != nil {
		return err
	}
	c.stats.Frames++
	return nil
}

// Stats returns the draw counters.
func (c *Compositor) Stats() Stats {
	return c.stats
}
