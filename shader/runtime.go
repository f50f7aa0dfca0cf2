package shader

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/user-none/slidefx/effects"
	"github.com/user-none/slidefx/logging"
)

var (
	ErrReleased     = errors.New("shader runtime released")
	ErrNoProgram    = errors.New("no program in use")
	ErrNoFrame      = errors.New("no frame bound")
	ErrSizeMismatch = errors.New("from and to images differ in size")
)

// CompileError reports an effect whose generated program failed to compile.
type CompileError struct {
	EffectID string
	Log      string // Compiler output
	Source   []byte // Generated program
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("failed to compile effect %s: %s", e.EffectID, e.Log)
}

type compileFailure struct {
	body string
	err  *CompileError
}

// Program is a compiled effect together with the uniform names it declares.
type Program struct {
	id       string
	body     string
	shader   *ebiten.Shader
	uniforms map[string]bool

	// Undeclared uniforms already reported, so each is logged once.
	unbound map[string]bool
}

// EffectID returns the id of the effect the program was built from.
func (p *Program) EffectID() string { return p.id }

// HasUniform reports whether the program declares the named uniform.
func (p *Program) HasUniform(name string) bool { return p.uniforms[name] }

// FrameParams are the per-frame inputs to an effect. Progress is linear; the
// runtime eases it before binding.
type FrameParams struct {
	Progress    float64
	AspectRatio float64
	Smoothness  float64
	FadeColor   color.Color
}

// uniformValues builds the uniform map for one frame. Values the program does
// not declare are dropped.
func (p *Program) uniformValues(params FrameParams) map[string]any {
	all := map[string]any{
		UniformProgress:    float32(Ease(params.Progress)),
		UniformAspectRatio: float32(params.AspectRatio),
		UniformSmoothness:  float32(params.Smoothness),
		UniformFadeColor:   colorVec3(params.FadeColor),
	}

	out := make(map[string]any, len(all))
	for name, v := range all {
		if p.uniforms[name] {
			out[name] = v
			continue
		}
		if p.unbound == nil {
			p.unbound = make(map[string]bool)
		}
		if !p.unbound[name] {
			p.unbound[name] = true
			logging.Logger().Debug("uniform not declared by effect, skipping", "effect", p.id, "uniform", name)
		}
	}
	return out
}

func colorVec3(c color.Color) []float32 {
	if c == nil {
		return []float32{0, 0, 0}
	}
	r, g, b, _ := c.RGBA()
	return []float32{float32(r) / 0xffff, float32(g) / 0xffff, float32(b) / 0xffff}
}

// Runtime compiles effects into programs and draws them. Programs are cached
// per effect id. A Runtime is bound to the thread that owns the graphics
// context and is not safe for concurrent use.
type Runtime struct {
	programs map[string]*Program
	failures map[string]compileFailure

	active   *Program
	from, to *ebiten.Image
	uniforms map[string]any

	released bool
}

// NewRuntime creates an empty runtime.
func NewRuntime() *Runtime {
	return &Runtime{
		programs: make(map[string]*Program),
		failures: make(map[string]compileFailure),
	}
}

// Compile returns the program for d, building it on first use. A cached
// program is rebuilt when the descriptor body has changed. Failures are
// cached too, so a broken effect is not recompiled every frame.
func (r *Runtime) Compile(d *effects.Descriptor) (*Program, error) {
	if r.released {
		return nil, ErrReleased
	}
	if d == nil {
		return nil, errors.New("nil effect descriptor")
	}

	if p, ok := r.programs[d.ID]; ok {
		if p.body == d.Body {
			return p, nil
		}
		r.Evict(d.ID)
	}
	if f, ok := r.failures[d.ID]; ok {
		if f.body == d.Body {
			return nil, f.err
		}
		delete(r.failures, d.ID)
	}

	src := Assemble(d.Body)
	s, err := ebiten.NewShader(src)
	if err != nil {
		ce := &CompileError{EffectID: d.ID, Log: err.Error(), Source: src}
		r.failures[d.ID] = compileFailure{body: d.Body, err: ce}
		logging.Logger().Warn("effect failed to compile", "effect", d.ID, "error", err)
		return nil, ce
	}

	uniforms := make(map[string]bool)
	for _, name := range ReflectUniforms(src) {
		uniforms[name] = true
	}
	p := &Program{id: d.ID, body: d.Body, shader: s, uniforms: uniforms}
	r.programs[d.ID] = p
	logging.Logger().Debug("effect compiled", "effect", d.ID, "uniforms", len(uniforms))
	return p, nil
}

// Use makes p the program for subsequent BindFrame and Draw calls.
func (r *Runtime) Use(p *Program) {
	r.active = p
	r.uniforms = nil
}

// BindFrame sets the images and uniforms for the next Draw. Uniforms the
// active program does not declare are skipped.
func (r *Runtime) BindFrame(from, to *ebiten.Image, params FrameParams) {
	r.from, r.to = from, to
	if r.active == nil {
		r.uniforms = nil
		return
	}
	r.uniforms = r.active.uniformValues(params)
}

// Draw renders the active program over the whole of dst.
func (r *Runtime) Draw(dst *ebiten.Image) error {
	if r.released {
		return ErrReleased
	}
	if r.active == nil {
		return ErrNoProgram
	}
	if r.from == nil || r.to == nil || r.uniforms == nil {
		return ErrNoFrame
	}
	if r.from.Bounds().Size() != r.to.Bounds().Size() {
		return ErrSizeMismatch
	}

	dw, dh := dst.Bounds().Dx(), dst.Bounds().Dy()
	sb := r.from.Bounds()
	op := &ebiten.DrawTrianglesShaderOptions{}
	op.Images[0] = r.from
	op.Images[1] = r.to
	op.Uniforms = r.uniforms
	dst.DrawTrianglesShader(quad(0, 0, float32(dw), float32(dh),
		float32(sb.Min.X), float32(sb.Min.Y), float32(sb.Max.X), float32(sb.Max.Y)),
		quadIndices, r.active.shader, op)
	return nil
}

// Evict drops the cached program for id and frees its GPU resources.
func (r *Runtime) Evict(id string) {
	delete(r.failures, id)
	p, ok := r.programs[id]
	if !ok {
		return
	}
	delete(r.programs, id)
	if r.active == p {
		r.active = nil
		r.uniforms = nil
	}
	p.shader.Deallocate()
}

// Len returns the number of cached programs.
func (r *Runtime) Len() int {
	return len(r.programs)
}

// Release frees every program. The runtime cannot be used afterwards.
// Calling Release more than once is a no-op.
func (r *Runtime) Release() {
	if r.released {
		return
	}
	for id := range r.programs {
		r.Evict(id)
	}
	r.from, r.to = nil, nil
	r.released = true
}

var quadIndices = []uint16{0, 1, 2, 1, 3, 2}

// quad maps the destination rectangle (dx0,dy0)-(dx1,dy1) onto the source
// rectangle (sx0,sy0)-(sx1,sy1).
func quad(dx0, dy0, dx1, dy1, sx0, sy0, sx1, sy1 float32) []ebiten.Vertex {
	return []ebiten.Vertex{
		{DstX: dx0, DstY: dy0, SrcX: sx0, SrcY: sy0, ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1},
		{DstX: dx1, DstY: dy0, SrcX: sx1, SrcY: sy0, ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1},
		{DstX: dx0, DstY: dy1, SrcX: sx0, SrcY: sy1, ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1},
		{DstX: dx1, DstY: dy1, SrcX: sx1, SrcY: sy1, ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1},
	}
}
