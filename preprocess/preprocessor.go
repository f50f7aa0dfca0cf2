package preprocess

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"image"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/user-none/slidefx/logging"
)

//go:embed shaders/normalize.kage
var normalizeShaderSrc []byte

var ErrNotInitialized = errors.New("preprocessor not initialized")

// Stats counts Preprocess outcomes since the preprocessor was created.
type Stats struct {
	Processed int
	Failed    int
	Canceled  int
}

// GPU runs fn on the thread that owns the graphics context and returns its
// error, or the error that kept fn from running.
type GPU func(fn func() error) error

// Direct runs fn on the calling goroutine, for callers that already own the
// graphics context.
func Direct(fn func() error) error { return fn() }

// Preprocessor renders normalized images. The compiled program and the
// output buffer are pooled across calls. Initialize and Release must run on
// the thread that owns the graphics context; Preprocess runs on any single
// goroutine and hands only the GPU pass to its GPU.
type Preprocessor struct {
	shader *ebiten.Shader

	// Pooled output buffer (reused when dimensions match)
	output *ebiten.Image

	// GPU pass, swappable for tests
	pass func(src *image.RGBA, w, h int) ([]byte, error)

	stats Stats
}

// New creates a preprocessor. Call Initialize before Preprocess.
func New() *Preprocessor {
	p := &Preprocessor{}
	p.pass = p.render
	return p
}

// Initialize compiles the normalization program. It returns false when the
// program cannot be built; callers then play the sequence without
// normalized images. Calling it again after success is a no-op.
func (p *Preprocessor) Initialize() bool {
	if p.shader != nil {
		return true
	}
	s, err := ebiten.NewShader(normalizeShaderSrc)
	if err != nil {
		logging.Logger().Warn("preprocess program failed to compile", "error", err)
		return false
	}
	p.shader = s
	logging.Logger().Debug("preprocessor initialized")
	return true
}

// Preprocess writes the normalized image for src to outPath. Decoding,
// decimation and the PNG write happen on the calling goroutine; the GPU pass
// runs through gpu. It returns false on any failure, including
// cancellation; the caller falls back to the raw source for that asset.
func (p *Preprocessor) Preprocess(ctx context.Context, gpu GPU, src Source, outPath string, aspect float64, tier Tier) bool {
	err := p.run(ctx, gpu, src, outPath, aspect, tier)
	switch {
	case err == nil:
		p.stats.Processed++
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		p.stats.Canceled++
		logging.Logger().Debug("preprocessing canceled", "source", src.Name())
	default:
		p.stats.Failed++
		logging.Logger().Warn("preprocessing failed", "source", src.Name(), "error", err)
	}
	return false
}

func (p *Preprocessor) run(ctx context.Context, gpu GPU, src Source, outPath string, aspect float64, tier Tier) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	img, err := Decode(src)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w, h := OutputSize(aspect, tier)
	small := Decimate(img, tier.LongEdge())
	if err := ctx.Err(); err != nil {
		return err
	}

	var pix []byte
	if err := gpu(func() error {
		var err error
		pix, err = p.pass(small, w, h)
		return err
	}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out := &image.RGBA{
		Pix:    orientTopLeft(pix, w, h),
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
	return writePNG(outPath, out)
}

// render runs the normalization pass and reads the result back. The source
// texture lives only for this call.
func (p *Preprocessor) render(src *image.RGBA, w, h int) (pix []byte, err error) {
	if p.shader == nil {
		return nil, ErrNotInitialized
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gpu pass failed: %v", r)
		}
	}()

	in := ebiten.NewImageFromImage(src)
	defer in.Deallocate()
	p.ensureOutput(w, h)

	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()
	fillX, fillY := coverSpan(sw, sh, w, h)
	fitX, fitY := containSpan(sw, sh, w, h)

	op := &ebiten.DrawTrianglesShaderOptions{}
	op.Images[0] = in
	op.Uniforms = map[string]any{
		"FillSpan":   []float32{float32(fillX), float32(fillY)},
		"FitSpan":    []float32{float32(fitX), float32(fitY)},
		"BlurRadius": blurRadius(sw, sh),
	}
	p.output.DrawTrianglesShader(passVertices(w, h, sw, sh), passIndices, p.shader, op)

	pix = make([]byte, 4*w*h)
	p.output.ReadPixels(pix)
	return pix, nil
}

// ensureOutput ensures the pooled buffer is ready for the given dimensions.
func (p *Preprocessor) ensureOutput(w, h int) {
	if p.output != nil && p.output.Bounds().Dx() == w && p.output.Bounds().Dy() == h {
		p.output.Clear()
		return
	}
	if p.output != nil {
		p.output.Deallocate()
	}
	p.output = ebiten.NewImage(w, h)
}

// Stats returns the outcome counters.
func (p *Preprocessor) Stats() Stats {
	return p.stats
}

// Release frees the program and the pooled buffer. Safe to call more than
// once; Initialize may be called again afterwards.
func (p *Preprocessor) Release() {
	if p.output != nil {
		p.output.Deallocate()
		p.output = nil
	}
	if p.shader != nil {
		p.shader.Deallocate()
		p.shader = nil
	}
}

// blurRadius scales the background blur with the decimated source so every
// tier softens the fill by the same visual amount.
func blurRadius(srcW, srcH int) float32 {
	long := srcW
	if srcH > long {
		long = srcH
	}
	r := float32(long) / 48
	if r < 2 {
		r = 2
	}
	return r
}

var passIndices = []uint16{0, 1, 2, 1, 3, 2}

func passVertices(outW, outH, inW, inH int) []ebiten.Vertex {
	return []ebiten.Vertex{
		{DstX: 0, DstY: 0, SrcX: 0, SrcY: 0, ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1},
		{DstX: float32(outW), DstY: 0, SrcX: float32(inW), SrcY: 0, ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1},
		{DstX: 0, DstY: float32(outH), SrcX: 0, SrcY: float32(inH), ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1},
		{DstX: float32(outW), DstY: float32(outH), SrcX: float32(inW), SrcY: float32(inH), ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1},
	}
}
