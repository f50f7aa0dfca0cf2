package player

import (
	"image"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/user-none/slidefx/preprocess"
)

// fitFrame returns the rectangle a w×h frame occupies when letterboxed into
// a screen of screenW×screenH.
func fitFrame(w, h, screenW, screenH int) image.Rectangle {
	if w <= 0 || h <= 0 || screenW <= 0 || screenH <= 0 {
		return image.Rectangle{}
	}
	scale, offX, offY := preprocess.ContainRect(w, h, screenW, screenH)
	return image.Rect(
		int(offX+0.5),
		int(offY+0.5),
		int(offX+float64(w)*scale+0.5),
		int(offY+float64(h)*scale+0.5),
	)
}

// drawFitted draws frame onto screen with aspect-ratio-preserving scaling.
func drawFitted(screen, frame *ebiten.Image, opts *ebiten.DrawImageOptions) {
	fb := frame.Bounds()
	sb := screen.Bounds()
	r := fitFrame(fb.Dx(), fb.Dy(), sb.Dx(), sb.Dy())
	if r.Empty() {
		return
	}

	*opts = ebiten.DrawImageOptions{}
	opts.GeoM.Scale(float64(r.Dx())/float64(fb.Dx()), float64(r.Dy())/float64(fb.Dy()))
	opts.GeoM.Translate(float64(r.Min.X), float64(r.Min.Y))
	opts.Filter = ebiten.FilterLinear
	screen.DrawImage(frame, opts)
}

// drawCentered draws message in the middle of screen.
func drawCentered(screen *ebiten.Image, message string, scale float64) {
	f := fontFace(scale)
	if f == nil {
		return
	}
	w, h := text.Measure(message, *f, 0)
	b := screen.Bounds()
	opts := &text.DrawOptions{}
	opts.GeoM.Translate((float64(b.Dx())-w)/2, (float64(b.Dy())-h)/2)
	opts.ColorScale.ScaleWithColor(textSecondary)
	text.Draw(screen, message, *f, opts)
}

// drawProgress draws a thin bar along the bottom of screen filled to
// fraction.
func drawProgress(screen *ebiten.Image, fraction float64, scale float64) {
	b := screen.Bounds()
	h := float32(px(baseProgressH, scale))
	y := float32(b.Dy()) - h
	fraction = max(0, min(fraction, 1))
	vector.DrawFilledRect(screen, 0, y, float32(b.Dx()), h, progressTrackColor, false)
	vector.DrawFilledRect(screen, 0, y, float32(float64(b.Dx())*fraction), h, accentColor, false)
}
