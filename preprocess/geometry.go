package preprocess

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// decimationFactor returns the smallest power of two that brings the longer
// side of a w×h image down to at most limit.
func decimationFactor(w, h, limit int) int {
	if limit <= 0 {
		return 1
	}
	long := w
	if h > long {
		long = h
	}
	f := 1
	for long/f > limit {
		f *= 2
	}
	return f
}

// Decimate downsamples img by the power-of-two factor that fits its longer
// side within limit. Images already small enough are converted to RGBA but
// not resampled.
func Decimate(img image.Image, limit int) *image.RGBA {
	b := img.Bounds()
	f := decimationFactor(b.Dx(), b.Dy(), limit)
	w, h := b.Dx()/f, b.Dy()/f
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if f == 1 {
		xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
		return dst
	}
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// coverSpan returns the fraction of the source visible along each axis when
// a srcW×srcH image is scaled to cover dstW×dstH and center-cropped.
func coverSpan(srcW, srcH, dstW, dstH int) (float64, float64) {
	sx := float64(dstW) / float64(srcW)
	sy := float64(dstH) / float64(srcH)
	s := sx
	if sy > s {
		s = sy
	}
	return float64(dstW) / s / float64(srcW), float64(dstH) / s / float64(srcH)
}

// ContainRect returns the scale and top-left offset that fit a srcW×srcH
// image inside dstW×dstH, centered.
func ContainRect(srcW, srcH, dstW, dstH int) (scale, offX, offY float64) {
	sx := float64(dstW) / float64(srcW)
	sy := float64(dstH) / float64(srcH)
	scale = sx
	if sy < scale {
		scale = sy
	}
	offX = (float64(dstW) - float64(srcW)*scale) / 2
	offY = (float64(dstH) - float64(srcH)*scale) / 2
	return scale, offX, offY
}

// containSpan returns the fraction of the output covered by the fitted
// source along each axis.
func containSpan(srcW, srcH, dstW, dstH int) (float64, float64) {
	scale, _, _ := ContainRect(srcW, srcH, dstW, dstH)
	return float64(srcW) * scale / float64(dstW), float64(srcH) * scale / float64(dstH)
}
