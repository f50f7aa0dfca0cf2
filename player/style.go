package player

import (
	"bytes"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/user-none/slidefx/logging"
)

// Overlay colors
var (
	textColor          = color.NRGBA{0xff, 0xff, 0xff, 0xff}
	textSecondary      = color.NRGBA{0xaa, 0xaa, 0xaa, 0xff}
	accentColor        = color.NRGBA{0xff, 0xd7, 0x00, 0xff}
	overlayBackground  = color.NRGBA{0x1a, 0x1a, 0x2e, 0xff} // Alpha applied per use
	progressTrackColor = color.NRGBA{0x44, 0x44, 0x55, 0xff}
)

// Overlay sizes in logical pixels, multiplied by the device scale factor
const (
	baseFontSize      = 16
	baseOverlayPad    = 12
	baseOverlayMargin = 8
	baseProgressH     = 4
)

var (
	fontSource *text.GoTextFaceSource
	face       text.Face
	faceScale  float64
)

// fontFace returns the overlay font at scale, loading goregular on first use.
// The returned pointer is nil-safe to dereference only when the font loaded.
func fontFace(scale float64) *text.Face {
	if scale <= 0 {
		scale = 1
	}
	if fontSource == nil {
		source, err := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
		if err != nil {
			logging.Logger().Error("failed to load font source", "error", err)
			return nil
		}
		fontSource = source
	}
	if face == nil || faceScale != scale {
		face = &text.GoTextFace{
			Source: fontSource,
			Size:   baseFontSize * scale,
		}
		faceScale = scale
	}
	return &face
}

// px converts logical pixels to screen pixels.
func px(logical int, scale float64) int {
	if scale <= 0 {
		scale = 1
	}
	return int(float64(logical)*scale + 0.5)
}
