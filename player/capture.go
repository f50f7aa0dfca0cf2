package player

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"golang.design/x/clipboard"

	"github.com/user-none/slidefx/config"
)

var (
	clipboardOnce sync.Once
	clipboardErr  error
)

// readFrame copies img's pixels into dst, reallocating it when the size
// changed. It must run inside the game loop.
func readFrame(img *ebiten.Image, dst *image.RGBA) *image.RGBA {
	b := img.Bounds()
	if dst == nil || dst.Bounds().Dx() != b.Dx() || dst.Bounds().Dy() != b.Dy() {
		dst = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	img.ReadPixels(dst.Pix)
	return dst
}

// encodeFrame encodes img as PNG
func encodeFrame(img image.Image, level png.CompressionLevel) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: level}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// saveFrame writes img to the screenshot directory named by the current Unix
// time and returns the path.
func saveFrame(img image.Image, dir string, now time.Time) (string, error) {
	if dir == "" {
		var err error
		dir, err = config.GetScreenshotDir()
		if err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	data, err := encodeFrame(img, png.DefaultCompression)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.png", now.Unix()))
	if err := config.AtomicWriteFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// copyFrame places img on the system clipboard as a PNG. The clipboard is
// initialized on first use.
func copyFrame(img image.Image) error {
	clipboardOnce.Do(func() {
		clipboardErr = clipboard.Init()
	})
	if clipboardErr != nil {
		return fmt.Errorf("clipboard unavailable: %w", clipboardErr)
	}
	data, err := encodeFrame(img, png.BestSpeed)
	if err != nil {
		return err
	}
	clipboard.Write(clipboard.FmtImage, data)
	return nil
}
