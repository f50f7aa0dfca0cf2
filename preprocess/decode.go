package preprocess

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/user-none/slidefx/config"
)

// maxPixels rejects sources whose header claims an absurd size before the
// full decode allocates for it.
const maxPixels = 120 * 1000 * 1000

// headerPeek covers the metadata segments that precede a JPEG frame header.
const headerPeek = 64 * 1024

var ErrImageTooLarge = errors.New("image too large")

// Source is an image asset to normalize.
type Source interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// FileSource is a source on the local filesystem.
type FileSource string

func (f FileSource) Name() string { return string(f) }

func (f FileSource) Open() (io.ReadCloser, error) { return os.Open(string(f)) }

// FSSource is a source inside an fs.FS, such as an extracted bundle.
type FSSource struct {
	FS   fs.FS
	Path string
}

func (s FSSource) Name() string { return s.Path }

func (s FSSource) Open() (io.ReadCloser, error) { return s.FS.Open(s.Path) }

// Decode reads src with any registered image format.
func Decode(src Source) (image.Image, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", src.Name(), err)
	}
	defer rc.Close()

	r := bufio.NewReaderSize(rc, headerPeek)
	header, err := r.Peek(headerPeek)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read %s: %w", src.Name(), err)
	}
	cfg, _, err := image.DecodeConfig(&peekReader{buf: header})
	if err == nil && cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%s is %dx%d: %w", src.Name(), cfg.Width, cfg.Height, ErrImageTooLarge)
	}

	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", src.Name(), err)
	}
	return img, nil
}

// peekReader serves the peeked header to DecodeConfig without consuming the
// underlying reader. Formats whose config lies past the header fail here and
// are checked by the full decode instead.
type peekReader struct {
	buf []byte
	off int
}

func (p *peekReader) Read(b []byte) (int, error) {
	if p.off >= len(p.buf) {
		return 0, io.EOF
	}
	n := copy(b, p.buf[p.off:])
	p.off += n
	return n, nil
}

// orientTopLeft puts readback pixels into the top-left row order shared by
// every consumer. Ebitengine already reads back top row first.
func orientTopLeft(pix []byte, w, h int) []byte {
	return pix
}

// writePNG encodes img losslessly and replaces path atomically.
func writePNG(path string, img image.Image) error {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return config.AtomicWriteFile(path, buf.Bytes())
}
