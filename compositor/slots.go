package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	xdraw "golang.org/x/image/draw"

	"github.com/user-none/slidefx/logging"
	"github.com/user-none/slidefx/preprocess"
)

// SlotState tracks what a clip's texture will be built from.
type SlotState int

const (
	SlotPending    SlotState = iota // Pre-pass has not reached the clip
	SlotNormalized                  // A normalized image is cached
	SlotRaw                         // Fall back to the source, letterboxed
	SlotFailed                      // Nothing could be read; drawn as a black placeholder
)

func (s SlotState) String() string {
	switch s {
	case SlotPending:
		return "pending"
	case SlotNormalized:
		return "normalized"
	case SlotRaw:
		return "raw"
	case SlotFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type slot struct {
	state SlotState
	path  string
	src   preprocess.Source
	tex   *ebiten.Image

	// Decoded image waiting for upload, and the load producing it
	img     image.Image
	loading bool
	gen     int
}

// Slots holds one output-sized texture per clip. Images are decoded on
// loader goroutines and only uploaded on the thread that owns the graphics
// context. A clip whose images cannot be read gets an opaque black
// placeholder so playback continues past it.
//
// State changes, Load and Ready are safe from any goroutine; Texture, Retain
// and Release must run on the graphics thread.
type Slots struct {
	mu    sync.Mutex
	slots []slot
	w, h  int
	wg    sync.WaitGroup

	// Swappable for tests
	upload  func(image.Image) *ebiten.Image
	release func(*ebiten.Image)
}

// NewSlots creates pending slots for sources, producing w×h textures.
func NewSlots(sources []preprocess.Source, w, h int) *Slots {
	s := &Slots{
		slots:   make([]slot, len(sources)),
		w:       w,
		h:       h,
		upload:  func(img image.Image) *ebiten.Image { return ebiten.NewImageFromImage(img) },
		release: func(img *ebiten.Image) { img.Deallocate() },
	}
	for i, src := range sources {
		s.slots[i].src = src
	}
	return s
}

// Len returns the number of slots.
func (s *Slots) Len() int {
	return len(s.slots)
}

// Size returns the texture size.
func (s *Slots) Size() (int, int) {
	return s.w, s.h
}

// SetNormalized records the cached normalized image for clip i.
func (s *Slots) SetNormalized(i int, path string) {
	s.setState(i, SlotNormalized, path)
}

// SetRaw makes clip i fall back to its source image.
func (s *Slots) SetRaw(i int) {
	s.setState(i, SlotRaw, "")
}

func (s *Slots) setState(i int, state SlotState, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.slots) {
		return
	}
	sl := &s.slots[i]
	sl.state = state
	sl.path = path
	s.drop(sl)
}

// drop frees the slot's texture and decoded image and orphans any load in
// flight. Callers hold mu.
func (s *Slots) drop(sl *slot) {
	if sl.tex != nil {
		s.release(sl.tex)
		sl.tex = nil
	}
	sl.img = nil
	if sl.loading {
		sl.loading = false
		sl.gen++
	}
}

// State returns the state of clip i.
func (s *Slots) State(i int) SlotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.slots) {
		return SlotFailed
	}
	return s.slots[i].state
}

// Prepared reports whether the pre-pass has settled clip i.
func (s *Slots) Prepared(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return i >= 0 && i < len(s.slots) && s.slots[i].state != SlotPending
}

// Ready reports whether Texture(i) will return an image without waiting on
// the pre-pass or a load.
func (s *Slots) Ready(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.slots) {
		return false
	}
	sl := &s.slots[i]
	return sl.tex != nil || sl.img != nil
}

// Failed returns how many clips are drawn from the placeholder.
func (s *Slots) Failed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.slots {
		if s.slots[i].state == SlotFailed {
			n++
		}
	}
	return n
}

// Load starts decoding the images of clips lo..hi that the pre-pass has
// settled and that are not resident or loading already.
func (s *Slots) Load(lo, hi int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := max(lo, 0); i <= hi && i < len(s.slots); i++ {
		s.startLoad(i)
	}
}

// startLoad launches the loader for clip i. Callers hold mu.
func (s *Slots) startLoad(i int) {
	sl := &s.slots[i]
	if sl.state == SlotPending || sl.loading || sl.tex != nil || sl.img != nil {
		return
	}
	sl.loading = true
	s.wg.Add(1)
	go s.load(i, sl.gen, sl.state, sl.path, sl.src)
}

// load decodes clip i off the graphics thread. A normalized image that
// cannot be read degrades the slot to its source; a source that cannot be
// read leaves the placeholder.
func (s *Slots) load(i, gen int, state SlotState, path string, src preprocess.Source) {
	defer s.wg.Done()

	var img image.Image
	if state == SlotNormalized {
		decoded, err := preprocess.Decode(preprocess.FileSource(path))
		if err == nil {
			img = s.fit(decoded)
		} else {
			logging.Logger().Warn("normalized image unreadable, using source", "clip", i, "error", err)
			state = SlotRaw
		}
	}
	if img == nil && state == SlotRaw {
		if src == nil {
			state = SlotFailed
		} else if decoded, err := preprocess.Decode(src); err != nil {
			logging.Logger().Warn("clip image unreadable, drawing placeholder", "clip", i, "source", src.Name(), "error", err)
			state = SlotFailed
		} else {
			img = s.fit(decoded)
		}
	}
	if img == nil {
		img = Letterbox(image.NewRGBA(image.Rectangle{}), s.w, s.h)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sl := &s.slots[i]
	if sl.gen != gen || !sl.loading {
		return
	}
	sl.loading = false
	sl.state = state
	sl.img = img
}

// Texture returns the texture for clip i. It uploads a decoded image when
// one is waiting; otherwise it starts a load and reports false until the
// load finishes.
func (s *Slots) Texture(i int) (*ebiten.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.slots) {
		return nil, false
	}
	sl := &s.slots[i]
	if sl.tex != nil {
		return sl.tex, true
	}
	if sl.img != nil {
		sl.tex = s.upload(sl.img)
		sl.img = nil
		return sl.tex, true
	}
	s.startLoad(i)
	return nil, false
}

// fit returns img unchanged when it already has the slot size, otherwise a
// letterboxed copy.
func (s *Slots) fit(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() == s.w && b.Dy() == s.h && b.Min == (image.Point{}) {
		return img
	}
	return Letterbox(img, s.w, s.h)
}

// Retain frees the images of every clip outside lo..hi and starts loading
// the clips inside it.
func (s *Slots) Retain(lo, hi int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		if i >= lo && i <= hi {
			s.startLoad(i)
			continue
		}
		s.drop(&s.slots[i])
	}
}

// Resident returns how many textures are loaded.
func (s *Slots) Resident() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.slots {
		if s.slots[i].tex != nil {
			n++
		}
	}
	return n
}

// Release frees every texture and waits for running loads. Slots stay
// usable and reload on demand.
func (s *Slots) Release() {
	s.Retain(0, -1)
	s.wg.Wait()
}

// wait blocks until every running load has finished.
func (s *Slots) wait() {
	s.wg.Wait()
}

// Letterbox scales img to fit w×h, centered on black.
func Letterbox(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return dst
	}
	scale, offX, offY := preprocess.ContainRect(b.Dx(), b.Dy(), w, h)
	rect := image.Rect(
		int(offX+0.5),
		int(offY+0.5),
		int(offX+float64(b.Dx())*scale+0.5),
		int(offY+float64(b.Dy())*scale+0.5),
	).Intersect(dst.Bounds())
	xdraw.ApproxBiLinear.Scale(dst, rect, img, b, xdraw.Over, nil)
	return dst
}
