package compositor

import (
	"errors"
	"image/color"
	"math"
	"testing"
	"testing/fstest"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/user-none/slidefx/effects"
	"github.com/user-none/slidefx/preprocess"
	"github.com/user-none/slidefx/shader"
	"github.com/user-none/slidefx/timeline"
)

type drawCall struct {
	effect   string
	from, to *ebiten.Image
	progress float64
}

type fakeRuntime struct {
	fail     map[string]bool
	programs map[*shader.Program]string
	active   *shader.Program
	bound    drawCall
	draws    []drawCall
	drawErr  error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{fail: make(map[string]bool), programs: make(map[*shader.Program]string)}
}

func (f *fakeRuntime) Compile(d *effects.Descriptor) (*shader.Program, error) {
	if f.fail[d.ID] {
		return nil, &shader.CompileError{EffectID: d.ID, Log: "syntax error"}
	}
	p := &shader.Program{}
	f.programs[p] = d.ID
	return p, nil
}

func (f *fakeRuntime) Use(p *shader.Program) { f.active = p }

func (f *fakeRuntime) BindFrame(from, to *ebiten.Image, params shader.FrameParams) {
	f.bound = drawCall{from: from, to: to, progress: params.Progress}
}

func (f *fakeRuntime) Draw(dst *ebiten.Image) error {
	if f.drawErr != nil {
		return f.drawErr
	}
	call := f.bound
	call.effect = f.programs[f.active]
	f.draws = append(f.draws, call)
	return nil
}

func (f *fakeRuntime) last(t *testing.T) drawCall {
	t.Helper()
	if len(f.draws) == 0 {
		t.Fatal("nothing drawn")
	}
	return f.draws[len(f.draws)-1]
}

type fakeCatalog struct {
	byID      map[string]*effects.Descriptor
	defaultID string
}

func newFakeCatalog(ids ...string) *fakeCatalog {
	c := &fakeCatalog{byID: make(map[string]*effects.Descriptor), defaultID: "fade"}
	for _, id := range ids {
		c.byID[id] = &effects.Descriptor{ID: id, Name: id, Category: effects.CategoryFade}
	}
	return c
}

func (c *fakeCatalog) Get(id string) (*effects.Descriptor, bool) {
	d, ok := c.byID[id]
	return d, ok
}

func (c *fakeCatalog) Default() (*effects.Descriptor, error) {
	if d, ok := c.byID[c.defaultID]; ok {
		return d, nil
	}
	return nil, effects.ErrEmptyCatalog
}

type fakeTextures struct {
	tex      map[int]*ebiten.Image
	retained [2]int
}

func (f *fakeTextures) Texture(i int) (*ebiten.Image, bool) {
	img, ok := f.tex[i]
	return img, ok
}

func (f *fakeTextures) Retain(lo, hi int) { f.retained = [2]int{lo, hi} }

type fixture struct {
	rt       *fakeRuntime
	catalog  *fakeCatalog
	textures *fakeTextures
	comp     *Compositor
	tex0     *ebiten.Image
	tex1     *ebiten.Image
}

// newFixture builds two 3000ms clips with overlap 0.3: the transition into
// clip 1 runs from 1200ms to 3000ms.
func newFixture(t *testing.T, transition string) *fixture {
	t.Helper()
	sched, err := timeline.NewSchedule([]timeline.ClipSpec{
		{ImageDuration: 3 * time.Second, OverlapFraction: 0.3, TransitionID: transition},
		{ImageDuration: 3 * time.Second, OverlapFraction: 0.3},
	})
	if err != nil {
		t.Fatalf("NewSchedule() error = %v", err)
	}
	f := &fixture{
		rt:      newFakeRuntime(),
		catalog: newFakeCatalog("fade", "circle_open", "broken"),
		tex0:    new(ebiten.Image),
		tex1:    new(ebiten.Image),
	}
	f.textures = &fakeTextures{tex: map[int]*ebiten.Image{0: f.tex0, 1: f.tex1}}
	f.comp, err = New(f.rt, f.catalog, f.textures, sched, Params{AspectRatio: 16.0 / 9.0})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f
}

func TestRenderPhases(t *testing.T) {
	tests := []struct {
		name     string
		at       time.Duration
		effect   string
		toSecond bool
		from1    bool
		progress float64
	}{
		{"before transition", 600 * time.Millisecond, "fade", false, false, 0},
		{"transition start", 1200 * time.Millisecond, "circle_open", true, false, 0},
		{"mid transition", 2100 * time.Millisecond, "circle_open", true, false, 0.5},
		{"last clip passthrough", 4500 * time.Millisecond, "fade", false, true, 0},
		{"past the end", 10 * time.Second, "fade", false, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "circle_open")
			if err := f.comp.Render(nil, tt.at); err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			got := f.rt.last(t)
			if got.effect != tt.effect {
				t.Errorf("effect = %q, want %q", got.effect, tt.effect)
			}
			wantFrom, wantTo := f.tex0, f.tex0
			if tt.from1 {
				wantFrom, wantTo = f.tex1, f.tex1
			}
			if tt.toSecond {
				wantTo = f.tex1
			}
			if got.from != wantFrom || got.to != wantTo {
				t.Errorf("bound wrong images")
			}
			if math.Abs(got.progress-tt.progress) > 1e-9 {
				t.Errorf("progress = %f, want %f", got.progress, tt.progress)
			}
		})
	}
}

func TestRetainsCurrentAndNext(t *testing.T) {
	f := newFixture(t, "circle_open")
	if err := f.comp.Render(nil, 2*time.Second); err != nil {
		t.Fatal(err)
	}
	if f.textures.retained != [2]int{0, 1} {
		t.Errorf("Retain(%v), want [0 1]", f.textures.retained)
	}
}

func TestMissingEffectFallsBackToDefault(t *testing.T) {
	f := newFixture(t, "no_such_effect")
	for i := 0; i < 3; i++ {
		if err := f.comp.Render(nil, 2100*time.Millisecond); err != nil {
			t.Fatalf("Render() error = %v", err)
		}
	}
	got := f.rt.last(t)
	if got.effect != "fade" {
		t.Errorf("effect = %q, want fade", got.effect)
	}
	if got.to != f.tex1 || math.Abs(got.progress-0.5) > 1e-9 {
		t.Errorf("fallback should still transition, got %+v", got)
	}
	if s := f.comp.Stats(); s.Fallbacks != 3 || s.Frames != 3 {
		t.Errorf("Stats() = %+v", s)
	}
	if len(f.comp.fallbackLogged) != 1 {
		t.Errorf("fallback logged for %d ids, want 1", len(f.comp.fallbackLogged))
	}
}

func TestCompileFailureFallsBackToDefault(t *testing.T) {
	f := newFixture(t, "broken")
	f.rt.fail["broken"] = true
	if err := f.comp.Render(nil, 2100*time.Millisecond); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := f.rt.last(t); got.effect != "fade" {
		t.Errorf("effect = %q, want fade", got.effect)
	}
	if f.comp.Stats().Fallbacks != 1 {
		t.Errorf("Fallbacks = %d, want 1", f.comp.Stats().Fallbacks)
	}
}

func TestDefaultCompileFailure(t *testing.T) {
	f := newFixture(t, "broken")
	f.rt.fail["broken"] = true
	f.rt.fail["fade"] = true
	err := f.comp.Render(nil, 2100*time.Millisecond)
	if !errors.Is(err, ErrNoEffect) {
		t.Errorf("Render() error = %v, want ErrNoEffect", err)
	}
}

func TestHardCutWhenNextNotReady(t *testing.T) {
	f := newFixture(t, "circle_open")
	delete(f.textures.tex, 1)

	for i := 0; i < 2; i++ {
		if err := f.comp.Render(nil, 2100*time.Millisecond); err != nil {
			t.Fatalf("Render() error = %v", err)
		}
	}
	got := f.rt.last(t)
	if got.effect != "fade" || got.from != f.tex0 || got.to != f.tex0 || got.progress != 0 {
		t.Errorf("hard cut drew %+v", got)
	}
	if f.comp.Stats().HardCuts != 2 {
		t.Errorf("HardCuts = %d, want 2", f.comp.Stats().HardCuts)
	}
	if len(f.comp.hardCutLogged) != 1 {
		t.Errorf("hard cut logged %d times, want once", len(f.comp.hardCutLogged))
	}
}

func TestCurrentNotReady(t *testing.T) {
	f := newFixture(t, "circle_open")
	delete(f.textures.tex, 0)
	if err := f.comp.Render(nil, 0); !errors.Is(err, ErrNotReady) {
		t.Errorf("Render() error = %v, want ErrNotReady", err)
	}
	if len(f.rt.draws) != 0 {
		t.Error("drew without a texture")
	}
}

func TestUnreadableClipKeepsPlaying(t *testing.T) {
	f := newFixture(t, "circle_open")
	fsys := fstest.MapFS{
		"bad.jpg":  {Data: []byte("garbage")},
		"good.png": {Data: solidPNG(t, 16, 9, color.White)},
	}
	slots, _ := newTestSlots([]preprocess.Source{
		preprocess.FSSource{FS: fsys, Path: "bad.jpg"},
		preprocess.FSSource{FS: fsys, Path: "good.png"},
	}, 16, 9)
	slots.SetRaw(0)
	slots.SetRaw(1)
	f.comp.textures = slots

	if err := f.comp.Render(nil, 0); !errors.Is(err, ErrNotReady) {
		t.Fatalf("first Render() error = %v, want ErrNotReady while loading", err)
	}
	slots.wait()

	for _, at := range []time.Duration{0, 2100 * time.Millisecond, 4 * time.Second} {
		if err := f.comp.Render(nil, at); err != nil {
			t.Fatalf("Render(%v) error = %v", at, err)
		}
		slots.wait()
	}
	if slots.State(0) != SlotFailed || slots.Failed() != 1 {
		t.Errorf("clip 0 state = %v, Failed() = %d", slots.State(0), slots.Failed())
	}
	if f.comp.Stats().Frames != 3 {
		t.Errorf("Frames = %d, want 3", f.comp.Stats().Frames)
	}
}

func TestUseDefaultOnly(t *testing.T) {
	f := newFixture(t, "circle_open")
	f.comp.UseDefaultOnly(true)
	if err := f.comp.Render(nil, 2100*time.Millisecond); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	got := f.rt.last(t)
	if got.effect != "fade" || got.to != f.tex1 {
		t.Errorf("drew %+v, want the default effect into clip 1", got)
	}
	if f.comp.Stats().Fallbacks != 0 {
		t.Error("default-only draw counted as a fallback")
	}
}

func TestDrawErrorPropagates(t *testing.T) {
	f := newFixture(t, "circle_open")
	f.rt.drawErr = shader.ErrSizeMismatch
	if err := f.comp.Render(nil, 0); !errors.Is(err, shader.ErrSizeMismatch) {
		t.Errorf("Render() error = %v, want ErrSizeMismatch", err)
	}
	if f.comp.Stats().Frames != 0 {
		t.Error("failed draw counted as a frame")
	}
}

func TestNewWithEmptyCatalog(t *testing.T) {
	sched, _ := timeline.NewSchedule([]timeline.ClipSpec{{ImageDuration: time.Second}})
	_, err := New(newFakeRuntime(), newFakeCatalog(), &fakeTextures{}, sched, Params{})
	if !errors.Is(err, effects.ErrEmptyCatalog) {
		t.Errorf("New() error = %v, want ErrEmptyCatalog", err)
	}
}

func TestRefresh(t *testing.T) {
	f := newFixture(t, "circle_open")
	f.catalog.defaultID = "circle_open"
	if err := f.comp.Refresh(); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if f.comp.DefaultEffect().ID != "circle_open" {
		t.Errorf("DefaultEffect() = %q", f.comp.DefaultEffect().ID)
	}

	f.catalog.defaultID = "missing"
	if err := f.comp.Refresh(); !errors.Is(err, effects.ErrEmptyCatalog) {
		t.Errorf("Refresh() error = %v", err)
	}
	if f.comp.DefaultEffect().ID != "circle_open" {
		t.Error("failed Refresh() replaced the default")
	}
}

func TestComposeOutOfRange(t *testing.T) {
	f := newFixture(t, "circle_open")
	if err := f.comp.Compose(nil, timeline.Position{ClipIndex: 5}); err == nil {
		t.Error("Compose() with a bad clip index should fail")
	}
}
