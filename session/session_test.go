package session

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/user-none/slidefx/api"
	"github.com/user-none/slidefx/compositor"
	"github.com/user-none/slidefx/config"
	"github.com/user-none/slidefx/effects"
	"github.com/user-none/slidefx/gpuloop"
	"github.com/user-none/slidefx/preprocess"
	"github.com/user-none/slidefx/timeline"
)

// fakePreprocessor writes a placeholder file for every source whose name
// does not contain "bad".
type fakePreprocessor struct {
	mu       sync.Mutex
	initOK   bool
	inits    int
	calls    []string
	gpuRuns  int
	released int

	// Signaled when Preprocess starts, before its GPU pass
	entered chan struct{}
}

func (f *fakePreprocessor) Initialize() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.initOK
}

func (f *fakePreprocessor) Preprocess(ctx context.Context, gpu preprocess.GPU, src preprocess.Source, outPath string, aspect float64, tier preprocess.Tier) bool {
	f.mu.Lock()
	f.calls = append(f.calls, src.Name())
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if strings.Contains(src.Name(), "bad") {
		return false
	}
	err := gpu(func() error {
		f.mu.Lock()
		f.gpuRuns++
		f.mu.Unlock()
		return nil
	})
	if err != nil {
		return false
	}
	return os.WriteFile(outPath, []byte("normalized"), 0644) == nil
}

func (f *fakePreprocessor) Release() { f.released++ }

// drain runs the queue until done is closed, like a game loop would.
func drain(q *gpuloop.Queue, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		q.RunPending(1)
		time.Sleep(time.Millisecond)
	}
}

func startQueue(t *testing.T) *gpuloop.Queue {
	t.Helper()
	q := gpuloop.NewQueue()
	done := make(chan struct{})
	go drain(q, done)
	t.Cleanup(func() {
		close(done)
		q.Close()
	})
	return q
}

func writeImages(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func sequence(dir string, names ...string) *api.StaticSequence {
	seq := &api.StaticSequence{Aspect: 16.0 / 9.0}
	for _, name := range names {
		seq.Items = append(seq.Items, api.StaticClip{
			Source:     filepath.Join(dir, name),
			DurationMs: 3000,
			Transition: "circle_open",
			Overlap:    0.3,
		})
	}
	return seq
}

func newSession(t *testing.T, seq api.Sequence, pre Preprocessor, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithCacheRoot(t.TempDir()), WithPreprocessor(pre)}, opts...)
	s, err := New(config.DefaultConfig(), seq, effects.NewStore(), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewEmptyCatalog(t *testing.T) {
	dir := writeImages(t, "a.png")
	store := effects.NewStore(effects.WithoutBuiltins())
	_, err := New(config.DefaultConfig(), sequence(dir, "a.png"), store,
		WithCacheRoot(t.TempDir()), WithPreprocessor(&fakePreprocessor{}))
	if !errors.Is(err, effects.ErrEmptyCatalog) {
		t.Errorf("New() error = %v, want ErrEmptyCatalog", err)
	}
}

func TestNewNoClips(t *testing.T) {
	_, err := New(config.DefaultConfig(), &api.StaticSequence{}, effects.NewStore(),
		WithCacheRoot(t.TempDir()), WithPreprocessor(&fakePreprocessor{}))
	if !errors.Is(err, timeline.ErrNoClips) {
		t.Errorf("New() error = %v, want ErrNoClips", err)
	}
}

func TestNewGeometry(t *testing.T) {
	dir := writeImages(t, "a.png", "b.png")
	seq := sequence(dir, "a.png", "b.png")
	seq.Aspect = 1

	s := newSession(t, seq, &fakePreprocessor{}, WithTier(preprocess.TierPreview))
	if w, h := s.OutputSize(); w != 720 || h != 720 {
		t.Errorf("OutputSize() = %dx%d, want 720x720", w, h)
	}
	if s.Duration() != 6*time.Second {
		t.Errorf("Duration() = %v, want 6s", s.Duration())
	}
	timing, _ := s.Schedule().ClipAt(0)
	if timing.TransitionDuration != 1800*time.Millisecond {
		t.Errorf("TransitionDuration = %v, want 1.8s", timing.TransitionDuration)
	}
	if s.Compositor().DefaultEffect().ID != "fade" {
		t.Errorf("default effect = %q", s.Compositor().DefaultEffect().ID)
	}
}

func TestNewTierFromConfig(t *testing.T) {
	dir := writeImages(t, "a.png")
	cfg := config.DefaultConfig()
	cfg.TextureTier = "export"
	cfg.CacheDir = t.TempDir()

	s, err := New(cfg, sequence(dir, "a.png"), effects.NewStore(), WithPreprocessor(&fakePreprocessor{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()
	if s.Tier() != preprocess.TierExport {
		t.Errorf("Tier() = %v, want export", s.Tier())
	}
	if !strings.HasPrefix(s.cache.Dir(), cfg.CacheDir) {
		t.Errorf("cache dir %q not under %q", s.cache.Dir(), cfg.CacheDir)
	}
}

func TestPrepare(t *testing.T) {
	dir := writeImages(t, "a.png", "bad.png")
	pre := &fakePreprocessor{initOK: true}
	var progress []Progress
	s := newSession(t, sequence(dir, "a.png", "bad.png", "missing.png"), pre,
		WithProgress(func(p Progress) { progress = append(progress, p) }))

	if err := s.Prepare(t.Context(), startQueue(t)); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	want := []compositor.SlotState{compositor.SlotNormalized, compositor.SlotRaw, compositor.SlotRaw}
	for i, st := range want {
		if got := s.slots.State(i); got != st {
			t.Errorf("clip %d state = %v, want %v", i, got, st)
		}
		if !s.Prepared(i) {
			t.Errorf("clip %d not prepared", i)
		}
	}

	if len(progress) != 3 {
		t.Fatalf("progress reports = %d, want 3", len(progress))
	}
	for i, p := range progress {
		if p.Done != i+1 || p.Total != 3 {
			t.Errorf("progress[%d] = %+v", i, p)
		}
	}
	if !progress[0].Normalized || progress[1].Normalized || progress[2].Normalized {
		t.Errorf("progress normalized flags = %v %v %v", progress[0].Normalized, progress[1].Normalized, progress[2].Normalized)
	}

	// The missing file never reaches the preprocessor.
	if len(pre.calls) != 2 {
		t.Errorf("Preprocess calls = %v, want 2", pre.calls)
	}
	if s.cache.Len() != 1 {
		t.Errorf("cache holds %d images, want 1", s.cache.Len())
	}
}

func TestPrepareReusesCachedImages(t *testing.T) {
	dir := writeImages(t, "a.png")
	pre := &fakePreprocessor{initOK: true}
	s := newSession(t, sequence(dir, "a.png", "a.png", "a.png"), pre)

	if err := s.Prepare(t.Context(), startQueue(t)); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(pre.calls) != 1 {
		t.Errorf("Preprocess calls = %d, want 1", len(pre.calls))
	}
	for i := 0; i < 3; i++ {
		if s.slots.State(i) != compositor.SlotNormalized {
			t.Errorf("clip %d state = %v", i, s.slots.State(i))
		}
	}
}

func TestPrepareWithoutPreprocessing(t *testing.T) {
	dir := writeImages(t, "a.png", "b.png")
	pre := &fakePreprocessor{initOK: false}
	s := newSession(t, sequence(dir, "a.png", "b.png"), pre)

	if err := s.Prepare(t.Context(), startQueue(t)); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if s.slots.State(i) != compositor.SlotRaw {
			t.Errorf("clip %d state = %v, want raw", i, s.slots.State(i))
		}
	}
	if len(pre.calls) != 0 {
		t.Errorf("Preprocess called %d times", len(pre.calls))
	}
	if !s.Compositor().DefaultOnly() {
		t.Error("transitions should fall back to the default effect without normalization")
	}
}

func TestPrepareKeepsDecodingOffTheQueue(t *testing.T) {
	dir := writeImages(t, "a.png")
	pre := &fakePreprocessor{initOK: true, entered: make(chan struct{}, 1)}
	s := newSession(t, sequence(dir, "a.png"), pre)

	q := gpuloop.NewQueue()
	defer q.Close()
	errc := make(chan error, 1)
	go func() { errc <- s.Prepare(t.Context(), q) }()

	runOne := func() {
		for q.RunPending(1) == 0 {
			time.Sleep(time.Millisecond)
		}
	}

	// Only Initialize has run on the queue, yet Preprocess has started.
	runOne()
	select {
	case <-pre.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("Preprocess did not start while the queue was idle")
	}
	if pre.inits != 1 {
		t.Errorf("Initialize calls = %d, want 1", pre.inits)
	}

	// The GPU pass is the only other queued work.
	runOne()
	if err := <-errc; err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if pre.gpuRuns != 1 {
		t.Errorf("GPU passes = %d, want 1", pre.gpuRuns)
	}
	if s.Compositor().DefaultOnly() {
		t.Error("default-only mode with working normalization")
	}
}

func TestPrepareCanceled(t *testing.T) {
	dir := writeImages(t, "a.png", "b.png")
	pre := &fakePreprocessor{initOK: true}
	s := newSession(t, sequence(dir, "a.png", "b.png"), pre)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := s.Prepare(ctx, startQueue(t)); !errors.Is(err, context.Canceled) {
		t.Fatalf("Prepare() error = %v, want context.Canceled", err)
	}
	if s.slots.State(0) != compositor.SlotPending {
		t.Errorf("clip 0 state = %v, want pending", s.slots.State(0))
	}
}

func TestPrepareCancelStopsBetweenAssets(t *testing.T) {
	dir := writeImages(t, "a.png", "b.png", "c.png")
	pre := &fakePreprocessor{initOK: true}
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	s := newSession(t, sequence(dir, "a.png", "b.png", "c.png"), pre,
		WithProgress(func(p Progress) {
			if p.Done == 1 {
				cancel()
			}
		}))

	if err := s.Prepare(ctx, startQueue(t)); !errors.Is(err, context.Canceled) {
		t.Fatalf("Prepare() error = %v, want context.Canceled", err)
	}
	if len(pre.calls) != 1 {
		t.Errorf("Preprocess calls = %d, want 1", len(pre.calls))
	}
	if s.slots.State(1) != compositor.SlotPending {
		t.Errorf("clip 1 state = %v, want pending", s.slots.State(1))
	}
}

func TestPrepareFromAssetFS(t *testing.T) {
	fsys := fstest.MapFS{"img/a.png": {Data: []byte("a")}}
	seq := &assetSequence{
		StaticSequence: api.StaticSequence{
			Items:  []api.StaticClip{{Source: "img/a.png", DurationMs: 1000}},
			Aspect: 1,
		},
		fsys: fsys,
	}
	pre := &fakePreprocessor{initOK: true}
	s := newSession(t, seq, pre)

	if err := s.Prepare(t.Context(), startQueue(t)); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(pre.calls) != 1 || pre.calls[0] != "img/a.png" {
		t.Errorf("Preprocess calls = %v", pre.calls)
	}
	if s.slots.State(0) != compositor.SlotNormalized {
		t.Errorf("state = %v", s.slots.State(0))
	}
}

type assetSequence struct {
	api.StaticSequence
	fsys fstest.MapFS
}

func (a *assetSequence) AssetFS() fs.FS { return a.fsys }

func TestClose(t *testing.T) {
	dir := writeImages(t, "a.png")
	pre := &fakePreprocessor{initOK: true}
	s, err := New(config.DefaultConfig(), sequence(dir, "a.png"), effects.NewStore(),
		WithCacheRoot(t.TempDir()), WithPreprocessor(pre))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Prepare(t.Context(), startQueue(t)); err != nil {
		t.Fatal(err)
	}
	cacheDir := s.cache.Dir()

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := os.Stat(cacheDir); !os.IsNotExist(err) {
		t.Error("cache directory survived Close()")
	}
	if pre.released != 1 {
		t.Errorf("preprocessor released %d times, want 1", pre.released)
	}
}

func TestReloadEffects(t *testing.T) {
	dir := writeImages(t, "a.png")
	s := newSession(t, sequence(dir, "a.png"), &fakePreprocessor{})
	n, err := s.ReloadEffects()
	if err != nil {
		t.Fatalf("ReloadEffects() error = %v", err)
	}
	if n < 40 {
		t.Errorf("ReloadEffects() = %d effects", n)
	}
}
