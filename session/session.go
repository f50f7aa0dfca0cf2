// Package session wires one sequence to the engine: catalog, preprocessing,
// cache, schedule and compositor.
package session

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/user-none/slidefx/api"
	"github.com/user-none/slidefx/compositor"
	"github.com/user-none/slidefx/config"
	"github.com/user-none/slidefx/effects"
	"github.com/user-none/slidefx/gpuloop"
	"github.com/user-none/slidefx/imagecache"
	"github.com/user-none/slidefx/logging"
	"github.com/user-none/slidefx/preprocess"
	"github.com/user-none/slidefx/shader"
	"github.com/user-none/slidefx/timeline"
)

// Preprocessor builds normalized images. *preprocess.Preprocessor
// implements it.
type Preprocessor interface {
	Initialize() bool
	Preprocess(ctx context.Context, gpu preprocess.GPU, src preprocess.Source, outPath string, aspect float64, tier preprocess.Tier) bool
	Release()
}

// Progress reports one finished asset of the pre-pass.
type Progress struct {
	Done       int
	Total      int
	Source     string
	Normalized bool
}

// Option configures a Session.
type Option func(*Session)

// WithCacheRoot overrides the cache root from the config.
func WithCacheRoot(dir string) Option {
	return func(s *Session) { s.cacheRoot = dir }
}

// WithTier overrides the texture tier from the config.
func WithTier(t preprocess.Tier) Option {
	return func(s *Session) {
		s.tier = t
		s.tierSet = true
	}
}

// WithPreprocessor replaces the GPU preprocessor.
func WithPreprocessor(p Preprocessor) Option {
	return func(s *Session) { s.pre = p }
}

// WithProgress registers a callback for pre-pass progress. It is called on
// the goroutine running Prepare.
func WithProgress(fn func(Progress)) Option {
	return func(s *Session) { s.onProgress = fn }
}

type asset struct {
	src      preprocess.Source
	identify func() (imagecache.Asset, error)
}

// Session renders one sequence.
type Session struct {
	seq      api.Sequence
	store    *effects.Store
	schedule *timeline.Schedule
	cache    *imagecache.Cache
	pre      Preprocessor
	rt       *shader.Runtime
	slots    *compositor.Slots
	comp     *compositor.Compositor

	cacheRoot  string
	tier       preprocess.Tier
	tierSet    bool
	aspect     float64
	w, h       int
	assets     []asset
	onProgress func(Progress)

	closed bool
}

// New builds a session. It fails when the sequence has no clips, the
// catalog has no default effect, or the cache directory cannot be created.
func New(cfg *config.Config, seq api.Sequence, store *effects.Store, opts ...Option) (*Session, error) {
	s := &Session{seq: seq, store: store}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := store.Default(); err != nil {
		return nil, err
	}

	clips := seq.Clips()
	specs := make([]timeline.ClipSpec, len(clips))
	for i, c := range clips {
		specs[i] = timeline.ClipSpec{
			ImageDuration:   time.Duration(c.ImageDurationMs()) * time.Millisecond,
			OverlapFraction: c.TransitionOverlapFraction(),
			TransitionID:    c.TransitionID(),
		}
	}
	schedule, err := timeline.NewSchedule(specs)
	if err != nil {
		return nil, err
	}
	s.schedule = schedule

	if !s.tierSet {
		s.tier, err = preprocess.ParseTier(cfg.TextureTier)
		if err != nil {
			logging.Logger().Warn("unknown texture tier, using standard", "tier", cfg.TextureTier)
		}
	}
	s.aspect = seq.TargetAspectRatio()
	if s.aspect <= 0 {
		s.aspect = api.DefaultAspectRatio
	}
	s.w, s.h = preprocess.OutputSize(s.aspect, s.tier)

	s.assets = resolveAssets(seq, clips)
	sources := make([]preprocess.Source, len(s.assets))
	for i, a := range s.assets {
		sources[i] = a.src
	}

	if s.cacheRoot == "" {
		s.cacheRoot = cfg.CacheDir
	}
	if s.cacheRoot == "" {
		s.cacheRoot, err = config.GetCacheDir()
		if err != nil {
			return nil, err
		}
	}
	s.cache, err = imagecache.Open(s.cacheRoot)
	if err != nil {
		return nil, err
	}

	if s.pre == nil {
		s.pre = preprocess.New()
	}
	s.rt = shader.NewRuntime()
	s.slots = compositor.NewSlots(sources, s.w, s.h)
	s.comp, err = compositor.New(s.rt, store, s.slots, schedule, compositor.Params{
		AspectRatio: float64(s.w) / float64(s.h),
		Smoothness:  cfg.Smoothness,
		FadeColor:   cfg.FadeColorValue(),
	})
	if err != nil {
		s.cache.Close()
		return nil, err
	}

	logging.Logger().Info("session created",
		"clips", len(clips), "duration", schedule.Duration(), "size", fmt.Sprintf("%dx%d", s.w, s.h), "tier", s.tier)
	return s, nil
}

// resolveAssets maps each clip to its source, inside the sequence's asset
// filesystem when it has one.
func resolveAssets(seq api.Sequence, clips []api.Clip) []asset {
	var fsys fs.FS
	prefix := "assets"
	if r, ok := seq.(api.AssetResolver); ok {
		fsys = r.AssetFS()
	}
	if t, ok := seq.(api.Titled); ok {
		prefix = t.Title()
	}

	out := make([]asset, len(clips))
	for i, c := range clips {
		name := c.ImageSource()
		if fsys != nil {
			out[i] = asset{
				src:      preprocess.FSSource{FS: fsys, Path: name},
				identify: func() (imagecache.Asset, error) { return imagecache.StatFS(fsys, prefix, name) },
			}
			continue
		}
		out[i] = asset{
			src:      preprocess.FileSource(name),
			identify: func() (imagecache.Asset, error) { return imagecache.Stat(name) },
		}
	}
	return out
}

// Prepare runs the pre-pass: every asset is normalized in order. Decoding
// and cache writes run on the calling goroutine; only GPU passes go through
// q. Assets that fail fall back to their source. When normalization is
// unavailable every transition uses the default effect. Cancellation stops
// between assets and returns the context's error.
func (s *Session) Prepare(ctx context.Context, q *gpuloop.Queue) error {
	var ok bool
	if err := q.Do(ctx, func() error {
		ok = s.pre.Initialize()
		if !ok {
			s.comp.UseDefaultOnly(true)
		}
		return nil
	}); err != nil {
		return err
	}
	if !ok {
		logging.Logger().Warn("preprocessing unavailable, using source images with the default effect")
		for i := range s.assets {
			s.slots.SetRaw(i)
			s.report(i, false)
		}
		return nil
	}

	start := time.Now()
	normalized := 0
	for i, a := range s.assets {
		if err := ctx.Err(); err != nil {
			return err
		}

		id, err := a.identify()
		if err != nil {
			logging.Logger().Warn("asset unavailable", "source", a.src.Name(), "error", err)
			s.slots.SetRaw(i)
			s.report(i, false)
			continue
		}
		key := imagecache.Key(id, s.aspect, s.tier.String())
		if path, hit := s.cache.Lookup(key); hit {
			s.slots.SetNormalized(i, path)
			normalized++
			s.report(i, true)
			continue
		}

		out := s.cache.Path(key)
		gpu := func(fn func() error) error { return q.Do(ctx, fn) }
		if !s.pre.Preprocess(ctx, gpu, a.src, out, s.aspect, s.tier) {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.slots.SetRaw(i)
			s.report(i, false)
			continue
		}
		s.slots.SetNormalized(i, out)
		normalized++
		s.report(i, true)
	}

	logging.Logger().Info("session prepared",
		"assets", len(s.assets), "normalized", normalized, "elapsed", time.Since(start))
	return nil
}

func (s *Session) report(i int, normalized bool) {
	if s.onProgress == nil {
		return
	}
	s.onProgress(Progress{
		Done:       i + 1,
		Total:      len(s.assets),
		Source:     s.assets[i].src.Name(),
		Normalized: normalized,
	})
}

// Render draws the frame at clock t into dst, which should have the output
// size.
func (s *Session) Render(dst *ebiten.Image, t time.Duration) error {
	return s.comp.Render(dst, t)
}

// ReloadEffects re-reads the effect catalog and returns the new effect
// count. Programs rebuild on next use when their source changed.
func (s *Session) ReloadEffects() (int, error) {
	n := s.store.Reload()
	if err := s.comp.Refresh(); err != nil {
		return n, err
	}
	return n, nil
}

// Schedule returns the clip timings.
func (s *Session) Schedule() *timeline.Schedule { return s.schedule }

// Duration returns the total running time.
func (s *Session) Duration() time.Duration { return s.schedule.Duration() }

// OutputSize returns the frame size Render expects.
func (s *Session) OutputSize() (int, int) { return s.w, s.h }

// Tier returns the texture tier in use.
func (s *Session) Tier() preprocess.Tier { return s.tier }

// Prepared reports whether the pre-pass has settled clip i.
func (s *Session) Prepared(i int) bool { return s.slots.Prepared(i) }

// Ready reports whether clip i's image is loaded and can be drawn without
// waiting.
func (s *Session) Ready(i int) bool { return s.slots.Ready(i) }

// Preload starts loading the images of clips lo..hi off the graphics
// thread.
func (s *Session) Preload(lo, hi int) { s.slots.Load(lo, hi) }

// FailedAssets returns how many clips are drawn from a placeholder because
// their images could not be read.
func (s *Session) FailedAssets() int { return s.slots.Failed() }

// Compositor exposes draw statistics and the resolved default effect.
func (s *Session) Compositor() *compositor.Compositor { return s.comp }

// Close releases GPU resources and deletes the cache directory. It must run
// on the thread that owns the graphics context, or after the loop ended.
// Calling it again is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.slots.Release()
	s.rt.Release()
	s.pre.Release()
	return s.cache.Close()
}
