package player

import (
	"errors"
	"fmt"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/user-none/slidefx/compositor"
	"github.com/user-none/slidefx/gpuloop"
	"github.com/user-none/slidefx/logging"
	"github.com/user-none/slidefx/session"
)

// Seek steps for the arrow keys
const (
	seekStep     = 2 * time.Second
	seekStepFine = 100 * time.Millisecond
)

// PreviewOptions configures the preview window.
type PreviewOptions struct {
	Title         string
	Width, Height int
	Loop          bool
	ShowInfo      bool
	ScreenshotDir string // Empty uses the config screenshot directory
}

// captureKind is a frame capture requested by a key press.
type captureKind int

const (
	captureNone captureKind = iota
	captureSave
	captureCopy
)

// Preview implements ebiten.Game for windowed playback.
type Preview struct {
	session *session.Session
	queue   *gpuloop.Queue
	prepare *prepareRun
	opts    PreviewOptions

	clock        *Clock
	notification *Notification
	hud          *hud
	showHUD      bool
	scale        float64

	frame    *ebiten.Image
	drawOpts ebiten.DrawImageOptions
	pending  captureKind
	rendered bool
	quit     bool

	// Render errors already logged, keyed by message
	errLogged map[string]bool
}

// RunPreview opens a window and plays s until it is closed or Esc is
// pressed. The pre-pass runs in the background and playback holds on clips
// that are not ready yet.
func RunPreview(s *session.Session, q *gpuloop.Queue, opts PreviewOptions) error {
	if opts.Title == "" {
		opts.Title = "slidefx"
	}
	ebiten.SetWindowTitle(opts.Title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(60)
	if opts.Width > 0 && opts.Height > 0 {
		ebiten.SetWindowSize(opts.Width, opts.Height)
	}
	ebiten.SetWindowSizeLimits(320, 180, -1, -1)

	p := newPreview(s, q, opts)
	p.prepare = startPrepare(s, q)
	err := runGame(p, q, p.prepare)
	p.release()
	return err
}

func newPreview(s *session.Session, q *gpuloop.Queue, opts PreviewOptions) *Preview {
	return &Preview{
		session:      s,
		queue:        q,
		opts:         opts,
		clock:        NewClock(s.Duration(), opts.Loop),
		notification: NewNotification(),
		showHUD:      opts.ShowInfo,
		scale:        1,
		errLogged:    make(map[string]bool),
	}
}

// Update implements ebiten.Game.
func (p *Preview) Update() error {
	p.queue.RunPending(tasksPerTick)

	p.handleKeys()
	if p.quit {
		return ebiten.Termination
	}

	pos := p.session.Schedule().Resolve(p.clock.Position())
	if p.session.Ready(pos.ClipIndex) && p.rendered {
		p.clock.Advance(time.Second / time.Duration(ebiten.TPS()))
	}

	if p.showHUD {
		p.updateHUD()
	}
	return nil
}

func (p *Preview) handleKeys() {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		p.quit = true
		return
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF11) {
		ebiten.SetFullscreen(!ebiten.IsFullscreen())
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		p.clock.TogglePause()
	}

	step := seekStep
	if ebiten.IsKeyPressed(ebiten.KeyShift) {
		step = seekStepFine
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowLeft) {
		p.clock.Seek(-step)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowRight) {
		p.clock.Seek(step)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyPageUp) {
		p.clock.SeekTo(clipJump(p.session.Schedule(), p.clock.Position(), false))
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyPageDown) {
		p.clock.SeekTo(clipJump(p.session.Schedule(), p.clock.Position(), true))
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyHome) {
		p.clock.SeekTo(0)
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		p.reloadEffects()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyS) {
		p.pending = captureSave
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyC) {
		p.pending = captureCopy
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyTab) || inpututil.IsKeyJustPressed(ebiten.KeyI) {
		p.showHUD = !p.showHUD
	}
}

func (p *Preview) reloadEffects() {
	n, err := p.session.ReloadEffects()
	if err != nil {
		logging.Logger().Warn("effect reload failed", "error", err)
		p.notification.ShowDefault("Effect reload failed: " + err.Error())
		return
	}
	clear(p.errLogged)
	p.notification.ShowDefault(fmt.Sprintf("Reloaded %d effects", n))
}

func (p *Preview) updateHUD() {
	if p.hud == nil || p.hud.scale != p.scale {
		p.hud = newHUD(p.scale)
		if p.hud == nil {
			p.showHUD = false
			return
		}
	}
	p.hud.Set(p.info())
	p.hud.Update()
}

// info collects the HUD fields for the current clock position.
func (p *Preview) info() hudInfo {
	s := p.session
	sched := s.Schedule()
	pos := sched.Resolve(p.clock.Position())
	timing, _ := sched.ClipAt(pos.ClipIndex)

	w, h := s.OutputSize()
	stats := s.Compositor().Stats()
	return hudInfo{
		Title:    p.opts.Title,
		Clip:     pos.ClipIndex,
		Clips:    sched.Len(),
		Effect:   timing.TransitionID,
		Phase:    pos.Phase.String(),
		Progress: pos.Linear,
		Clock:    formatClock(p.clock.Position()),
		Total:    formatClock(p.clock.Total()),
		Paused:   p.clock.Paused(),
		Tier:     s.Tier().String(),
		Size:     fmt.Sprintf("%dx%d", w, h),
		Prepared: preparedCount(s),
		Fallback: stats.Fallbacks,
		HardCuts: stats.HardCuts,
		Missing:  s.FailedAssets(),
	}
}

// Draw implements ebiten.Game.
func (p *Preview) Draw(screen *ebiten.Image) {
	w, h := p.session.OutputSize()
	if p.frame == nil {
		p.frame = ebiten.NewImage(w, h)
	}

	p.rendered = false
	err := p.session.Render(p.frame, p.clock.Position())
	switch {
	case err == nil:
		p.rendered = true
		drawFitted(screen, p.frame, &p.drawOpts)
		p.handleCapture()
	case errors.Is(err, compositor.ErrNotReady):
		drawCentered(screen, p.waitMessage(), p.scale)
	default:
		p.logRenderError(err)
		drawCentered(screen, "Cannot render frame: "+err.Error(), p.scale)
	}

	drawProgress(screen, p.progress(), p.scale)
	if p.showHUD && p.hud != nil {
		p.hud.Draw(screen)
	}
	p.notification.Draw(screen, p.scale)
}

func (p *Preview) waitMessage() string {
	if err := p.prepare.Err(); err != nil {
		return "Preparation failed: " + err.Error()
	}
	if p.session.Prepared(p.session.Schedule().Resolve(p.clock.Position()).ClipIndex) {
		return "Loading image"
	}
	return fmt.Sprintf("Preparing images %d/%d", preparedCount(p.session), p.session.Schedule().Len())
}

// preparedCount returns how many clips the pre-pass has settled.
func preparedCount(s *session.Session) int {
	n := 0
	for i := 0; i < s.Schedule().Len(); i++ {
		if s.Prepared(i) {
			n++
		}
	}
	return n
}

func (p *Preview) progress() float64 {
	total := p.clock.Total()
	if total <= 0 {
		return 0
	}
	return float64(p.clock.Position()) / float64(total)
}

func (p *Preview) logRenderError(err error) {
	msg := err.Error()
	if p.errLogged[msg] {
		return
	}
	p.errLogged[msg] = true
	logging.Logger().Error("render failed", "at", p.clock.Position(), "error", err)
}

// handleCapture reads the rendered frame back for a pending save or copy.
// Encoding and writing happen off the game loop.
func (p *Preview) handleCapture() {
	kind := p.pending
	if kind == captureNone {
		return
	}
	p.pending = captureNone

	img := readFrame(p.frame, nil)

	go func() {
		switch kind {
		case captureSave:
			path, err := saveFrame(img, p.opts.ScreenshotDir, time.Now())
			if err != nil {
				logging.Logger().Warn("frame save failed", "error", err)
				p.notification.ShowDefault("Save failed")
				return
			}
			logging.Logger().Info("frame saved", "path", path)
			p.notification.ShowDefault("Saved " + path)
		case captureCopy:
			if err := copyFrame(img); err != nil {
				logging.Logger().Warn("frame copy failed", "error", err)
				p.notification.ShowDefault("Copy failed")
				return
			}
			p.notification.ShowDefault("Frame copied")
		}
	}()
}

// Layout implements ebiten.Game.
func (p *Preview) Layout(outsideWidth, outsideHeight int) (int, int) {
	p.scale = deviceScale()
	return layout(outsideWidth, outsideHeight)
}

func (p *Preview) release() {
	if p.frame != nil {
		p.frame.Deallocate()
		p.frame = nil
	}
}
