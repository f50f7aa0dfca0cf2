package player

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/user-none/slidefx/config"
	"github.com/user-none/slidefx/gpuloop"
	"github.com/user-none/slidefx/logging"
	"github.com/user-none/slidefx/session"
	"github.com/user-none/slidefx/timeline"
)

// ErrExportCanceled is returned when the export window is closed early.
var ErrExportCanceled = errors.New("export canceled")

// ExportOptions configures a PNG sequence export.
type ExportOptions struct {
	Dir     string // Empty uses a timestamped directory under the config export directory
	FPS     int
	Title   string
	Workers int // PNG encoders; 0 uses one per CPU
}

// ExportResult describes a finished export.
type ExportResult struct {
	Dir     string
	Frames  int
	Elapsed time.Duration
}

// Exporter implements ebiten.Game, rendering one frame per tick and handing
// it to the frame writer.
type Exporter struct {
	session *session.Session
	queue   *gpuloop.Queue
	prepare *prepareRun
	writer  *frameWriter

	fps   int
	total int
	next  int

	frame    *ebiten.Image
	drawOpts ebiten.DrawImageOptions
	scale    float64
	canceled bool
	waiting  bool
}

// RunExport renders every frame of s at opts.FPS into a numbered PNG
// sequence. Frames wait for their clips' normalized images while the
// pre-pass is running.
func RunExport(s *session.Session, q *gpuloop.Queue, opts ExportOptions) (ExportResult, error) {
	if opts.FPS <= 0 {
		return ExportResult{}, fmt.Errorf("invalid export fps %d", opts.FPS)
	}
	dir, err := exportDir(opts.Dir, time.Now())
	if err != nil {
		return ExportResult{}, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	writer, err := newFrameWriter(dir, workers)
	if err != nil {
		return ExportResult{}, err
	}

	title := "Exporting"
	if opts.Title != "" {
		title += ": " + opts.Title
	}
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(120)
	w, h := s.OutputSize()
	ebiten.SetWindowSize(max(w/2, 320), max(h/2, 180))

	e := &Exporter{
		session: s,
		queue:   q,
		writer:  writer,
		fps:     opts.FPS,
		total:   s.Schedule().FrameCount(opts.FPS),
		scale:   1,
	}
	logging.Logger().Info("export started", "dir", dir, "frames", e.total, "fps", e.fps)

	start := time.Now()
	e.prepare = startPrepare(s, q)
	runErr := runGame(e, q, e.prepare)
	if e.frame != nil {
		e.frame.Deallocate()
	}
	writeErr := writer.Close()

	res := ExportResult{Dir: dir, Frames: writer.Written(), Elapsed: time.Since(start)}
	switch {
	case runErr != nil:
		return res, runErr
	case writeErr != nil:
		return res, writeErr
	case e.canceled || e.next < e.total:
		return res, ErrExportCanceled
	}
	logging.Logger().Info("export finished", "dir", dir, "frames", res.Frames, "elapsed", res.Elapsed)
	return res, nil
}

// exportDir returns dir, or a new timestamped directory under the config
// export directory when dir is empty.
func exportDir(dir string, now time.Time) (string, error) {
	if dir != "" {
		return dir, nil
	}
	base, err := config.GetExportDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, now.Format("20060102-150405")), nil
}

// Update implements ebiten.Game.
func (e *Exporter) Update() error {
	e.queue.RunPending(tasksPerTick)

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		e.canceled = true
		return ebiten.Termination
	}
	if e.next >= e.total {
		return ebiten.Termination
	}

	t := timeline.FrameTime(e.next, e.fps)
	lo, hi := clipsAt(e.session.Schedule(), t)
	e.session.Preload(lo, hi)
	ready, settled := e.clipsReady(lo, hi)
	e.waiting = holdFrame(ready, settled, e.prepare.Finished())
	if e.waiting {
		return nil
	}

	w, h := e.session.OutputSize()
	if e.frame == nil {
		e.frame = ebiten.NewImage(w, h)
	}
	if err := e.session.Render(e.frame, t); err != nil {
		return fmt.Errorf("frame %d: %w", e.next, err)
	}
	buf := e.writer.Buffer(w, h)
	e.frame.ReadPixels(buf.Pix)
	if err := e.writer.Submit(e.next, buf); err != nil {
		return err
	}
	e.next++
	return nil
}

// clipsReady reports whether clips lo..hi are loaded, and whether the
// pre-pass has settled all of them so a load is on its way.
func (e *Exporter) clipsReady(lo, hi int) (ready, settled bool) {
	ready, settled = true, true
	for i := lo; i <= hi; i++ {
		if !e.session.Ready(i) {
			ready = false
		}
		if !e.session.Prepared(i) {
			settled = false
		}
	}
	return ready, settled
}

// holdFrame reports whether the exporter waits on a frame: its clips are not
// loaded yet and either a load is running or the pre-pass may still settle
// them.
func holdFrame(ready, settled, prepareDone bool) bool {
	return !ready && (settled || !prepareDone)
}

// clipsAt returns the range of clips composed into the frame at t: the
// current clip, plus the next one while its transition is running.
func clipsAt(s *timeline.Schedule, t time.Duration) (int, int) {
	pos := s.Resolve(t)
	hi := pos.ClipIndex
	if (pos.Phase == timeline.PhaseIn || pos.Phase == timeline.PhaseAfter) && hi+1 < s.Len() {
		hi++
	}
	return pos.ClipIndex, hi
}

// Draw implements ebiten.Game.
func (e *Exporter) Draw(screen *ebiten.Image) {
	if e.frame != nil && e.next > 0 {
		drawFitted(screen, e.frame, &e.drawOpts)
	}
	msg := fmt.Sprintf("Exporting frame %d/%d", e.next, e.total)
	if e.waiting {
		msg = fmt.Sprintf("Preparing images %d/%d", preparedCount(e.session), e.session.Schedule().Len())
	}
	drawCentered(screen, msg, e.scale)

	fraction := 0.0
	if e.total > 0 {
		fraction = float64(e.next) / float64(e.total)
	}
	drawProgress(screen, fraction, e.scale)
}

// Layout implements ebiten.Game.
func (e *Exporter) Layout(outsideWidth, outsideHeight int) (int, int) {
	e.scale = deviceScale()
	return layout(outsideWidth, outsideHeight)
}
