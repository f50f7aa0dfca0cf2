// Package player drives a session from the Ebitengine game loop, either in a
// preview window or as a frame-by-frame PNG export.
package player

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/sqweek/dialog"

	"github.com/user-none/slidefx/gpuloop"
	"github.com/user-none/slidefx/logging"
)

// ErrCanceled is returned by ChooseProject and ChooseDirectory when the
// dialog is dismissed.
var ErrCanceled = errors.New("no project selected")

// tasksPerTick bounds the GPU queue work run by each Update.
const tasksPerTick = 1

// preparer is the part of a session that runs its pre-pass.
type preparer interface {
	Prepare(ctx context.Context, q *gpuloop.Queue) error
}

// prepareRun runs a session's pre-pass on its own goroutine while the game
// loop drains the queue.
type prepareRun struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func startPrepare(s preparer, q *gpuloop.Queue) *prepareRun {
	ctx, cancel := context.WithCancel(context.Background())
	r := &prepareRun{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		start := time.Now()
		err := s.Prepare(ctx, q)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, gpuloop.ErrClosed) {
			logging.Logger().Error("pre-pass failed", "error", err)
			r.err = err
			return
		}
		logging.Logger().Debug("pre-pass finished", "elapsed", time.Since(start))
	}()
	return r
}

// Finished reports whether the pre-pass goroutine has returned.
func (r *prepareRun) Finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Err returns the pre-pass error once it has finished.
func (r *prepareRun) Err() error {
	if !r.Finished() {
		return nil
	}
	return r.err
}

// stop cancels the pre-pass, releases anything blocked on the queue, and
// waits for the goroutine to return.
func (r *prepareRun) stop(q *gpuloop.Queue) {
	r.cancel()
	q.Close()
	<-r.done
}

// runGame runs game until it terminates, with the session's pre-pass going
// on in the background. The queue is closed on return.
func runGame(game ebiten.Game, q *gpuloop.Queue, run *prepareRun) error {
	err := ebiten.RunGame(game)
	run.stop(q)
	if errors.Is(err, ebiten.Termination) {
		return nil
	}
	return err
}

// ChooseProject asks for a project file or image archive with a native
// file dialog.
func ChooseProject() (string, error) {
	path, err := dialog.File().
		Title("Open Slideshow").
		Filter("Slideshow projects", "yaml", "yml").
		Filter("Image archives", "zip", "7z", "rar", "tar", "gz", "tgz").
		Load()
	if err != nil {
		if errors.Is(err, dialog.ErrCancelled) {
			return "", ErrCanceled
		}
		return "", fmt.Errorf("open dialog failed: %w", err)
	}
	return path, nil
}

// ChooseDirectory asks for an image folder with a native dialog.
func ChooseDirectory() (string, error) {
	path, err := dialog.Directory().
		Title("Select Image Folder").
		Browse()
	if err != nil {
		if errors.Is(err, dialog.ErrCancelled) {
			return "", ErrCanceled
		}
		return "", fmt.Errorf("folder dialog failed: %w", err)
	}
	return path, nil
}

// deviceScale returns the monitor's device scale factor, or 1.
func deviceScale() float64 {
	if m := ebiten.Monitor(); m != nil {
		return m.DeviceScaleFactor()
	}
	return 1
}

// layout implements the shared ebiten.Game Layout: the screen has device
// pixels.
func layout(outsideWidth, outsideHeight int) (int, int) {
	s := deviceScale()
	return int(float64(outsideWidth) * s), int(float64(outsideHeight) * s)
}
