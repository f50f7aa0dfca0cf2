package player

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/user-none/slidefx/config"
)

type frameJob struct {
	n   int
	img *image.RGBA
}

// frameWriter encodes and writes numbered PNG frames on worker goroutines.
// Frame buffers are recycled once written.
type frameWriter struct {
	dir  string
	jobs chan frameJob
	wg   sync.WaitGroup

	poolMu sync.Mutex
	pool   []*image.RGBA

	mu      sync.Mutex
	err     error
	written int
	closed  bool
}

// newFrameWriter creates dir and starts workers writers.
func newFrameWriter(dir string, workers int) (*frameWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	if workers < 1 {
		workers = 1
	}
	w := &frameWriter{
		dir:  dir,
		jobs: make(chan frameJob, workers*2),
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.run()
	}
	return w, nil
}

func (w *frameWriter) run() {
	defer w.wg.Done()
	for job := range w.jobs {
		err := w.write(job)
		w.recycle(job.img)

		w.mu.Lock()
		if err != nil && w.err == nil {
			w.err = err
		}
		if err == nil {
			w.written++
		}
		w.mu.Unlock()
	}
}

func (w *frameWriter) write(job frameJob) error {
	data, err := encodeFrame(job.img, png.BestSpeed)
	if err != nil {
		return fmt.Errorf("frame %d: %w", job.n, err)
	}
	if err := config.AtomicWriteFile(filepath.Join(w.dir, frameName(job.n)), data); err != nil {
		return fmt.Errorf("frame %d: %w", job.n, err)
	}
	return nil
}

// Buffer returns a width×height image to fill, reusing a written frame's
// buffer when one is free.
func (w *frameWriter) Buffer(width, height int) *image.RGBA {
	w.poolMu.Lock()
	defer w.poolMu.Unlock()
	for len(w.pool) > 0 {
		img := w.pool[len(w.pool)-1]
		w.pool = w.pool[:len(w.pool)-1]
		if img.Rect.Dx() == width && img.Rect.Dy() == height {
			return img
		}
	}
	return image.NewRGBA(image.Rect(0, 0, width, height))
}

func (w *frameWriter) recycle(img *image.RGBA) {
	w.poolMu.Lock()
	w.pool = append(w.pool, img)
	w.poolMu.Unlock()
}

// Submit queues frame n for writing. It blocks while the workers are busy
// and returns the first write error seen so far.
func (w *frameWriter) Submit(n int, img *image.RGBA) error {
	if err := w.Err(); err != nil {
		return err
	}
	w.jobs <- frameJob{n: n, img: img}
	return nil
}

// Err returns the first write error.
func (w *frameWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Written returns how many frames reached disk.
func (w *frameWriter) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close waits for queued frames and returns the first write error. Calling
// it again returns the same error.
func (w *frameWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		w.mu.Unlock()
		close(w.jobs)
		w.wg.Wait()
	} else {
		w.mu.Unlock()
	}
	return w.Err()
}
