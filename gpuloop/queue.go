// Package gpuloop runs work on the thread that owns the graphics context.
//
// Ebitengine only allows GPU calls from its game loop. Other goroutines
// submit work with Do and block; the game's Update drains the queue with
// RunPending.
package gpuloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned for work submitted to, or pending in, a closed queue.
var ErrClosed = errors.New("gpu queue closed")

type task struct {
	ctx     context.Context
	fn      func() error
	done    chan error
	started bool
	dropped bool
}

// Queue is a FIFO of GPU work. Safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	pending []*task
	closed  bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Do enqueues fn and waits for it to run. If ctx ends before fn starts, fn
// is skipped and ctx's error is returned. Once fn has started Do waits for
// it to finish, so resources fn creates are always cleaned up by fn itself.
func (q *Queue) Do(ctx context.Context, fn func() error) error {
	t := &task{ctx: ctx, fn: fn, done: make(chan error, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.pending = append(q.pending, t)
	q.mu.Unlock()

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
	}

	q.mu.Lock()
	if !t.started {
		t.dropped = true
		q.mu.Unlock()
		return ctx.Err()
	}
	q.mu.Unlock()
	return <-t.done
}

// RunPending runs up to budget queued tasks in FIFO order on the calling
// thread and returns how many ran. Tasks whose context already ended are
// completed with that error and do not count against the budget.
func (q *Queue) RunPending(budget int) int {
	ran := 0
	for ran < budget {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			break
		}
		t := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		if t.dropped {
			q.mu.Unlock()
			continue
		}
		if err := t.ctx.Err(); err != nil {
			t.dropped = true
			q.mu.Unlock()
			t.done <- err
			continue
		}
		t.started = true
		q.mu.Unlock()

		t.done <- run(t.fn)
		ran++
	}
	return ran
}

func run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gpu task panicked: %v", r)
		}
	}()
	return fn()
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close fails every pending task with ErrClosed and rejects new work.
func (q *Queue) Close() {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.closed = true
	q.mu.Unlock()

	for _, t := range pending {
		if !t.dropped {
			t.done <- ErrClosed
		}
	}
}
