package app

import (
	"context"
	"fmt"
	"log"
	"time"
)

// worker runs one loop in its own goroutine with its own cancel func, so the
// rig can stop loops one at a time.
type worker struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// spawn starts fn. A non-nil return is passed to onExit before done closes.
func spawn(parent context.Context, name string, fn func(context.Context) error, onExit func(error)) *worker {
	ctx, cancel := context.WithCancel(parent)
	w := &worker{name: name, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		w.err = fn(ctx)
		if w.err != nil && onExit != nil {
			onExit(w.err)
		}
	}()
	return w
}

// stop cancels the worker and waits up to timeout for it to return.
// A worker still running after timeout yields ErrShutdownTimeout.
func (w *worker) stop(timeout time.Duration) error {
	w.cancel()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-w.done:
		return nil
	case <-t.C:
		log.Printf("rig: %s loop did not stop within %v", w.name, timeout)
		return fmt.Errorf("%w: %s loop", ErrShutdownTimeout, w.name)
	}
}

// exited reports whether the goroutine has returned.
func (w *worker) exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}
