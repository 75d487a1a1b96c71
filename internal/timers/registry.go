// internal/timers/registry.go

// Package timers owns every deferred continuation of the automation so that
// pause and stop can cancel all of them at once.
package timers

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCancelled is returned by Sleep when the registry cancelled the wait.
// It means the user took control; callers abort silently.
var ErrCancelled = errors.New("scheduled continuation cancelled")

// Handle identifies a scheduled continuation. The zero Handle is never issued.
type Handle uint64

type entry struct {
	timer     *time.Timer
	cancelled chan struct{}
}

// Registry tracks outstanding continuations. It is safe for concurrent use.
type Registry struct {
	logger *zap.Logger

	mu      sync.Mutex
	next    Handle
	pending map[Handle]*entry
	closed  bool

	running sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:  logger.Named("timers"),
		pending: make(map[Handle]*entry),
	}
}

// Schedule runs fn on its own goroutine after delay unless the continuation is
// cancelled first. After Close, Schedule returns the zero Handle and fn never runs.
func (r *Registry) Schedule(delay time.Duration, fn func()) Handle {
	h, _ := r.schedule(delay, fn)
	return h
}

func (r *Registry) schedule(delay time.Duration, fn func()) (Handle, *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, nil
	}
	r.next++
	h := r.next
	e := &entry{cancelled: make(chan struct{})}
	r.pending[h] = e
	e.timer = time.AfterFunc(delay, func() {
		if !r.claim(h) {
			return
		}
		defer r.running.Done()
		fn()
	})
	return h, e
}

// claim removes h from the pending set when it fires. A continuation that was
// cancelled between its timer firing and this call is not run.
func (r *Registry) claim(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[h]; !ok {
		return false
	}
	delete(r.pending, h)
	r.running.Add(1)
	return true
}

// Cancel cancels one continuation. It reports whether h was still pending.
func (r *Registry) Cancel(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pending[h]
	if !ok {
		return false
	}
	delete(r.pending, h)
	e.timer.Stop()
	close(e.cancelled)
	return true
}

// CancelAll cancels every pending continuation and returns how many there were.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.pending)
	for h, e := range r.pending {
		e.timer.Stop()
		close(e.cancelled)
		delete(r.pending, h)
	}
	if n > 0 {
		r.logger.Debug("Cancelled pending continuations.", zap.Int("count", n))
	}
	return n
}

// Pending returns the number of continuations that have not fired yet.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Sleep waits for d as a registered continuation. It returns nil when the
// delay elapsed, ErrCancelled when the registry cancelled it, and the
// context's error when ctx ended first.
func (r *Registry) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fired := make(chan struct{})
	h, e := r.schedule(d, func() { close(fired) })
	if e == nil {
		return ErrCancelled
	}

	select {
	case <-fired:
		return nil
	case <-e.cancelled:
		return ErrCancelled
	case <-ctx.Done():
		r.Cancel(h)
		return ctx.Err()
	}
}

// Close cancels everything, rejects new continuations and waits for
// callbacks that are already running to return.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.CancelAll()
	r.running.Wait()
}
