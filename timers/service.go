// Package timers implements the scheduled-callback service: one-shot
// callbacks with explicit cancellation, always marshaled back onto an
// eventloop.Loop rather than run directly on Go's timer goroutine,
// since that loop is the only thread allowed to touch
// ForkContext/BranchInfo state.
package timers

import (
	"time"

	"ForkGo/eventloop"
)

// Handle is a scheduled, cancellable one-shot timer.
type Handle struct {
	timer     *time.Timer
	cancelled bool
}

// Service schedules callbacks onto a single event loop.
type Service struct {
	loop *eventloop.Loop
}

// New returns a Service that posts fired callbacks onto loop.
func New(loop *eventloop.Loop) *Service {
	return &Service{loop: loop}
}

// After schedules cb to run on the event loop after d elapses. The
// returned Handle can be cancelled with Stop before it fires; calling
// Stop after it has already fired is a no-op.
func (s *Service) After(d time.Duration, cb func()) *Handle {
	h := &Handle{}
	h.timer = time.AfterFunc(d, func() {
		s.loop.Post(func() {
			if h.cancelled {
				return
			}
			cb()
		})
	})
	return h
}

// Stop cancels the timer. Idempotent.
func (h *Handle) Stop() {
	if h == nil || h.cancelled {
		return
	}
	h.cancelled = true
	h.timer.Stop()
}
