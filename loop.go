package repaint

import "time"

// EventSource is a registered event-loop callback. Remove
// unregisters it; removing an already-removed source is a no-op.
type EventSource interface {
	Remove()
}

// EventLoop is the host's single-threaded loop. The renderer uses it
// to wake on fence fds and to schedule capture fallback timers; all
// callbacks run on the loop thread, the same thread every renderer
// operation runs on.
type EventLoop interface {
	// AddFd invokes fn once fd becomes readable.
	AddFd(fd int, fn func()) (EventSource, error)

	// AddTimer invokes fn once after d.
	AddTimer(d time.Duration, fn func()) EventSource
}
