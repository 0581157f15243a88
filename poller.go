// Package reactor: backend readiness poller.
//
// RegisterFD, UnregisterFD, ModifyFD, and PollIO are implemented per
// platform:
//   - poller_linux.go (epoll, level-triggered)
//   - poller_darwin.go (kqueue)
//   - poller_windows.go (unsupported; see that file's doc comment)
//
// This poller is touched exclusively from the reactor's own loop
// goroutine -- registration, modification, and dispatch all happen inside
// Reactor.Run's single goroutine, so there is no mutex or version counter
// guarding the FD table here. That concurrency safety is the job of
// Reactor.Submit/Wake, which hand cross-goroutine work to the loop via a
// self-pipe rather than touching the poller directly.
package reactor

import "errors"

// Standard errors, shared across backend implementations.
var (
	ErrFDOutOfRange        = errors.New("reactor: fd out of range")
	ErrFDAlreadyRegistered = errors.New("reactor: fd already registered")
	ErrFDNotRegistered     = errors.New("reactor: fd not registered")
	ErrPollerClosed        = errors.New("reactor: poller closed")
)

// fdInfo stores per-FD callback information, shared by the epoll and
// kqueue backends.
type fdInfo struct {
	callback IOCallback
	events   IOEvents
	active   bool
}

// IOEvents is a bitmask of readiness conditions reported by the backend
// poller, independent of the READ/WRITE mask watchers are armed with.
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

// IOCallback receives the readiness bitmask for one poll result.
type IOCallback func(IOEvents)

// poller is the minimal interface every backend implements. fd is always a
// nonblocking socket or self-pipe descriptor already owned by the caller;
// the poller never closes fds itself.
type poller interface {
	Init() error
	Close() error
	RegisterFD(fd int, events IOEvents, cb IOCallback) error
	UnregisterFD(fd int) error
	ModifyFD(fd int, events IOEvents) error
	PollIO(timeoutMs int) (int, error)
}
