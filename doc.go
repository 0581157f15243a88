// Package reactor implements a single-threaded, cooperative event reactor:
// one goroutine drives I/O readiness, timers, signals, idle work, and
// deferred calls, and dispatches them to user callbacks without locking
// between components.
//
// # Architecture
//
// A [Reactor] owns a backend poller (epoll on Linux, kqueue on Darwin), a
// timer min-heap, a FIFO of deferred calls, and a registry of watchers.
// Watchers ([IOWatcher], [TimerWatcher], [SignalWatcher], the reactor's
// single idle watcher, and [CleanupWatcher]) bridge backend events to user
// callbacks. See watcher.go for the shared watcher state machine and
// watcher_io.go / watcher_timer.go / watcher_signal.go / watcher_idle.go /
// watcher_cleanup.go for each variant.
//
// The tcp subpackage builds a buffered, flow-controlled TCP transport and
// listener on top of this reactor; see the tcp package.
//
// # Platform support
//
//   - Linux: epoll, level-triggered (poller_linux.go)
//   - Darwin: kqueue (poller_darwin.go)
//   - Windows: not supported by this package; IOCP is a completion-based
//     backend and does not fit the level-triggered readiness model this
//     reactor assumes (poller_windows.go documents the gap rather than
//     faking support).
//
// # Thread safety
//
// Exactly one goroutine may call [Reactor.Run]. [Reactor.Submit],
// [Reactor.Wake] and [Reactor.Stop] are safe to call from any goroutine;
// they hand work to the loop goroutine via a self-pipe wakeup. Every other
// method -- watcher
// creation, [Reactor.Call], [Reactor.OnTimeout], [Reactor.OnSignal] -- must
// be called from the loop goroutine itself.
//
// # Usage
//
//	rx, err := reactor.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rx.OnSignal(int(syscall.SIGINT), func() { rx.Stop() })
//	go func() {
//	    if err := rx.Run(); err != nil {
//	        log.Fatal(err)
//	    }
//	}()
package reactor
