//go:build !windows

package reactor

import (
	"os"
	"os/signal"
	"syscall"
)

// SignalWatcher delivers a callback each time the process receives the
// given POSIX signal number, until stopped/cancelled. Signal delivery
// happens on a dedicated goroutine (Go's os/signal package requires this)
// which hands off to the loop goroutine via Reactor.Submit, preserving the
// reactor's single-threaded dispatch guarantee for the callback itself.
type SignalWatcher struct {
	r        *Reactor
	signum   int
	priority Priority
	active   bool
	cb       func(*SignalWatcher)
	cleanup  *cleanupSubscription
	ch       chan os.Signal
	done     chan struct{}
}

// NewSignalWatcher creates and arms a repeating signal watcher.
func (r *Reactor) NewSignalWatcher(signum int, priority Priority, cb func(*SignalWatcher)) (*SignalWatcher, error) {
	if !validPriority(priority) {
		return nil, ErrInvalidPriority
	}
	w := &SignalWatcher{r: r, signum: signum, priority: priority, cb: cb}
	w.cleanup = r.subscribeCleanup(func() { w.Cancel() })
	w.Start()
	return w, nil
}

// OnSignal runs fn once, the next time the process receives signum, then
// cancels the underlying watcher, per the reactor's on_signal contract.
func (r *Reactor) OnSignal(signum int, fn func()) (*SignalWatcher, error) {
	var w *SignalWatcher
	var err error
	w, err = r.NewSignalWatcher(signum, PriorityNormal, func(*SignalWatcher) {
		fn()
		w.Cancel()
	})
	return w, err
}

func (w *SignalWatcher) Start() {
	if w.active {
		return
	}
	w.ch = make(chan os.Signal, 1)
	w.done = make(chan struct{})
	signal.Notify(w.ch, syscall.Signal(w.signum))
	w.active = true
	w.r.logWatcherArmed("signal", w.priority)

	ch, done, r, cb, self := w.ch, w.done, w.r, w.cb, w
	go func() {
		for {
			select {
			case <-ch:
				r.Submit(func() {
					if self.active {
						r.safeExecute(func() { cb(self) }, "signal")
					}
				})
			case <-done:
				return
			}
		}
	}()
}

func (w *SignalWatcher) Stop() {
	if !w.active {
		return
	}
	w.active = false
	signal.Stop(w.ch)
	close(w.done)
	w.r.logWatcherDisarmed("signal")
}

func (w *SignalWatcher) Cancel() {
	w.Stop()
	w.cleanup.cancel()
}

func (w *SignalWatcher) Active() bool { return w.active }

func (w *SignalWatcher) Number() int { return w.signum }

func (w *SignalWatcher) Priority() Priority { return w.priority }

func (w *SignalWatcher) SetPriority(p Priority) { w.priority = p }
