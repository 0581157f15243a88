package reactor

import (
	"container/heap"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Priority is one of five priority levels a watcher can be armed at. The
// level is validated and recorded on each watcher, but it does not affect
// dispatch order: ready I/O callbacks run in the order the backend reports
// them, and timers run in deadline order.
type Priority int

const (
	PriorityLowest  Priority = -2
	PriorityLow     Priority = -1
	PriorityNormal  Priority = 0
	PriorityHigh    Priority = 1
	PriorityHighest Priority = 2
)

func validPriority(p Priority) bool {
	return p >= PriorityLowest && p <= PriorityHighest
}

// EventMask is the READ/WRITE interest (and readiness) bitmask carried by
// I/O watcher callbacks.
type EventMask uint8

const (
	Read  EventMask = 0x1
	Write EventMask = 0x2
)

// Reactor is the single-threaded event dispatcher. Exactly one goroutine
// may call Run; everything else that mutates reactor state (watcher
// creation, Call, OnTimeout, OnSignal) must happen on that same goroutine.
// Submit, Wake and Stop are the exceptions -- they are safe from any
// goroutine and hand work to the loop via a self-pipe.
type Reactor struct {
	opts *reactorOptions

	poller poller
	state  *FastState

	wakeReadFD  int
	wakeWriteFD int
	wakeBuf     [64]byte

	submitMu    sync.Mutex
	submitQueue []func()

	deferred []func()
	idle     *idleWatcher

	timers timerHeap

	io      map[int]*IOWatcher
	signals map[int]*SignalWatcher
	cleanup []*CleanupWatcher

	tickAnchor time.Time

	loopGoroutineID atomic.Uint64

	closeOnce sync.Once
	stopOnce  sync.Once
}

// New creates a Reactor bound to the platform's readiness backend (epoll on
// Linux, kqueue on Darwin). On Windows it returns ErrBackendUnsupported: see
// poller_windows.go.
func New(opts ...ReactorOption) (*Reactor, error) {
	cfg, err := resolveReactorOptions(opts)
	if err != nil {
		return nil, err
	}

	p := newPoller()
	if err := p.Init(); err != nil {
		return nil, err
	}

	wakeReadFD, wakeWriteFD, err := createWakeFd(0, EFD_CLOEXEC|EFD_NONBLOCK)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	r := &Reactor{
		opts:        cfg,
		poller:      p,
		state:       NewFastState(),
		wakeReadFD:  wakeReadFD,
		wakeWriteFD: wakeWriteFD,
		timers:      make(timerHeap, 0),
		io:          make(map[int]*IOWatcher),
		signals:     make(map[int]*SignalWatcher),
		tickAnchor:  time.Now(),
	}
	r.idle = newIdleWatcher(r)

	if wakeReadFD >= 0 {
		if err := p.RegisterFD(wakeReadFD, EventRead, func(IOEvents) {
			_ = drainWakeUpPipeFD(wakeReadFD, r.wakeBuf[:])
			r.drainSubmitQueue()
		}); err != nil {
			_ = p.Close()
			_ = closeWakeFd(wakeReadFD, wakeWriteFD)
			return nil, err
		}
	}

	return r, nil
}

// Time returns the reactor's cached notion of the current time, refreshed
// once per dispatch iteration rather than re-reading the OS clock per
// watcher.
func (r *Reactor) Time() time.Time { return r.tickAnchor }

// isLoopThread reports whether the calling goroutine is the one running
// Run.
func (r *Reactor) isLoopThread() bool {
	id := r.loopGoroutineID.Load()
	return id != 0 && getGoroutineID() == id
}

func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// Run drives the reactor until Stop is called or the backend fails fatally.
// It blocks the calling goroutine for the reactor's lifetime.
func (r *Reactor) Run() error {
	if !r.state.TryTransition(StateAwake, StateRunning) {
		return ErrAlreadyRunning
	}
	r.loopGoroutineID.Store(getGoroutineID())
	r.logLifecycle("start")

	for r.state.Load() != StateTerminating {
		r.tickAnchor = time.Now()

		r.runTimers()
		r.dispatchIdleIfArmed()

		timeoutMs := r.calculateTimeout()
		if _, err := r.poller.PollIO(timeoutMs); err != nil {
			r.logPollError(err)
			if err == ErrPollerClosed {
				break
			}
		}
	}

	r.shutdown()
	r.state.Store(StateTerminated)
	r.logLifecycle("stop")
	return nil
}

// Stop requests reactor shutdown. Safe to call from any goroutine. It is
// idempotent.
func (r *Reactor) Stop() {
	r.stopOnce.Do(func() {
		r.state.TransitionAny([]LoopState{StateRunning, StateSleeping, StateAwake}, StateTerminating)
		_ = r.submitWakeup()
	})
}

// shutdown fires CLEANUP on every still-active watcher exactly once, then
// releases backend resources.
func (r *Reactor) shutdown() {
	// Iterate a snapshot: cleanup callbacks cancel other watchers, which
	// removes their cleanup halves from r.cleanup while we walk it.
	snapshot := append([]*CleanupWatcher(nil), r.cleanup...)
	for _, w := range snapshot {
		if w.active {
			r.safeExecute(func() { w.cb(w) }, "cleanup")
			w.active = false
		}
	}
	r.closeOnce.Do(func() {
		_ = r.poller.Close()
		_ = closeWakeFd(r.wakeReadFD, r.wakeWriteFD)
	})
}

// Call enqueues fn on the reactor's deferred FIFO queue. Must be called
// from the loop goroutine; cross-goroutine callers use Submit.
func (r *Reactor) Call(fn func()) {
	r.deferred = append(r.deferred, fn)
	r.idle.arm()
}

// Submit is the cross-goroutine-safe equivalent of Call: any goroutine may
// enqueue work onto the reactor, which will run it on the loop goroutine at
// the next wake.
func (r *Reactor) Submit(fn func()) {
	r.submitMu.Lock()
	r.submitQueue = append(r.submitQueue, fn)
	r.submitMu.Unlock()
	_ = r.submitWakeup()
}

// Wake pokes the loop out of a blocking poll without enqueueing work, e.g.
// after a watcher's state was mutated from outside the normal dispatch
// path.
func (r *Reactor) Wake() { _ = r.submitWakeup() }

func (r *Reactor) drainSubmitQueue() {
	r.submitMu.Lock()
	queue := r.submitQueue
	r.submitQueue = nil
	r.submitMu.Unlock()
	for _, fn := range queue {
		r.deferred = append(r.deferred, fn)
	}
	if len(queue) > 0 {
		r.idle.arm()
	}
}

func (r *Reactor) submitWakeup() error {
	if r.state.Load() == StateTerminated {
		return ErrClosed
	}
	if r.wakeWriteFD < 0 {
		return submitGenericWakeup(0)
	}
	var one [8]byte
	one[0] = 1
	_, err := writeFD(r.wakeWriteFD, one[:])
	return err
}

func drainWakeUpPipeFD(fd int, buf []byte) error {
	for {
		if _, err := readFD(fd, buf); err != nil {
			return nil
		}
	}
}

// dispatchIdleIfArmed runs the idle watcher's single FIFO pop, per spec:
// the idle watcher dequeues exactly one item per invocation, and
// self-disarms when the queue length is <=1 on entry, before popping.
func (r *Reactor) dispatchIdleIfArmed() {
	if !r.idle.active {
		return
	}
	if len(r.deferred) <= 1 {
		r.idle.active = false
		r.logWatcherDisarmed("idle")
	}
	if len(r.deferred) == 0 {
		return
	}
	fn := r.deferred[0]
	r.deferred = r.deferred[1:]
	r.safeExecute(fn, "deferred")
}

// calculateTimeout caps the poll timeout by the earliest pending timer,
// ceiling-rounding sub-millisecond deltas up to 1ms, and forces a
// non-blocking poll whenever the idle watcher is armed.
func (r *Reactor) calculateTimeout() int {
	if r.idle.active {
		return 0
	}

	maxDelay := 10 * time.Second
	if len(r.timers) > 0 {
		delay := r.timers[0].nextFire.Sub(r.tickAnchor)
		if delay < 0 {
			delay = 0
		}
		if delay < maxDelay {
			maxDelay = delay
		}
	} else {
		return -1
	}

	if maxDelay > 0 && maxDelay < time.Millisecond {
		return 1
	}
	return int(maxDelay.Milliseconds())
}

// runTimers fires every timer whose deadline has passed, re-arming
// repeating timers and cancelling one-shot ones.
func (r *Reactor) runTimers() {
	for len(r.timers) > 0 {
		t := r.timers[0]
		if t.nextFire.After(r.tickAnchor) {
			break
		}
		heap.Pop(&r.timers)
		t.heapIndex = -1

		r.safeExecute(func() { t.cb(t) }, "timer")

		if t.heapIndex >= 0 {
			// The callback re-armed the timer itself (SetSeconds or
			// Start), which already pushed it back onto the heap.
			continue
		}
		if t.active && t.seconds > 0 {
			t.nextFire = t.nextFire.Add(time.Duration(t.seconds * float64(time.Second)))
			if t.nextFire.Before(r.tickAnchor) {
				t.nextFire = r.tickAnchor.Add(time.Duration(t.seconds * float64(time.Second)))
			}
			heap.Push(&r.timers, t)
		} else {
			t.active = false
		}
	}
}

// safeExecute recovers panics from a user callback, logging them rather
// than crashing the loop goroutine.
func (r *Reactor) safeExecute(fn func(), kind string) {
	if fn == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			err, ok := rec.(error)
			if !ok {
				err = &PanicError{Value: rec}
			}
			r.logCallbackPanic(kind, err)
		}
	}()
	fn()
}
