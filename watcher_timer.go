package reactor

import (
	"container/heap"
	"time"
)

// TimerWatcher fires repeatedly every Seconds, until Seconds is set
// non-positive (which disarms it) or it is stopped/cancelled.
type TimerWatcher struct {
	r         *Reactor
	seconds   float64
	priority  Priority
	active    bool
	nextFire  time.Time
	cb        func(*TimerWatcher)
	cleanup   *cleanupSubscription
	heapIndex int
}

// NewTimerWatcher creates and arms a repeating timer. A non-positive
// seconds value creates the watcher in a disarmed state.
func (r *Reactor) NewTimerWatcher(seconds float64, priority Priority, cb func(*TimerWatcher)) (*TimerWatcher, error) {
	if !validPriority(priority) {
		return nil, ErrInvalidPriority
	}
	w := &TimerWatcher{r: r, seconds: seconds, priority: priority, cb: cb, heapIndex: -1}
	w.cleanup = r.subscribeCleanup(func() { w.Cancel() })
	if seconds > 0 {
		w.Start()
	}
	return w, nil
}

// OnTimeout schedules fn to run once, delaySeconds from now, at normal
// priority. The underlying watcher fires exactly once, then cancels itself
// and is removed from the reactor's registry, per the reactor's on_timeout
// contract.
func (r *Reactor) OnTimeout(delaySeconds float64, fn func()) (*TimerWatcher, error) {
	var w *TimerWatcher
	var err error
	w, err = r.NewTimerWatcher(delaySeconds, PriorityNormal, func(*TimerWatcher) {
		fn()
		w.Cancel()
	})
	return w, err
}

// Seconds returns the current repeat period.
func (w *TimerWatcher) Seconds() float64 { return w.seconds }

// SetSeconds changes the repeat period. A positive value restarts the
// repeat (re-arming from now); a non-positive value disarms the timer.
func (w *TimerWatcher) SetSeconds(seconds float64) {
	w.seconds = seconds
	w.Stop()
	if seconds > 0 {
		w.Start()
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func (w *TimerWatcher) Start() {
	if w.active {
		return
	}
	w.nextFire = w.r.tickAnchor.Add(secondsToDuration(w.seconds))
	w.active = true
	heap.Push(&w.r.timers, w)
	w.r.logWatcherArmed("timer", w.priority)
}

func (w *TimerWatcher) Stop() {
	if !w.active {
		return
	}
	w.active = false
	if w.heapIndex >= 0 {
		heap.Remove(&w.r.timers, w.heapIndex)
	}
	w.r.logWatcherDisarmed("timer")
}

func (w *TimerWatcher) Cancel() {
	w.Stop()
	w.cleanup.cancel()
}

func (w *TimerWatcher) Active() bool { return w.active }

func (w *TimerWatcher) Priority() Priority { return w.priority }

func (w *TimerWatcher) SetPriority(p Priority) {
	w.priority = p
}

// timerHeap is a container/heap min-heap of *TimerWatcher ordered by
// nextFire.
type timerHeap []*TimerWatcher

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	return h[i].nextFire.Before(h[j].nextFire)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *timerHeap) Push(x any) {
	w := x.(*TimerWatcher)
	w.heapIndex = len(*h)
	*h = append(*h, w)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.heapIndex = -1
	*h = old[:n-1]
	return w
}
