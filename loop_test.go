package reactor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func runInBackground(t *testing.T, r *Reactor) (done chan error) {
	t.Helper()
	done = make(chan error, 1)
	go func() { done <- r.Run() }()
	return done
}

func waitStopped(t *testing.T, done chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not exit within timeout")
	}
}

// submitSync runs fn on the loop goroutine via Submit and blocks until it
// has returned, so tests can safely construct/inspect watchers without
// racing the loop goroutine -- mirroring the reactor's own rule that
// watcher state is only ever touched from the loop thread.
func submitSync(r *Reactor, fn func()) {
	done := make(chan struct{})
	r.Submit(func() {
		fn()
		close(done)
	})
	<-done
}

func TestRunAlreadyRunning(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatal(err)
	}
	done := runInBackground(t, r)
	time.Sleep(20 * time.Millisecond)

	if err := r.Run(); err != ErrAlreadyRunning {
		t.Fatalf("Run() on an already-running reactor = %v, want ErrAlreadyRunning", err)
	}

	r.Stop()
	waitStopped(t, done)
}

func TestStopIdempotent(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatal(err)
	}
	done := runInBackground(t, r)
	time.Sleep(20 * time.Millisecond)

	r.Stop()
	r.Stop()
	waitStopped(t, done)
}

func TestSubmitFIFOOrder(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatal(err)
	}
	done := runInBackground(t, r)

	var (
		mu   sync.Mutex
		seen []int
	)
	const n = 50
	for i := 0; i < n; i++ {
		i := i
		r.Submit(func() {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
		})
	}

	time.Sleep(100 * time.Millisecond)
	r.Stop()
	waitStopped(t, done)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != n {
		t.Fatalf("got %d deferred calls, want %d", len(seen), n)
	}
	for i, v := range seen {
		if v != i {
			t.Fatalf("deferred calls out of order at index %d: got %d, want %d", i, v, i)
		}
	}
}

func TestOnTimeoutFiresOnceAndCancels(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatal(err)
	}
	done := runInBackground(t, r)

	var (
		fired atomic.Int32
		w     *TimerWatcher
	)
	submitSync(r, func() {
		var err error
		w, err = r.OnTimeout(0.02, func() { fired.Add(1) })
		if err != nil {
			t.Error(err)
		}
	})

	time.Sleep(200 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Fatalf("on_timeout fired %d times, want exactly 1", got)
	}

	var active bool
	submitSync(r, func() { active = w.Active() })
	if active {
		t.Fatal("timer watcher should be cancelled after firing once")
	}

	r.Stop()
	waitStopped(t, done)
}

func TestTimerWatcherRepeats(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatal(err)
	}
	done := runInBackground(t, r)

	var (
		fired atomic.Int32
		w     *TimerWatcher
	)
	submitSync(r, func() {
		var err error
		w, err = r.NewTimerWatcher(0.02, PriorityNormal, func(*TimerWatcher) { fired.Add(1) })
		if err != nil {
			t.Error(err)
		}
	})

	time.Sleep(150 * time.Millisecond)
	submitSync(r, func() { w.Cancel() })
	time.Sleep(50 * time.Millisecond)

	if got := fired.Load(); got < 3 {
		t.Fatalf("repeating timer fired %d times in 150ms at a 20ms period, want >=3", got)
	}

	r.Stop()
	waitStopped(t, done)
}

func TestInvalidPriorityRejected(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatal(err)
	}
	done := runInBackground(t, r)

	var gotErr error
	submitSync(r, func() {
		_, gotErr = r.NewTimerWatcher(1, Priority(99), func(*TimerWatcher) {})
	})
	if gotErr != ErrInvalidPriority {
		t.Fatalf("NewTimerWatcher with invalid priority = %v, want ErrInvalidPriority", gotErr)
	}

	r.Stop()
	waitStopped(t, done)
}
