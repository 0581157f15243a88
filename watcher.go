package reactor

// Watcher is the behavior common to every watcher variant: I/O, timer,
// signal, the reactor's own idle watcher, and cleanup. Start/Stop toggle
// whether the watcher is armed (receives events); Cancel additionally
// removes it from the reactor's registry and its cleanup subscription, so
// it will not fire again and will not be visited at reactor teardown.
//
// SetPriority records the new level. An armed IOWatcher is stopped and
// re-armed; the other variants only store the value. Priority does not
// change dispatch order (see Priority).
type Watcher interface {
	Start()
	Stop()
	Cancel()
	Active() bool
	Priority() Priority
	SetPriority(Priority)
}

// cleanupSubscription is a paired-registration pattern: each I/O, timer
// and signal watcher registers an auxiliary CleanupWatcher at construction
// (armed or not) so reactor teardown reaches it even if the user never
// explicitly subscribed to CLEANUP. Cancel cancels both halves; Stop
// leaves the cleanup half registered.
type cleanupSubscription struct {
	watcher *CleanupWatcher
}

func (r *Reactor) subscribeCleanup(onCleanup func()) *cleanupSubscription {
	cw := r.NewCleanupWatcher(func(*CleanupWatcher) { onCleanup() })
	return &cleanupSubscription{watcher: cw}
}

func (s *cleanupSubscription) cancel() {
	if s != nil && s.watcher != nil {
		s.watcher.Cancel()
	}
}
