package reactor

// CleanupWatcher fires exactly once, when the reactor tears down (Run
// returns), unless it was stopped or cancelled first. The I/O, timer and
// signal watcher variants register one of these via subscribeCleanup so that
// reactor teardown reaches it even if the caller never asked for CLEANUP
// directly.
//
// CleanupWatcher must never itself call subscribeCleanup: doing so would
// register a cleanup watcher for a cleanup watcher, recursing without
// bound.
type CleanupWatcher struct {
	r        *Reactor
	priority Priority
	active   bool
	cb       func(*CleanupWatcher)
}

// NewCleanupWatcher creates and arms a cleanup watcher, registering it
// directly in the reactor's cleanup list.
func (r *Reactor) NewCleanupWatcher(cb func(*CleanupWatcher)) *CleanupWatcher {
	w := &CleanupWatcher{r: r, priority: PriorityNormal, cb: cb}
	w.active = true
	r.cleanup = append(r.cleanup, w)
	return w
}

func (w *CleanupWatcher) Start() {
	if w.active {
		return
	}
	w.active = true
	w.r.cleanup = append(w.r.cleanup, w)
}

// Stop removes the watcher from the reactor's cleanup list without firing
// its callback. Cancel is the usual way to do this; Stop exists to satisfy
// the Watcher interface.
func (w *CleanupWatcher) Stop() {
	if !w.active {
		return
	}
	w.active = false
	w.removeFromRegistry()
}

// Cancel is equivalent to Stop for a cleanup watcher: it never fires, and
// is removed from the registry.
func (w *CleanupWatcher) Cancel() {
	w.Stop()
}

func (w *CleanupWatcher) removeFromRegistry() {
	list := w.r.cleanup
	for i, c := range list {
		if c == w {
			list[i] = list[len(list)-1]
			list[len(list)-1] = nil
			w.r.cleanup = list[:len(list)-1]
			return
		}
	}
}

func (w *CleanupWatcher) Active() bool { return w.active }

func (w *CleanupWatcher) Priority() Priority { return w.priority }

func (w *CleanupWatcher) SetPriority(p Priority) { w.priority = p }
