// logging.go - structured logging for the reactor, via logiface.
//
// The reactor takes a generic *logiface.Logger[logiface.Event] directly
// (see WithLogger in options.go); the tcp subpackage takes the same logger
// type through its own options. logiface.Logger is nil-safe: every level method on a
// nil *Logger returns a disabled builder, so logging is never mandatory to
// construct a Reactor.
package reactor

// logWatcherArmed logs a watcher transitioning to active.
func (r *Reactor) logWatcherArmed(kind string, priority Priority) {
	r.opts.logger.Debug().Str("watcher", kind).Int("priority", int(priority)).Log("watcher armed")
}

// logWatcherDisarmed logs a watcher transitioning to inactive.
func (r *Reactor) logWatcherDisarmed(kind string) {
	r.opts.logger.Debug().Str("watcher", kind).Log("watcher disarmed")
}

// logCallbackPanic logs a recovered panic from a user callback.
func (r *Reactor) logCallbackPanic(kind string, err error) {
	r.opts.logger.Err(err).Str("watcher", kind).Log("recovered panic in callback")
}

// logLifecycle logs a reactor lifecycle transition (start/stop).
func (r *Reactor) logLifecycle(event string) {
	r.opts.logger.Info().Str("event", event).Log("reactor lifecycle")
}

// logPollError logs a non-fatal poll error the loop continued past.
func (r *Reactor) logPollError(err error) {
	r.opts.logger.Warning().Err(err).Log("poll error")
}
