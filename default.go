// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import "sync"

// defaultReactor lazily constructs the process-wide Reactor returned by
// Default, starting it on its own goroutine so the first call to Default
// never blocks on Run. Built with sync.OnceValue rather than sync.Once plus
// a package var: it makes the "exactly once, lazily, memoized" contract
// exhaustive at the call site instead of relying on callers to check a nil.
var defaultReactor = sync.OnceValue(func() *Reactor {
	r, err := New()
	if err != nil {
		// New fails when the readiness backend or its wakeup fd cannot be
		// set up (always on Windows, with ErrBackendUnsupported); there is
		// then no usable default reactor to hand back.
		panic(err)
	}
	go func() { _ = r.Run() }()
	return r
})

// Default returns the process-wide Reactor, constructing and starting it
// (on a dedicated goroutine) on first call. Every subsequent call returns
// the same instance.
//
// The returned Reactor obeys the same single-threaded contract as any
// other: watcher construction and the owning-goroutine-only methods must
// run from inside a callback already executing on its loop goroutine.
// Scheduling work onto it from any other goroutine, including the one that
// first called Default, must go through Submit. Using it directly
// from an arbitrary goroutine is undefined behavior, same as for a Reactor
// built with New.
//
// There is no explicit teardown hook: the default reactor runs for the
// remainder of the process and is reclaimed, along with its file
// descriptors, when the process exits. Call Stop on it explicitly if
// deterministic shutdown before process exit matters; a fresh Default call
// after Stop returns the same, now-stopped instance rather than a new one.
func Default() *Reactor {
	return defaultReactor()
}
