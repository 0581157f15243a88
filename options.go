// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import "github.com/joeycumines/logiface"

// reactorOptions holds configuration resolved from ReactorOption values.
type reactorOptions struct {
	logger *logiface.Logger[logiface.Event]
}

// ReactorOption configures a Reactor at construction.
type ReactorOption interface {
	applyReactor(*reactorOptions) error
}

// reactorOptionImpl implements ReactorOption via a closure.
type reactorOptionImpl struct {
	fn func(*reactorOptions) error
}

func (o *reactorOptionImpl) applyReactor(opts *reactorOptions) error {
	return o.fn(opts)
}

// WithLogger attaches a structured logger to the reactor. Transports and
// listeners do not inherit it; they take their own logger through
// tcp.WithTransportLogger and tcp.WithListenerLogger. A nil logger, or
// never calling this option, leaves logging a no-op -- logiface.Logger is
// nil-safe.
func WithLogger(logger *logiface.Logger[logiface.Event]) ReactorOption {
	return &reactorOptionImpl{func(opts *reactorOptions) error {
		opts.logger = logger
		return nil
	}}
}

func resolveReactorOptions(opts []ReactorOption) (*reactorOptions, error) {
	cfg := &reactorOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyReactor(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
