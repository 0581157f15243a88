package tcp

import (
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// TransportOption configures a Transport at construction time, following
// the same functional-options shape as reactor.ReactorOption.
type TransportOption interface {
	applyTransport(*transportOptions)
}

type transportOptions struct {
	logger         *logiface.Logger[logiface.Event]
	writeHighWater int
	timeoutSeconds float64
}

type transportOptionImpl struct {
	fn func(*transportOptions)
}

func (o *transportOptionImpl) applyTransport(opts *transportOptions) { o.fn(opts) }

// WithTransportLogger attaches a structured logger to the transport.
func WithTransportLogger(logger *logiface.Logger[logiface.Event]) TransportOption {
	return &transportOptionImpl{func(opts *transportOptions) { opts.logger = logger }}
}

// WithInitialWriteLimit sets the transport's write buffer high watermark
// before the first reconciliation; must be >= 64 KiB (see SetWriteLimit).
func WithInitialWriteLimit(n int) TransportOption {
	return &transportOptionImpl{func(opts *transportOptions) { opts.writeHighWater = n }}
}

// WithInitialTimeout arms the transport's idle timer at construction,
// before ConnectionMade runs; a SetTimeout call made from ConnectionMade
// replaces it.
func WithInitialTimeout(seconds float64) TransportOption {
	return &transportOptionImpl{func(opts *transportOptions) { opts.timeoutSeconds = seconds }}
}

func resolveTransportOptions(opts []TransportOption) *transportOptions {
	cfg := &transportOptions{writeHighWater: defaultWriteHighWater}
	for _, opt := range opts {
		if opt != nil {
			opt.applyTransport(cfg)
		}
	}
	return cfg
}

// ListenerOption configures a Listener at construction time.
type ListenerOption interface {
	applyListener(*listenerOptions)
}

type listenerOptions struct {
	logger      *logiface.Logger[logiface.Event]
	backlog     int
	rateLimiter *catrate.Limiter
}

type listenerOptionImpl struct {
	fn func(*listenerOptions)
}

func (o *listenerOptionImpl) applyListener(opts *listenerOptions) { o.fn(opts) }

// WithListenerLogger attaches a structured logger to the listener.
func WithListenerLogger(logger *logiface.Logger[logiface.Event]) ListenerOption {
	return &listenerOptionImpl{func(opts *listenerOptions) { opts.logger = logger }}
}

// WithBacklog overrides the listen(2) backlog, default 64.
func WithBacklog(n int) ListenerOption {
	return &listenerOptionImpl{func(opts *listenerOptions) { opts.backlog = n }}
}

// WithAcceptRateLimit throttles the accept path using a go-catrate sliding
// window limiter, keyed by the peer's IP address (see rateLimitCategory in
// listener.go). Connections that exceed the limit are accepted and then
// immediately closed, so the backlog does not pin the listening socket.
func WithAcceptRateLimit(rates map[time.Duration]int) ListenerOption {
	return &listenerOptionImpl{func(opts *listenerOptions) { opts.rateLimiter = catrate.NewLimiter(rates) }}
}

func resolveListenerOptions(opts []ListenerOption) *listenerOptions {
	cfg := &listenerOptions{backlog: defaultBacklog}
	for _, opt := range opts {
		if opt != nil {
			opt.applyListener(cfg)
		}
	}
	return cfg
}
