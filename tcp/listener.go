package tcp

import (
	"net"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/nodalio/reactor"
)

const defaultBacklog = 64

// Listener accepts TCP connections on a bound socket and hands each one to
// a Factory to build a Transport, tracking every live connection in a
// table keyed by its fd so Stop can close them all.
type Listener struct {
	r       *reactor.Reactor
	fd      int
	factory Factory
	logger  *logiface.Logger[logiface.Event]

	accept  *reactor.IOWatcher
	cleanup *reactor.CleanupWatcher

	localAddr net.Addr
	conns     map[int]*Transport
	stopped   bool

	rateLimiter interface {
		Allow(category any) (time.Time, bool)
	}
}

// NewListener binds and listens on address, registering an accept watcher
// with the reactor. The listening socket is nonblocking with SO_REUSEADDR
// set, per the listener's start() construction clause.
func NewListener(r *reactor.Reactor, address string, factory Factory, opts ...ListenerOption) (*Listener, error) {
	cfg := resolveListenerOptions(opts)

	fd, err := listenSocket(address, cfg.backlog)
	if err != nil {
		return nil, err
	}

	addr, _ := localAddrFD(fd)

	l := &Listener{
		r:         r,
		fd:        fd,
		factory:   factory,
		logger:    cfg.logger,
		localAddr: addr,
		conns:     make(map[int]*Transport),
	}
	if cfg.rateLimiter != nil {
		l.rateLimiter = cfg.rateLimiter
	}

	accept, err := r.NewIOWatcher(fd, reactor.Read, reactor.PriorityNormal, l.onAcceptable)
	if err != nil {
		_ = closeSocketFD(fd)
		return nil, err
	}
	l.accept = accept
	l.cleanup = r.NewCleanupWatcher(func(*reactor.CleanupWatcher) { l.Stop() })

	return l, nil
}

func (l *Listener) onAcceptable(_ *reactor.IOWatcher, _ reactor.EventMask) {
	connFD, remote, err := acceptConn(l.fd)
	if err != nil {
		if isWouldBlock(err) {
			return
		}
		l.logger.Warning().Err(err).Log("accept error")
		if isFatalAcceptError(err) {
			l.Stop()
		}
		return
	}

	if l.rateLimiter != nil {
		if _, ok := l.rateLimiter.Allow(rateLimitCategory(remote)); !ok {
			_ = closeSocketFD(connFD)
			return
		}
	}

	t, err := l.factory(l.r, connFD, remote)
	if err != nil {
		l.logger.Warning().Err(err).Log("transport factory error")
		_ = closeSocketFD(connFD)
		return
	}

	t.setOnClose(func(tr *Transport) { delete(l.conns, connFD) })
	l.conns[connFD] = t
}

// Addr returns the address the listening socket is bound to.
func (l *Listener) Addr() net.Addr { return l.localAddr }

func rateLimitCategory(remote net.Addr) any {
	if tcpAddr, ok := remote.(*net.TCPAddr); ok && tcpAddr.IP != nil {
		return tcpAddr.IP.String()
	}
	return remote.String()
}

// Stop cancels the accept watcher, gracefully closes every tracked
// connection, and closes the listening socket. Idempotent.
func (l *Listener) Stop() {
	if l.stopped {
		return
	}
	l.stopped = true

	l.accept.Cancel()

	snapshot := make([]*Transport, 0, len(l.conns))
	for _, t := range l.conns {
		snapshot = append(snapshot, t)
	}
	for _, t := range snapshot {
		t.Close()
	}

	_ = closeSocketFD(l.fd)
}
