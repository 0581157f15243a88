// Command echoserver runs a TCP echo service on top of the reactor and tcp
// packages: every connection gets its bytes mirrored straight back, idle
// connections are dropped after a timeout, and the accept path is throttled
// per source IP. SIGINT/SIGTERM trigger a graceful reactor shutdown.
//
// Run with: go run ./cmd/echoserver
package main

import (
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/joeycumines/stumpy"
	"github.com/nodalio/reactor"
	"github.com/nodalio/reactor/tcp"
)

const (
	listenAddr      = "127.0.0.1:9000"
	idleTimeout     = 30.0 // seconds
	acceptsPerIPSec = 20
)

func main() {
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stdout)),
	).Logger()

	r, err := reactor.New(reactor.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(os.Stderr, "reactor.New:", err)
		os.Exit(1)
	}

	l, err := tcp.NewListener(r, listenAddr, newEchoTransport,
		tcp.WithListenerLogger(logger),
		tcp.WithAcceptRateLimit(map[time.Duration]int{time.Second: acceptsPerIPSec}),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tcp.NewListener:", err)
		os.Exit(1)
	}

	if _, err := r.OnSignal(int(syscall.SIGINT), func() {
		logger.Info().Str("addr", l.Addr().String()).Log("received SIGINT, stopping")
		r.Stop()
	}); err != nil {
		fmt.Fprintln(os.Stderr, "OnSignal(SIGINT):", err)
		os.Exit(1)
	}
	if _, err := r.OnSignal(int(syscall.SIGTERM), func() {
		logger.Info().Str("addr", l.Addr().String()).Log("received SIGTERM, stopping")
		r.Stop()
	}); err != nil {
		fmt.Fprintln(os.Stderr, "OnSignal(SIGTERM):", err)
		os.Exit(1)
	}

	logger.Info().Str("addr", l.Addr().String()).Log("echoserver listening")

	if err := r.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "reactor.Run:", err)
		os.Exit(1)
	}
}

// newEchoTransport is a tcp.Factory: it wires up an echoProtocol and arms
// the connection's idle timeout.
func newEchoTransport(r *reactor.Reactor, fd int, remote net.Addr) (*tcp.Transport, error) {
	return tcp.NewTransport(r, fd, &echoProtocol{}, remote,
		tcp.WithInitialTimeout(idleTimeout),
	)
}

// echoProtocol mirrors every byte it receives back onto the transport, and
// closes the connection if it sits idle past its timeout.
type echoProtocol struct {
	transport *tcp.Transport
}

func (p *echoProtocol) ConnectionMade(t *tcp.Transport) {
	p.transport = t
}

func (p *echoProtocol) DataReceived(b []byte) {
	_, _ = p.transport.Write(b)
}

func (p *echoProtocol) ConnectionLost(err error) {}

func (p *echoProtocol) ConnectionTimeout() {
	p.transport.Close()
}
