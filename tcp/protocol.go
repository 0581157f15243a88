package tcp

import (
	"net"

	"github.com/nodalio/reactor"
)

// Protocol is implemented by callers and driven entirely from the reactor's
// single loop goroutine: ConnectionMade happens-before every DataReceived,
// which is never re-entered for a given connection, and ConnectionLost
// happens-after every earlier callback and fires exactly once.
type Protocol interface {
	// ConnectionMade is called once a Transport has been constructed for a
	// newly accepted (or dialed) connection.
	ConnectionMade(t *Transport)

	// DataReceived is called with a borrowed view of newly read bytes,
	// valid only for the duration of the call. Implementations that need
	// to retain the data must copy it.
	DataReceived(b []byte)

	// ConnectionLost is called exactly once, when the transport reaches
	// CLOSED. err is non-nil iff the transport aborted due to an I/O
	// error (as opposed to a graceful close or clean peer EOF).
	ConnectionLost(err error)
}

// WriteFlowControl is an optional Protocol extension. If implemented, the
// transport invokes PauseWriting/ResumeWriting as the write buffer crosses
// the high/low watermarks, with hysteresis (see Transport.SetWriteLimit).
type WriteFlowControl interface {
	PauseWriting()
	ResumeWriting()
}

// TimeoutHandler is an optional Protocol extension. If implemented, it is
// invoked when the transport's idle timer elapses. The transport never
// auto-closes on timeout; the protocol decides (a typical handler calls
// Transport.Close).
type TimeoutHandler interface {
	ConnectionTimeout()
}

// Factory constructs a Transport for a newly accepted connection. Called
// once per accept by a Listener, with the accepted socket's fd already set
// nonblocking and its peer address. Implementations typically close over a
// Protocol constructor and call NewTransport.
type Factory func(r *reactor.Reactor, fd int, remote net.Addr) (*Transport, error)
