package tcp

import (
	"net"

	"github.com/joeycumines/logiface"
	"github.com/nodalio/reactor"
)

const (
	defaultWriteHighWater = 393216 // 384 KiB
	readScratchSize       = 8 * 1024
	writeLimitFloor       = 64 * 1024
)

// Transport wraps one accepted (or dialed) TCP connection, bridging reactor
// readiness events to a Protocol. All methods are safe to call only from
// the owning reactor's loop goroutine, except where noted: a transport's
// buffers and flags are mutated only from the reactor thread.
type Transport struct {
	r        *reactor.Reactor
	fd       int
	protocol Protocol
	remote   net.Addr
	logger   *logiface.Logger[logiface.Event]

	io    *reactor.IOWatcher
	timer *reactor.TimerWatcher

	writeBuf []byte

	pausedReading bool
	closing       bool
	closed        bool
	writeNotified bool
	highWater     int
	lowWater      int
	flushCallback func()
	onClose       func(*Transport)
}

// NewTransport constructs a Transport around fd (already accepted/dialed
// and set nonblocking by the caller), registers its read watcher and
// dormant idle timer, and invokes protocol.ConnectionMade.
func NewTransport(r *reactor.Reactor, fd int, protocol Protocol, remote net.Addr, opts ...TransportOption) (*Transport, error) {
	if remote == nil {
		return nil, ErrNilRemoteAddr
	}

	cfg := resolveTransportOptions(opts)

	t := &Transport{
		r:         r,
		fd:        fd,
		protocol:  protocol,
		remote:    remote,
		logger:    cfg.logger,
		highWater: cfg.writeHighWater,
		lowWater:  lowWaterFor(cfg.writeHighWater),
	}

	io, err := r.NewIOWatcher(fd, reactor.Read, reactor.PriorityNormal, t.onIOEvent)
	if err != nil {
		return nil, err
	}
	t.io = io

	timer, err := r.NewTimerWatcher(0, reactor.PriorityNormal, t.onTimeout)
	if err != nil {
		t.io.Cancel()
		return nil, err
	}
	t.timer = timer
	if cfg.timeoutSeconds > 0 {
		timer.SetSeconds(cfg.timeoutSeconds)
	}

	protocol.ConnectionMade(t)
	return t, nil
}

func lowWaterFor(high int) int {
	return (high * 67) / 100
}

func (t *Transport) onIOEvent(_ *reactor.IOWatcher, mask reactor.EventMask) {
	if t.closed {
		return
	}
	if mask&reactor.Read != 0 {
		t.handleReadable()
	}
	if t.closed {
		return
	}
	if mask&reactor.Write != 0 {
		t.handleWritable()
	}
}

func (t *Transport) handleReadable() {
	var buf [readScratchSize]byte
	n, err := recvFD(t.fd, buf[:])
	if err != nil {
		if isWouldBlock(err) {
			return
		}
		t.Abort(AbortReasonError, &ioError{op: "read", err: err})
		return
	}
	if n == 0 {
		t.Abort(AbortReasonClosed, nil)
		return
	}
	t.protocol.DataReceived(buf[:n])
}

func (t *Transport) handleWritable() {
	if len(t.writeBuf) == 0 {
		return
	}
	n, err := sendFD(t.fd, t.writeBuf)
	if err != nil {
		if isWouldBlock(err) {
			return
		}
		t.Abort(AbortReasonError, &ioError{op: "write", err: err})
		return
	}
	t.writeBuf = t.writeBuf[n:]
	t.reconcile()
}

func (t *Transport) onTimeout(*reactor.TimerWatcher) {
	if t.closed {
		return
	}
	if th, ok := t.protocol.(TimeoutHandler); ok {
		th.ConnectionTimeout()
	}
}

// Write appends data to the write buffer and reconciles I/O interest. Safe
// to call from any protocol callback.
func (t *Transport) Write(data []byte) (int, error) {
	if t.closed || t.closing {
		return 0, ErrClosed
	}
	t.writeBuf = append(t.writeBuf, data...)
	t.reconcile()
	return len(data), nil
}

// reconcile is check_write_buffer: runs after every buffer mutation.
func (t *Transport) reconcile() {
	if t.closing && len(t.writeBuf) == 0 {
		t.Abort(AbortReasonClosed, nil)
		return
	}

	t.reconcileIOMask()

	if fc, ok := t.protocol.(WriteFlowControl); ok {
		switch {
		case !t.writeNotified && len(t.writeBuf) > t.highWater:
			t.writeNotified = true
			fc.PauseWriting()
		case t.writeNotified && len(t.writeBuf) < t.lowWater:
			t.writeNotified = false
			fc.ResumeWriting()
		}
	}

	if t.flushCallback != nil && len(t.writeBuf) == 0 {
		cb := t.flushCallback
		t.flushCallback = nil
		cb()
	}
}

func (t *Transport) reconcileIOMask() {
	var mask reactor.EventMask
	if !t.pausedReading {
		mask |= reactor.Read
	}
	if len(t.writeBuf) > 0 {
		mask |= reactor.Write
	}
	if mask == 0 {
		t.io.Stop()
		return
	}
	_ = t.io.SetEventMask(mask)
	if !t.io.Active() {
		t.io.Start()
	}
}

// PauseReading drops READ from the watcher's interest mask.
func (t *Transport) PauseReading() {
	t.pausedReading = true
	t.reconcileIOMask()
}

// ResumeReading restores READ interest; a no-op while closing.
func (t *Transport) ResumeReading() {
	if t.closing {
		return
	}
	t.pausedReading = false
	t.reconcileIOMask()
}

// Flush invokes callback once the write buffer is empty -- immediately, if
// it already is.
func (t *Transport) Flush(callback func()) {
	if len(t.writeBuf) == 0 {
		callback()
		return
	}
	t.flushCallback = callback
}

// Close requests a graceful close: the connection finishes draining its
// write buffer, then aborts cleanly. Idempotent.
func (t *Transport) Close() {
	if t.closed || t.closing {
		return
	}
	t.closing = true
	t.PauseReading()
	t.reconcile()
}

// Abort immediately tears the connection down: cancels both watchers,
// notifies the protocol via ConnectionLost, invokes the listener's
// on-close hook if set, and closes the socket. Idempotent. err is only
// surfaced to the protocol when reason is AbortReasonError; a graceful
// close or clean peer EOF always delivers a nil error regardless of what
// is passed.
func (t *Transport) Abort(reason AbortReason, err error) {
	if t.closed {
		return
	}
	t.closed = true

	t.io.Cancel()
	t.timer.Cancel()

	if reason == AbortReasonError {
		t.logger.Warning().Str("remote", t.remote.String()).Err(err).Log("connection aborted")
	} else {
		err = nil
		t.logger.Debug().Str("remote", t.remote.String()).Log("connection closed")
	}
	t.protocol.ConnectionLost(err)

	if t.onClose != nil {
		t.onClose(t)
	}

	_ = closeSocketFD(t.fd)
	t.fd = -1
}

func (t *Transport) setOnClose(fn func(*Transport)) { t.onClose = fn }

// WriteLimit returns the current high watermark.
func (t *Transport) WriteLimit() int { return t.highWater }

// SetWriteLimit sets the high watermark (>= 64 KiB), recomputes the low
// watermark as floor(high*0.67), and immediately reconciles so hysteresis
// crossings are re-evaluated against the new thresholds.
func (t *Transport) SetWriteLimit(n int) error {
	if n < writeLimitFloor {
		return ErrWriteLimitTooSmall
	}
	t.highWater = n
	t.lowWater = lowWaterFor(n)
	t.reconcile()
	return nil
}

// Timeout returns the idle timer's current period in seconds (0 if
// disabled).
func (t *Transport) Timeout() float64 { return t.timer.Seconds() }

// SetTimeout arms/re-arms the idle timer; 0 disables it.
func (t *Transport) SetTimeout(seconds float64) { t.timer.SetSeconds(seconds) }

// RemoteAddr returns the peer address of the underlying socket.
func (t *Transport) RemoteAddr() net.Addr { return t.remote }
