//go:build windows

package tcp

import "net"

// Windows builds inherit reactor.ErrBackendUnsupported from the reactor
// package itself (no epoll/kqueue-equivalent readiness backend is wired
// up); these stubs exist only so the package still compiles there.

func listenSocket(address string, backlog int) (fd int, err error) {
	return -1, errUnsupportedPlatform
}

func acceptConn(listenFD int) (connFD int, remote net.Addr, err error) {
	return -1, nil, errUnsupportedPlatform
}

func recvFD(fd int, buf []byte) (int, error) { return 0, errUnsupportedPlatform }
func sendFD(fd int, buf []byte) (int, error) { return 0, errUnsupportedPlatform }
func closeSocketFD(fd int) error             { return errUnsupportedPlatform }
func isWouldBlock(error) bool                { return false }
func isFatalAcceptError(error) bool          { return true }
func localAddrFD(fd int) (net.Addr, error)   { return nil, errUnsupportedPlatform }
