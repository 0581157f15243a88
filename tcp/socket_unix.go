//go:build !windows

package tcp

import (
	"net"

	"golang.org/x/sys/unix"
)

// listenSocket creates, binds, and begins listening on a nonblocking TCP
// socket, with SO_REUSEADDR set, mirroring the listener construction
// clause: "address reuse enabled, binds, switches to nonblocking, begins
// listen(backlog)".
func listenSocket(address string, backlog int) (fd int, err error) {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return -1, err
	}

	domain := unix.AF_INET
	if addr.IP != nil && addr.IP.To4() == nil {
		domain = unix.AF_INET6
	}

	fd, err = unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}

	sa, err := sockaddrFromTCPAddr(addr, domain)
	if err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}

	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}

	return fd, nil
}

func sockaddrFromTCPAddr(addr *net.TCPAddr, domain int) (unix.Sockaddr, error) {
	if domain == unix.AF_INET6 {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		if addr.IP != nil {
			copy(sa.Addr[:], addr.IP.To16())
		}
		return sa, nil
	}
	sa := &unix.SockaddrInet4{Port: addr.Port}
	if addr.IP != nil {
		ip4 := addr.IP.To4()
		copy(sa.Addr[:], ip4)
	}
	return sa, nil
}

// acceptConn accepts one pending connection on listenFD, returning a
// nonblocking connection fd and the peer's address.
func acceptConn(listenFD int) (connFD int, remote net.Addr, err error) {
	connFD, sa, err := unix.Accept(listenFD)
	if err != nil {
		return -1, nil, err
	}
	if err := unix.SetNonblock(connFD, true); err != nil {
		_ = unix.Close(connFD)
		return -1, nil, err
	}
	return connFD, sockaddrToAddr(sa), nil
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, a.Addr[:])
		return &net.TCPAddr{IP: ip, Port: a.Port}
	default:
		return nil
	}
}

// localAddrFD returns the address a listening socket is actually bound to,
// letting callers pass port 0 ("any free port") and discover what was
// assigned.
func localAddrFD(fd int) (net.Addr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, err
	}
	return sockaddrToAddr(sa), nil
}

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// isFatalAcceptError reports whether err indicates the listening socket
// itself is dead (as opposed to a transient per-connection accept
// failure), in which case the listener must stop rather than keep polling.
func isFatalAcceptError(err error) bool {
	return err == unix.EBADF || err == unix.ENOTSOCK || err == unix.EINVAL
}

func recvFD(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

func sendFD(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

func closeSocketFD(fd int) error {
	_ = unix.Shutdown(fd, unix.SHUT_RDWR)
	return unix.Close(fd)
}
