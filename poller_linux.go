//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// epollPoller implements poller using epoll, grown on demand.
type epollPoller struct {
	epfd     int
	eventBuf [256]unix.EpollEvent
	fds      []fdInfo
	closed   bool
}

func newPoller() poller { return &epollPoller{} }

func (p *epollPoller) Init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = epfd
	p.fds = make([]fdInfo, 256)
	return nil
}

func (p *epollPoller) Close() error {
	p.closed = true
	if p.epfd > 0 {
		return unix.Close(p.epfd)
	}
	return nil
}

func (p *epollPoller) grow(fd int) {
	if fd < len(p.fds) {
		return
	}
	newFds := make([]fdInfo, fd*2+1)
	copy(newFds, p.fds)
	p.fds = newFds
}

func (p *epollPoller) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	if p.closed {
		return ErrPollerClosed
	}
	if fd < 0 {
		return ErrFDOutOfRange
	}
	p.grow(fd)
	if p.fds[fd].active {
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}

	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		p.fds[fd] = fdInfo{}
		return err
	}
	return nil
}

func (p *epollPoller) UnregisterFD(fd int) error {
	if fd < 0 || fd >= len(p.fds) || !p.fds[fd].active {
		return ErrFDNotRegistered
	}
	p.fds[fd] = fdInfo{}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) ModifyFD(fd int, events IOEvents) error {
	if fd < 0 || fd >= len(p.fds) || !p.fds[fd].active {
		return ErrFDNotRegistered
	}
	p.fds[fd].events = events
	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

// PollIO blocks up to timeoutMs (negative means forever) and dispatches
// every ready fd's callback inline, in whatever order epoll_wait returns
// them. Watcher priorities are not consulted here or in the watcher
// dispatch above it.
func (p *epollPoller) PollIO(timeoutMs int) (int, error) {
	if p.closed {
		return 0, ErrPollerClosed
	}
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd < 0 || fd >= len(p.fds) {
			continue
		}
		info := p.fds[fd]
		if info.active && info.callback != nil {
			info.callback(epollToEvents(p.eventBuf[i].Events))
		}
	}
	return n, nil
}

func eventsToEpoll(events IOEvents) uint32 {
	var e uint32
	if events&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToEvents(e uint32) IOEvents {
	var events IOEvents
	if e&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if e&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
