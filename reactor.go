//go:build linux

package minired

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sys/unix"

	"github.com/pior/minired/arena"
	"github.com/pior/minired/protocol"
)

// Event tokens for the two descriptors that are not client connections.
// Client tokens carry the arena slot index in Fd and the handle generation
// in Pad; slot indices are never negative, so these markers never collide.
const (
	listenToken = -1
	wakeToken   = -2
)

// reactor is the single-threaded edge-triggered event loop. It owns the
// accept and read paths and the registration tokens; workers own the
// response path and re-enter only through armReadWrite and remove.
type reactor struct {
	epfd     int
	listenFd int
	wakeFd   int

	arena  *arena.Arena[conn]
	pool   *workerPool
	logger log.Logger
	stats  *statsCollector

	closing atomic.Bool
	events  [maxEvents]unix.EpollEvent
}

func newReactor(cfg Config, a *arena.Arena[conn], pool *workerPool, stats *statsCollector) (*reactor, error) {
	ip, port, err := parseListenAddr(cfg.Addr)
	if err != nil {
		return nil, err
	}

	listenFd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(listenFd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(listenFd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(listenFd, &unix.SockaddrInet4{Port: port, Addr: ip}); err != nil {
		unix.Close(listenFd)
		return nil, fmt.Errorf("bind %s: %w", cfg.Addr, err)
	}
	if err := unix.Listen(listenFd, unix.SOMAXCONN); err != nil {
		unix.Close(listenFd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(listenFd)
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(listenFd)
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	r := &reactor{
		epfd:     epfd,
		listenFd: listenFd,
		wakeFd:   wakeFd,
		arena:    a,
		pool:     pool,
		logger:   cfg.Logger,
		stats:    stats,
	}

	listenEv := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: listenToken}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, listenFd, &listenEv); err != nil {
		r.closeFds()
		return nil, fmt.Errorf("epoll_ctl add listener: %w", err)
	}
	wakeEv := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: wakeToken}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &wakeEv); err != nil {
		r.closeFds()
		return nil, fmt.Errorf("epoll_ctl add wake: %w", err)
	}
	return r, nil
}

func parseListenAddr(addr string) ([4]byte, int, error) {
	var ip [4]byte

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return ip, 0, fmt.Errorf("listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return ip, 0, fmt.Errorf("listen address %q: invalid port", addr)
	}
	if host != "" {
		parsed := net.ParseIP(host)
		if parsed == nil || parsed.To4() == nil {
			return ip, 0, fmt.Errorf("listen address %q: host must be IPv4", addr)
		}
		copy(ip[:], parsed.To4())
	}
	return ip, port, nil
}

// addr reports the bound listen address, resolving an OS-assigned port.
func (r *reactor) addr() string {
	sa, err := unix.Getsockname(r.listenFd)
	if err != nil {
		return ""
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return ""
	}
	host := net.IP(in4.Addr[:]).String()
	return net.JoinHostPort(host, strconv.Itoa(in4.Port))
}

// loop blocks in epoll_wait and dispatches readiness until stop is called.
func (r *reactor) loop() error {
	for {
		n, err := unix.EpollWait(r.epfd, r.events[:], -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			ev := r.events[i]
			switch ev.Fd {
			case listenToken:
				r.acceptLoop()
			case wakeToken:
				r.drainWake()
				if r.closing.Load() {
					return nil
				}
			default:
				h := arena.HandleAt(uint32(ev.Fd), uint32(ev.Pad))
				c := r.arena.Get(h)
				if c == nil {
					// Stale token: the connection went away earlier in
					// this batch.
					continue
				}
				if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
					r.remove(c)
					continue
				}
				if ev.Events&unix.EPOLLIN != 0 {
					if !r.handleRead(c) {
						continue
					}
				}
				if ev.Events&unix.EPOLLOUT != 0 {
					r.handleWrite(c)
				}
			}
		}
	}
}

// stop asks the loop to exit. Safe to call from any goroutine.
func (r *reactor) stop() {
	r.closing.Store(true)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	unix.Write(r.wakeFd, buf[:])
}

func (r *reactor) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(r.wakeFd, buf[:]); err != nil {
			return
		}
	}
}

// acceptLoop drains the listening socket until it would block.
func (r *reactor) acceptLoop() {
	for {
		nfd, _, err := unix.Accept4(r.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.EINTR:
				continue
			default:
				level.Warn(r.logger).Log("msg", "accept failed", "err", err)
				return
			}
		}

		h, c, err := r.arena.Alloc()
		if err != nil {
			r.stats.recordArenaFull()
			level.Warn(r.logger).Log("msg", "connection arena exhausted, dropping client", "fd", nfd)
			unix.Close(nfd)
			continue
		}

		c.fd = nfd
		c.handle = h
		c.state = stateReading
		c.rpos = 0
		c.wpos = 0
		c.wtotal = 0

		ev := unix.EpollEvent{
			Events: unix.EPOLLIN | unix.EPOLLET,
			Fd:     int32(h.Index()),
			Pad:    int32(h.Generation()),
		}
		if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, nfd, &ev); err != nil {
			level.Warn(r.logger).Log("msg", "epoll_ctl add client failed", "err", err)
			r.arena.Free(h)
			unix.Close(nfd)
			continue
		}

		r.stats.recordAccept()
		level.Debug(r.logger).Log("msg", "accepted", "fd", nfd)
	}
}

// handleRead drains the socket and frames requests until it would block.
// Returns false when the connection was removed.
func (r *reactor) handleRead(c *conn) bool {
	for {
		if !r.frameBuffered(c) {
			return false
		}
		if c.rpos == len(c.rbuf) {
			// A request in flight occupies the buffer; the write path
			// re-enters here once the response drains.
			return true
		}

		n, err := unix.Read(c.fd, c.rbuf[c.rpos:])
		switch {
		case n > 0:
			c.rpos += n
		case n == 0 && err == nil:
			// Peer closed.
			r.remove(c)
			return false
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return true
		case err == unix.EINTR:
			continue
		default:
			level.Debug(r.logger).Log("msg", "read failed", "fd", c.fd, "err", err)
			r.remove(c)
			return false
		}
	}
}

// frameBuffered dispatches complete requests out of the read buffer, one at
// a time: while a request is in flight the connection leaves the reading
// state and residual bytes wait their turn, which keeps per-connection
// responses in request order. Returns false when the connection was removed.
func (r *reactor) frameBuffered(c *conn) bool {
	for {
		c.mu.Lock()
		if c.state != stateReading {
			c.mu.Unlock()
			return true
		}
		line, consumed, ok := protocol.Frame(c.rbuf[:c.rpos])
		if !ok {
			c.mu.Unlock()
			break
		}
		c.state = stateProcessing
		c.mu.Unlock()

		item := newWorkItem(c, line)
		copy(c.rbuf[:], c.rbuf[consumed:c.rpos])
		c.rpos -= consumed
		r.pool.submit(item)
	}

	if c.rpos == len(c.rbuf) {
		// Full buffer without a terminator: oversized request.
		r.stats.recordOversized()
		level.Debug(r.logger).Log("msg", "request too large", "fd", c.fd)
		r.remove(c)
		return false
	}
	return true
}

// handleWrite drains the response buffer. On completion it transitions back
// to reading, restores read-only interest, and resumes the read path for any
// residual pipelined requests (an edge-triggered wakeup will not refire for
// bytes already buffered).
func (r *reactor) handleWrite(c *conn) {
	c.mu.Lock()
	if c.state != stateWriting {
		c.mu.Unlock()
		return
	}

	for c.wpos < c.wtotal {
		n, err := unix.Write(c.fd, c.wbuf[c.wpos:c.wtotal])
		if n > 0 {
			c.wpos += n
			continue
		}
		switch err {
		case unix.EAGAIN:
			c.mu.Unlock()
			return
		case unix.EINTR:
			continue
		default:
			level.Debug(r.logger).Log("msg", "write failed", "fd", c.fd, "err", err)
			c.mu.Unlock()
			r.remove(c)
			return
		}
	}

	c.state = stateReading
	c.wpos = 0
	c.wtotal = 0
	err := r.armRead(c)
	c.mu.Unlock()

	if err != nil {
		r.remove(c)
		return
	}
	r.handleRead(c)
}

func (r *reactor) armRead(c *conn) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET,
		Fd:     int32(c.handle.Index()),
		Pad:    int32(c.handle.Generation()),
	}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, c.fd, &ev)
}

func (r *reactor) armReadWrite(c *conn) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLET,
		Fd:     int32(c.handle.Index()),
		Pad:    int32(c.handle.Generation()),
	}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, c.fd, &ev)
}

// remove tears one connection down: deregister, close, and return the slot.
// If a worker still holds a work item for it, the slot stays loaned and the
// worker returns it when it observes the closing state.
func (r *reactor) remove(c *conn) {
	c.mu.Lock()
	if c.state == stateClosing {
		c.mu.Unlock()
		return
	}
	fd, handle := c.fd, c.handle
	inflight := c.state == stateProcessing
	c.state = stateClosing
	unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	unix.Close(fd)
	c.mu.Unlock()

	r.stats.recordClose()
	if !inflight {
		r.arena.Free(handle)
	}
	level.Debug(r.logger).Log("msg", "closed", "fd", fd)
}

// closeListener stops new connections; existing ones are untouched.
func (r *reactor) closeListener() {
	unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, r.listenFd, nil)
	unix.Close(r.listenFd)
}

// closeConns force-closes every live connection. Must run after the loop
// exited and the workers drained.
func (r *reactor) closeConns() {
	r.arena.Range(func(h arena.Handle, c *conn) bool {
		c.mu.Lock()
		if c.state != stateClosing {
			unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, c.fd, nil)
			unix.Close(c.fd)
			c.state = stateClosing
			r.stats.recordClose()
		}
		c.mu.Unlock()
		r.arena.Free(h)
		return true
	})
}

// closeEpoll releases the demultiplexer and the wake channel.
func (r *reactor) closeEpoll() {
	unix.Close(r.wakeFd)
	unix.Close(r.epfd)
}

func (r *reactor) closeFds() {
	unix.Close(r.wakeFd)
	unix.Close(r.epfd)
	unix.Close(r.listenFd)
}
