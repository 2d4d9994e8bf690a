package aruntime

import (
	"io"
	"net"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/behrlich/aruntime/internal/bufpool"
	"github.com/behrlich/aruntime/internal/reactor"
)

// DefaultAcceptBacklog is the listen() backlog used by Listen.
const DefaultAcceptBacklog = 1024

// TcpListener is a bound, listening TCP socket whose Accept is driven
// through the installed Executor's reactor.
type TcpListener struct {
	fd     int
	closed bool
}

// Listen resolves addr and binds+listens a non-blocking TCP socket.
// Listen itself never suspends; only Accept does.
func Listen(addr string) (*TcpListener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, &Error{Op: "listen", Fd: -1, Kind: KindInvalid, Msg: err.Error(), Inner: err}
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, osErrFromSyscall("listen", -1, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, osErrFromSyscall("listen", fd, err)
	}

	sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, osErrFromSyscall("listen", fd, err)
	}
	if err := unix.Listen(fd, DefaultAcceptBacklog); err != nil {
		unix.Close(fd)
		return nil, osErrFromSyscall("listen", fd, err)
	}
	return &TcpListener{fd: fd}, nil
}

// Fd returns the underlying listening descriptor.
func (l *TcpListener) Fd() int { return l.fd }

// Accept returns a Future resolving to the next inbound connection.
func (l *TcpListener) Accept() Future[*AcceptResult] {
	return &acceptFuture{fd: l.fd}
}

// Close invalidates any outstanding accept waker and closes the
// listening socket.
func (l *TcpListener) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	Current().reactorHandle().InvalidateFd(l.fd)
	return unix.Close(l.fd)
}

// AcceptResult is the value produced by a completed Accept.
type AcceptResult struct {
	Stream *TcpStream
	Addr   net.Addr
}

// TcpStream is a connected TCP socket.
type TcpStream struct {
	fd     int
	closed bool
}

// Fd returns the underlying connection descriptor.
func (s *TcpStream) Fd() int { return s.fd }

// Read returns a Future reading up to len(buf) bytes. A zero-length
// read at end of stream surfaces as io.EOF via the wrapping future,
// not as a bare 0.
func (s *TcpStream) Read(buf []byte) Future[int] {
	return &streamReadFuture{inner: rwFuture{fd: s.fd, buf: buf, write: false}}
}

// Write returns a Future writing buf to the connection.
func (s *TcpStream) Write(buf []byte) Future[int] {
	return &rwFuture{fd: s.fd, buf: buf, write: true}
}

// Close invalidates any outstanding waker and closes the connection.
func (s *TcpStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	Current().reactorHandle().InvalidateFd(s.fd)
	return unix.Close(s.fd)
}

// streamReadFuture wraps rwFuture to elevate a successful zero-byte
// read to io.EOF, matching Go's io.Reader convention rather than the
// bare-zero convention the raw read op reports.
type streamReadFuture struct {
	inner rwFuture
}

func (f *streamReadFuture) Poll(ex *Executor, w Waker) (int, bool, error) {
	n, done, err := f.inner.Poll(ex, w)
	if !done {
		return 0, false, nil
	}
	if err == nil && n == 0 && len(f.inner.buf) > 0 {
		return 0, true, io.EOF
	}
	return n, true, err
}

// acceptFuture drives a single accept submission to completion,
// silently resubmitting under a new token when the completion result
// is 0 (the kernel reported no descriptor).
type acceptFuture struct {
	fd    int
	state opState
	token reactor.Token
	buf   *bufpool.AcceptBuf
}

func (f *acceptFuture) Poll(ex *Executor, w Waker) (*AcceptResult, bool, error) {
	re := ex.reactorHandle()
	for {
		switch f.state {
		case stateUnsubmitted:
			f.buf = bufpool.Get()
			f.token = re.SubmitAccept(f.fd, w, &f.buf.Addr, &f.buf.Len)
			f.state = stateAwaiting
			return nil, false, nil
		case stateAwaiting:
			r, ok := re.TakeResult(f.token)
			if !ok {
				return nil, false, nil
			}
			buf := f.buf
			f.buf, f.state = nil, stateDone
			if r < 0 {
				bufpool.Put(buf)
				return nil, true, newOSError("accept", f.fd, r)
			}
			if r == 0 {
				// spurious completion: kernel reported no descriptor.
				// Resubmit transparently under a new token.
				bufpool.Put(buf)
				f.state = stateUnsubmitted
				continue
			}
			connFd := int(r)
			addr := buf.Addr
			bufpool.Put(buf)
			peer := decodeSockaddr(&addr)
			return &AcceptResult{Stream: &TcpStream{fd: connFd}, Addr: peer}, true, nil
		default:
			return nil, true, nil
		}
	}
}

// decodeSockaddr converts a kernel-filled unix.RawSockaddrAny into a
// net.Addr. Only AF_INET/AF_INET6 are expected from a TCP listener.
func decodeSockaddr(raw *unix.RawSockaddrAny) net.Addr {
	switch raw.Addr.Family {
	case unix.AF_INET:
		sa := (*unix.RawSockaddrInet4)(unsafe.Pointer(raw))
		return &net.TCPAddr{IP: append(net.IP{}, sa.Addr[:]...), Port: int(sa.Port<<8) | int(sa.Port>>8)}
	case unix.AF_INET6:
		sa := (*unix.RawSockaddrInet6)(unsafe.Pointer(raw))
		return &net.TCPAddr{IP: append(net.IP{}, sa.Addr[:]...), Port: int(sa.Port<<8) | int(sa.Port>>8)}
	default:
		return nil
	}
}

func osErrFromSyscall(op string, fd int, err error) *Error {
	errno, _ := err.(syscall.Errno)
	return &Error{Op: op, Fd: fd, Kind: mapErrnoToKind(errno), Errno: errno, Msg: err.Error()}
}
