package aruntime

import (
	"errors"
	"fmt"
	"syscall"
)

// Error represents a structured runtime error with context and errno mapping.
type Error struct {
	Op    string    // operation that failed (e.g. "read", "accept", "open")
	Fd    int       // descriptor involved, -1 if not applicable
	Kind  ErrorKind // high-level error category
	Errno syscall.Errno // kernel errno, 0 if not applicable
	Msg   string
	Inner error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Errno != 0 {
		msg = e.Errno.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		if e.Fd >= 0 {
			return fmt.Sprintf("aruntime: %s (op=%s fd=%d)", msg, e.Op, e.Fd)
		}
		return fmt.Sprintf("aruntime: %s (op=%s)", msg, e.Op)
	}
	return fmt.Sprintf("aruntime: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support by comparing error kinds.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

// ErrorKind categorizes runtime errors.
type ErrorKind string

const (
	KindWouldBlock ErrorKind = "would block"
	KindClosed     ErrorKind = "descriptor closed"
	KindInvalid    ErrorKind = "invalid argument"
	KindOS         ErrorKind = "OS error"
)

// ErrWouldBlock is the sentinel Kind comparison target for EAGAIN/EWOULDBLOCK
// completions; compare with errors.Is(err, ErrWouldBlock).
var ErrWouldBlock = &Error{Kind: KindWouldBlock, Fd: -1}

// newOSError builds an *Error from a negative io_uring completion result,
// per the reactor's "negative = -errno" convention.
func newOSError(op string, fd int, result int32) *Error {
	errno := syscall.Errno(-result)
	return &Error{
		Op:    op,
		Fd:    fd,
		Kind:  mapErrnoToKind(errno),
		Errno: errno,
		Msg:   errno.Error(),
	}
}

// newInvariantError wraps a fatal reactor invariant violation. Callers
// panic with it rather than propagate it: these indicate runtime bugs,
// never user errors.
func newInvariantError(op, msg string) *Error {
	return &Error{Op: op, Fd: -1, Kind: KindInvalid, Msg: msg}
}

// mapErrnoToKind maps a syscall errno to a high-level error kind.
func mapErrnoToKind(errno syscall.Errno) ErrorKind {
	switch errno {
	case syscall.EAGAIN, syscall.EWOULDBLOCK:
		return KindWouldBlock
	case syscall.EBADF, syscall.EPIPE:
		return KindClosed
	case syscall.EINVAL, syscall.E2BIG:
		return KindInvalid
	default:
		return KindOS
	}
}

// IsWouldBlock reports whether err represents EAGAIN/EWOULDBLOCK.
func IsWouldBlock(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindWouldBlock
	}
	return false
}
