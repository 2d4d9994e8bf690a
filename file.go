package aruntime

import (
	"golang.org/x/sys/unix"

	"github.com/behrlich/aruntime/internal/reactor"
)

// File is an open regular-file descriptor whose reads, writes, and
// syncs are driven through the installed Executor's reactor.
// Construction and every method must run inside BlockOn on the
// goroutine that owns that executor.
type File struct {
	fd     int
	closed bool
}

// Open opens path with the given flags/mode and wraps the resulting
// descriptor. Openat's outcome is not checked here: a failed open
// yields a negative fd that is stored as-is, matching
// original_source/src/fs/file.rs's infallible File::open. The failure
// surfaces as an ordinary OS error on the file's first read, write, or
// sync, never here.
func Open(path string, flags int, mode uint32) (*File, error) {
	fd, _ := unix.Openat(unix.AT_FDCWD, path, flags, mode)
	return &File{fd: fd}, nil
}

// Fd returns the underlying descriptor.
func (f *File) Fd() int { return f.fd }

// Read returns a Future that reads up to len(buf) bytes from the
// file's current offset into buf.
func (f *File) Read(buf []byte) Future[int] {
	return &rwFuture{fd: f.fd, buf: buf, write: false}
}

// Write returns a Future that writes buf to the file at its current
// offset.
func (f *File) Write(buf []byte) Future[int] {
	return &rwFuture{fd: f.fd, buf: buf, write: true}
}

// Sync returns a Future that fsyncs the file.
func (f *File) Sync() Future[struct{}] {
	return &fsyncFuture{fd: f.fd}
}

// Close invalidates any wakers still registered against this
// descriptor and closes it. Outstanding kernel operations are not
// cancelled; their completions are silently dropped as late
// completions.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	Current().reactorHandle().InvalidateFd(f.fd)
	return unix.Close(f.fd)
}

type fsyncFuture struct {
	fd    int
	state opState
	token reactor.Token
}

func (fu *fsyncFuture) Poll(ex *Executor, w Waker) (struct{}, bool, error) {
	re := ex.reactorHandle()
	switch fu.state {
	case stateUnsubmitted:
		fu.token = re.SubmitFsync(fu.fd, w)
		fu.state = stateAwaiting
		return struct{}{}, false, nil
	case stateAwaiting:
		r, ok := re.TakeResult(fu.token)
		if !ok {
			return struct{}{}, false, nil
		}
		fu.state = stateDone
		if r < 0 {
			return struct{}{}, true, newOSError("fsync", fu.fd, r)
		}
		return struct{}{}, true, nil
	default:
		return struct{}{}, true, nil
	}
}
