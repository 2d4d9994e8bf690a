//go:build !linux

// The stub backend lets this module build (but not usefully run) on
// non-Linux platforms. io_uring is Linux-only; every method reports
// ENOSYS rather than pretending to implement an alternate async I/O
// path.
package ring

import "syscall"

type stubRing struct{}

// New returns a ring stub. The returned error is always non-nil:
// construction itself fails with ENOSYS since there is no kernel
// facility to back it.
func New(cfg Config) (Ring, error) {
	return nil, syscall.ENOSYS
}

func (stubRing) PrepareSQE(e Entry) error                { return syscall.ENOSYS }
func (stubRing) Submit() (uint32, error)                 { return 0, syscall.ENOSYS }
func (stubRing) SubmitAndWait(uint32) (uint32, error)     { return 0, syscall.ENOSYS }
func (stubRing) PeekCQE() (Completion, bool)              { return Completion{}, false }
func (stubRing) Close() error                             { return syscall.ENOSYS }
