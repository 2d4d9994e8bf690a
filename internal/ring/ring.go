// Package ring provides the low-level io_uring submission/completion
// interface the reactor is built on. Three build-tag-selected backends
// implement it: a real-kernel backend via giouring, a raw-syscall
// fallback, and a non-Linux stub.
package ring

import "errors"

// ErrRingFull is returned by PrepareSQE when the submission queue has
// no free slot. Callers flush (Submit) and retry.
var ErrRingFull = errors.New("ring: submission queue full")

// Op identifies the kernel opcode a submission entry requests.
type Op uint8

const (
	OpRead Op = iota
	OpWrite
	OpAccept
	OpFsync
	OpReadv
	OpWritev
)

// Entry describes one submission queue entry. Addr is the buffer
// pointer for read/write/readv/writev or the sockaddr pointer for
// accept; Addr2 is the addrlen pointer for accept (the kernel ABI
// overlays this on the same word normally used for file offset).
// Len is the buffer length in bytes, or the iovec count for
// readv/writev.
type Entry struct {
	Op       Op
	Fd       int32
	Addr     uintptr
	Addr2    uintptr
	Len      uint32
	Offset   uint64
	UserData uint64
}

// Completion is one drained completion queue entry.
type Completion struct {
	UserData uint64
	Res      int32
	Flags    uint32
}

// Config configures ring construction.
type Config struct {
	// Entries is the submission queue depth. Must be a power of two.
	Entries uint32
}

// Ring is the minimal surface the reactor needs from an io_uring
// instance. Implementations are not safe for concurrent use; the
// reactor that owns one is itself single-threaded.
type Ring interface {
	// PrepareSQE writes e into the next free submission slot and
	// advances the submission tail. It does not issue a syscall.
	// Returns ErrRingFull if the ring has no free slot.
	PrepareSQE(e Entry) error

	// Submit issues io_uring_enter to hand any prepared-but-unsubmitted
	// entries to the kernel without waiting for completions.
	Submit() (uint32, error)

	// SubmitAndWait issues io_uring_enter requesting at least
	// minComplete completions, blocking until the kernel satisfies it.
	SubmitAndWait(minComplete uint32) (uint32, error)

	// PeekCQE pops one ready completion, if any, advancing the
	// completion head. Returns ok=false when the completion queue is
	// empty.
	PeekCQE() (Completion, bool)

	// Close releases the ring's file descriptor and mmap'd memory.
	Close() error
}
