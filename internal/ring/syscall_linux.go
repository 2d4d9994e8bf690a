//go:build linux && !giouring

// The raw-syscall backend talks to the kernel directly through
// io_uring_setup/io_uring_enter and manual mmap of the submission and
// completion rings, for builds that don't want the giouring
// dependency: mmap'd head/tail pointers, manual SQE/CQE structs, raw
// syscall.Syscall invocations.
package ring

import (
	"fmt"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/behrlich/aruntime/internal/logging"
)

const (
	opRead   = 22
	opWrite  = 23
	opAccept = 13
	opFsync  = 3
	opReadv  = 1
	opWritev = 2

	ioUringOffSQRing = 0x0
	ioUringOffCQRing = 0x8000000
	ioUringOffSQEs   = 0x10000000

	ioUringEnterGetEvents = 1 << 0
)

// sqe64 mirrors the kernel's 64-byte io_uring_sqe layout for the
// opcodes this runtime issues (READ/WRITE/ACCEPT/FSYNC/READV/WRITEV).
type sqe64 struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64 // file offset; reused as addr2 (addrlen ptr) for ACCEPT
	addr        uint64 // buffer/iovec/sockaddr pointer
	len         uint32 // buffer length or iovec count
	opcodeFlags uint32
	userData    uint64
	bufIndex    uint16
	personality uint16
	spliceFdIn  int32
	_           [2]uint64
}

// cqe16 mirrors the kernel's 16-byte io_uring_cqe layout.
type cqe16 struct {
	userData uint64
	res      int32
	flags    uint32
}

type ringOffsets struct {
	head, tail, ringMask, ringEntries, flags, dropped, array uint32
	resv1                                                    uint32
	userAddr                                                 uint64
}

type params struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        ringOffsets
	cqOff        struct {
		head, tail, ringMask, ringEntries, overflow, cqes, flags uint32
		resv1                                                    uint32
		userAddr                                                 uint64
	}
}

type syscallRing struct {
	fd     int
	p      params
	sqMem  []byte
	cqMem  []byte
	sqes   []byte
	sqHead *uint32
	sqTail *uint32
	sqMask uint32
	sqArr  []uint32

	cqHead *uint32
	cqTail *uint32
	cqMask uint32
	cqes   []byte

	pendingTail uint32 // local copy of the SQ tail; PrepareSQE publishes it after each entry
}

// New creates the raw-syscall ring backend.
func New(cfg Config) (Ring, error) {
	logger := logging.Default()
	var p params
	ringFd, _, errno := syscall.Syscall(unix.SYS_IO_URING_SETUP, uintptr(cfg.Entries), uintptr(unsafe.Pointer(&p)), 0)
	if errno != 0 {
		return nil, fmt.Errorf("ring: io_uring_setup: %w", errno)
	}
	logger.Debug("io_uring_setup succeeded", "fd", int(ringFd), "sq_entries", p.sqEntries, "cq_entries", p.cqEntries)

	sqRingSize := p.sqOff.array + p.sqEntries*4
	cqRingSize := p.cqOff.cqes + p.cqEntries*uint32(unsafe.Sizeof(cqe16{}))
	sqesSize := p.sqEntries * uint32(unsafe.Sizeof(sqe64{}))

	sqMem, err := unix.Mmap(int(ringFd), ioUringOffSQRing, int(sqRingSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		syscall.Close(int(ringFd))
		return nil, fmt.Errorf("ring: mmap SQ ring: %w", err)
	}
	cqMem, err := unix.Mmap(int(ringFd), ioUringOffCQRing, int(cqRingSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(sqMem)
		syscall.Close(int(ringFd))
		return nil, fmt.Errorf("ring: mmap CQ ring: %w", err)
	}
	sqes, err := unix.Mmap(int(ringFd), ioUringOffSQEs, int(sqesSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(sqMem)
		unix.Munmap(cqMem)
		syscall.Close(int(ringFd))
		return nil, fmt.Errorf("ring: mmap SQEs: %w", err)
	}

	r := &syscallRing{
		fd:     int(ringFd),
		p:      p,
		sqMem:  sqMem,
		cqMem:  cqMem,
		sqes:   sqes,
		sqHead: (*uint32)(unsafe.Pointer(&sqMem[p.sqOff.head])),
		sqTail: (*uint32)(unsafe.Pointer(&sqMem[p.sqOff.tail])),
		sqMask: *(*uint32)(unsafe.Pointer(&sqMem[p.sqOff.ringMask])),
		cqHead: (*uint32)(unsafe.Pointer(&cqMem[p.cqOff.head])),
		cqTail: (*uint32)(unsafe.Pointer(&cqMem[p.cqOff.tail])),
		cqMask: *(*uint32)(unsafe.Pointer(&cqMem[p.cqOff.ringMask])),
		cqes:   cqMem[p.cqOff.cqes:],
	}
	arrPtr := unsafe.Pointer(&sqMem[p.sqOff.array])
	r.sqArr = unsafe.Slice((*uint32)(arrPtr), p.sqEntries)
	r.pendingTail = atomic.LoadUint32(r.sqTail)
	return r, nil
}

func (r *syscallRing) PrepareSQE(e Entry) error {
	head := atomic.LoadUint32(r.sqHead)
	if r.pendingTail-head >= r.p.sqEntries {
		return ErrRingFull
	}
	idx := r.pendingTail & r.sqMask
	s := (*sqe64)(unsafe.Pointer(&r.sqes[uintptr(idx)*unsafe.Sizeof(sqe64{})]))
	*s = sqe64{}
	s.fd = e.Fd
	s.addr = uint64(e.Addr)
	s.len = e.Len
	s.userData = e.UserData
	switch e.Op {
	case OpRead:
		s.opcode = opRead
		s.off = e.Offset
	case OpWrite:
		s.opcode = opWrite
		s.off = e.Offset
	case OpAccept:
		s.opcode = opAccept
		s.off = uint64(e.Addr2) // addrlen pointer, per ACCEPT's addr2 union slot
	case OpFsync:
		s.opcode = opFsync
	case OpReadv:
		s.opcode = opReadv
		s.off = e.Offset
	case OpWritev:
		s.opcode = opWritev
		s.off = e.Offset
	default:
		return fmt.Errorf("ring: unknown op %d", e.Op)
	}
	r.sqArr[idx] = idx
	r.pendingTail++
	Sfence()
	atomic.StoreUint32(r.sqTail, r.pendingTail)
	return nil
}

func (r *syscallRing) enter(toSubmit, minComplete, flags uint32) (uint32, error) {
	n, _, errno := syscall.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd), uintptr(toSubmit), uintptr(minComplete), uintptr(flags), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return uint32(n), nil
}

func (r *syscallRing) Submit() (uint32, error) {
	toSubmit := r.pendingTail - atomic.LoadUint32(r.sqHead)
	n, err := r.enter(toSubmit, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("ring: io_uring_enter: %w", err)
	}
	return n, nil
}

func (r *syscallRing) SubmitAndWait(minComplete uint32) (uint32, error) {
	toSubmit := r.pendingTail - atomic.LoadUint32(r.sqHead)
	n, err := r.enter(toSubmit, minComplete, ioUringEnterGetEvents)
	if err != nil {
		return 0, fmt.Errorf("ring: io_uring_enter: %w", err)
	}
	return n, nil
}

func (r *syscallRing) PeekCQE() (Completion, bool) {
	Mfence()
	head := atomic.LoadUint32(r.cqHead)
	tail := atomic.LoadUint32(r.cqTail)
	if head == tail {
		return Completion{}, false
	}
	idx := head & r.cqMask
	c := (*cqe16)(unsafe.Pointer(&r.cqes[uintptr(idx)*unsafe.Sizeof(cqe16{})]))
	out := Completion{UserData: c.userData, Res: c.res, Flags: c.flags}
	atomic.StoreUint32(r.cqHead, head+1)
	return out, true
}

func (r *syscallRing) Close() error {
	unix.Munmap(r.sqes)
	unix.Munmap(r.cqMem)
	unix.Munmap(r.sqMem)
	return syscall.Close(r.fd)
}
