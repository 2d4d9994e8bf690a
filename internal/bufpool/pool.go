// Package bufpool pools the heap-stable scratch allocations the
// accept operation needs for every submission: a sockaddr_storage
// buffer and its length out-parameter. Uses the sync.Pool,
// pointer-to-value pattern to avoid interface-boxing allocation
// overhead on a hot accept loop.
package bufpool

import (
	"sync"

	"golang.org/x/sys/unix"
)

// AcceptBuf holds the stable-address buffer and addrlen slot an
// accept submission needs. Len must be reset to the buffer's capacity
// before each submission; the kernel overwrites it with the actual
// address length on completion.
type AcceptBuf struct {
	Addr unix.RawSockaddrAny
	Len  uint32
}

var pool = sync.Pool{
	New: func() any { return &AcceptBuf{} },
}

// Get returns a ready-to-submit AcceptBuf with Len reset to the
// buffer's full capacity.
func Get() *AcceptBuf {
	b := pool.Get().(*AcceptBuf)
	b.Addr = unix.RawSockaddrAny{}
	b.Len = uint32(unix.SizeofSockaddrAny)
	return b
}

// Put returns b to the pool once its completion has been consumed.
func Put(b *AcceptBuf) {
	pool.Put(b)
}
