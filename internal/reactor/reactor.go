// Package reactor owns one io_uring instance, mints tokens for
// submitted operations, and routes completions back to the waker
// that registered them, covering the four required opcodes (read,
// write, accept, fsync) plus the two optional vector opcodes.
package reactor

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/behrlich/aruntime/internal/logging"
	"github.com/behrlich/aruntime/internal/ring"
)

// DefaultRingEntries is the default io_uring submission queue depth.
const DefaultRingEntries = 128

// Token uniquely identifies one submitted, not-yet-consumed kernel
// operation. See the Token/Slot data model.
type Token uint64

// Waker is the resumption handle invoked exactly once when the
// operation identified by its token completes.
type Waker interface {
	Wake()
}

// Config configures reactor construction.
type Config struct {
	// Entries is the ring's submission queue depth. Zero selects
	// DefaultRingEntries.
	Entries uint32
}

type wakerEntry struct {
	set     bool
	fd      int
	resumer Waker
}

type resultEntry struct {
	set bool
	val int32
}

// Reactor is single-threaded: every method must be called from the
// same goroutine that owns the executor driving it.
type Reactor struct {
	ring      ring.Ring
	wakers    []wakerEntry
	results   []resultEntry
	submitted []int64 // UnixNano at submission, for pump-to-completion latency
	free      []Token
	byFd      map[int][]Token
	metrics   *Metrics
	logger    *logging.Logger
}

// New constructs a reactor backed by a freshly created io_uring
// instance. m may be nil to disable metrics recording.
func New(cfg Config, m *Metrics) (*Reactor, error) {
	entries := cfg.Entries
	if entries == 0 {
		entries = DefaultRingEntries
	}
	r, err := ring.New(ring.Config{Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("reactor: %w", err)
	}
	return &Reactor{
		ring:    r,
		byFd:    make(map[int][]Token),
		metrics: m,
		logger:  logging.Default().Named("reactor"),
	}, nil
}

// NewWithRing constructs a reactor over an already-created ring,
// bypassing kernel construction. Used by tests to inject
// ring.MockRing.
func NewWithRing(r ring.Ring, m *Metrics) *Reactor {
	return &Reactor{
		ring:    r,
		byFd:    make(map[int][]Token),
		metrics: m,
		logger:  logging.Default().Named("reactor"),
	}
}

// Close releases the underlying ring.
func (re *Reactor) Close() error {
	return re.ring.Close()
}

func (re *Reactor) allocToken() Token {
	if n := len(re.free); n > 0 {
		tok := re.free[n-1]
		re.free = re.free[:n-1]
		return tok
	}
	tok := Token(len(re.wakers))
	re.wakers = append(re.wakers, wakerEntry{})
	re.results = append(re.results, resultEntry{})
	re.submitted = append(re.submitted, 0)
	return tok
}

// submit allocates a token, records the waker/by-fd bookkeeping, and
// pushes the submission entry, flushing to the kernel and retrying if
// the ring reports full. Submission does not return until the entry
// is successfully queued.
func (re *Reactor) submit(op ring.Op, fd int, resumer Waker, addr, addr2 uintptr, length uint32, offset uint64) Token {
	tok := re.allocToken()
	re.wakers[tok] = wakerEntry{set: true, fd: fd, resumer: resumer}
	re.results[tok] = resultEntry{}
	re.submitted[tok] = time.Now().UnixNano()
	re.byFd[fd] = append(re.byFd[fd], tok)

	entry := ring.Entry{
		Op:       op,
		Fd:       int32(fd),
		Addr:     addr,
		Addr2:    addr2,
		Len:      length,
		Offset:   offset,
		UserData: uint64(tok),
	}

	const maxFlushRetries = 4
	for attempt := 0; ; attempt++ {
		err := re.ring.PrepareSQE(entry)
		if err == nil {
			break
		}
		if err != ring.ErrRingFull {
			panic(newInvariantError("submit", err.Error()))
		}
		// The first maxFlushRetries retries flush with a plain Submit;
		// after that each retry blocks in SubmitAndWait until the kernel
		// has made progress.
		var ferr error
		if attempt < maxFlushRetries {
			_, ferr = re.ring.Submit()
		} else {
			_, ferr = re.ring.SubmitAndWait(1)
		}
		if ferr != nil {
			panic(newInvariantError("submit", ferr.Error()))
		}
	}
	if re.metrics != nil {
		re.metrics.TokensSubmitted.Add(1)
	}
	return tok
}

// SubmitRead submits a read of len(buf) bytes from fd at the current
// file position into buf.
func (re *Reactor) SubmitRead(fd int, resumer Waker, buf []byte) Token {
	var addr uintptr
	if len(buf) > 0 {
		addr = uintptr(unsafe.Pointer(&buf[0]))
	}
	return re.submit(ring.OpRead, fd, resumer, addr, 0, uint32(len(buf)), currentPos)
}

// currentPos is the io_uring offset (-1) that selects the file's
// current position, advancing it by the bytes transferred.
const currentPos = ^uint64(0)

// SubmitWrite submits a write of buf to fd at the current file position.
func (re *Reactor) SubmitWrite(fd int, resumer Waker, buf []byte) Token {
	var addr uintptr
	if len(buf) > 0 {
		addr = uintptr(unsafe.Pointer(&buf[0]))
	}
	return re.submit(ring.OpWrite, fd, resumer, addr, 0, uint32(len(buf)), currentPos)
}

// SubmitAccept submits an accept on the listening descriptor fd. addr
// and addrlen must remain valid and unmoved until the operation
// resolves; callers pool them via internal/bufpool.
func (re *Reactor) SubmitAccept(fd int, resumer Waker, addr *unix.RawSockaddrAny, addrlen *uint32) Token {
	return re.submit(ring.OpAccept, fd, resumer, uintptr(unsafe.Pointer(addr)), uintptr(unsafe.Pointer(addrlen)), 0, 0)
}

// SubmitFsync submits an fsync of fd.
func (re *Reactor) SubmitFsync(fd int, resumer Waker) Token {
	return re.submit(ring.OpFsync, fd, resumer, 0, 0, 0, 0)
}

// SubmitReadv submits a vectored read. iovs must remain alive and
// unmoved until the operation resolves.
func (re *Reactor) SubmitReadv(fd int, resumer Waker, iovs []unix.Iovec) Token {
	var addr uintptr
	if len(iovs) > 0 {
		addr = uintptr(unsafe.Pointer(&iovs[0]))
	}
	return re.submit(ring.OpReadv, fd, resumer, addr, 0, uint32(len(iovs)), 0)
}

// SubmitWritev submits a vectored write. iovs must remain alive and
// unmoved until the operation resolves.
func (re *Reactor) SubmitWritev(fd int, resumer Waker, iovs []unix.Iovec) Token {
	var addr uintptr
	if len(iovs) > 0 {
		addr = uintptr(unsafe.Pointer(&iovs[0]))
	}
	return re.submit(ring.OpWritev, fd, resumer, addr, 0, uint32(len(iovs)), 0)
}

// TakeResult returns and clears the completion result for tok,
// exactly once. Subsequent calls return (0, false).
func (re *Reactor) TakeResult(tok Token) (int32, bool) {
	e := &re.results[tok]
	if !e.set {
		return 0, false
	}
	v := e.val
	e.set = false
	re.free = append(re.free, tok)
	return v, true
}

// InvalidateFd drops the wakers for every token bound to fd without
// cancelling the underlying kernel operation. Idempotent: calling it
// twice for the same fd after the first call is a no-op.
func (re *Reactor) InvalidateFd(fd int) {
	toks := re.byFd[fd]
	for _, tok := range toks {
		re.wakers[tok] = wakerEntry{}
	}
	delete(re.byFd, fd)
}

func (re *Reactor) removeFromByFd(fd int, tok Token) {
	list := re.byFd[fd]
	for i, t := range list {
		if t == tok {
			list[i] = list[len(list)-1]
			list = list[:len(list)-1]
			break
		}
	}
	if len(list) == 0 {
		delete(re.byFd, fd)
	} else {
		re.byFd[fd] = list
	}
}

// Outstanding returns the number of tokens with a live waker slot —
// submissions that have neither been dropped by InvalidateFd nor
// completed yet. BlockOn uses this to detect a genuine deadlock
// (nothing ready, nothing the reactor could ever wake).
func (re *Reactor) Outstanding() int {
	n := 0
	for fd := range re.byFd {
		n += len(re.byFd[fd])
	}
	return n
}

// Pump submits any pending entries, blocks for at least one
// completion, and drains every ready completion queue entry.
func (re *Reactor) Pump() {
	if _, err := re.ring.SubmitAndWait(1); err != nil {
		panic(newInvariantError("pump", err.Error()))
	}
	if re.metrics != nil {
		re.metrics.PumpCalls.Add(1)
	}
	for {
		c, ok := re.ring.PeekCQE()
		if !ok {
			break
		}
		re.drain(c)
	}
}

func (re *Reactor) drain(c ring.Completion) {
	tok := Token(c.UserData)
	if int(tok) >= len(re.wakers) {
		panic(newInvariantError("pump", "completion for unknown token"))
	}
	w := &re.wakers[tok]
	if !w.set {
		re.logger.Debug("dropping late completion", "token", tok)
		if re.metrics != nil {
			re.metrics.LateCompletions.Add(1)
		}
		re.free = append(re.free, tok)
		return
	}
	fd, resumer := w.fd, w.resumer
	*w = wakerEntry{}
	re.results[tok] = resultEntry{set: true, val: c.Res}
	re.removeFromByFd(fd, tok)
	if re.metrics != nil {
		re.metrics.CompletionsDrained.Add(1)
		re.metrics.recordLatency(uint64(time.Now().UnixNano() - re.submitted[tok]))
	}
	resumer.Wake()
	if re.metrics != nil {
		re.metrics.WakesInvoked.Add(1)
	}
}
