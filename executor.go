package aruntime

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/behrlich/aruntime/internal/logging"
	"github.com/behrlich/aruntime/internal/reactor"
)

// Future is a suspendable unit of work. Poll either yields a final
// value (done=true) or reports it is still awaiting progress
// (done=false, in which case val and err are zero). A Future that
// suspends on I/O forwards w down to the reactor submission so the
// same waker that covers its enclosing task is invoked on completion.
type Future[T any] interface {
	Poll(ex *Executor, w Waker) (val T, done bool, err error)
}

// Waker is the resumption handle a suspended Future registers with
// the reactor. Invoking Wake marks the owning task ready for the next
// executor tick; duplicate wakes between ticks collapse to one poll.
type Waker struct {
	ready *atomic.Bool
}

// Wake marks the task owning w ready for the next tick.
func (w Waker) Wake() {
	if w.ready != nil {
		w.ready.Store(true)
	}
}

// Ready is a Future that is immediately done with a fixed value; it
// never touches the reactor. Used by the hello-world scenario and as
// a building block for computations that need no I/O.
type Ready[T any] struct {
	Val T
	Err error
}

func (r Ready[T]) Poll(ex *Executor, w Waker) (T, bool, error) {
	return r.Val, true, r.Err
}

type spawnedTask struct {
	future Future[struct{}]
	ready  atomic.Bool
}

// Executor is a single-threaded cooperative scheduler. It owns the
// reactor and the FIFO run queue of spawned computations; neither is
// safe to touch from another goroutine.
type Executor struct {
	reactor  *reactor.Reactor
	runQueue []*spawnedTask
	metrics  *Metrics
}

// currentExecutor is the thread-local-equivalent "current runtime"
// handle. Go has no true thread-locals; this relies on the executor
// pinning its goroutine to one OS thread for the duration of BlockOn.
var currentExecutor *Executor

// Current returns the executor installed by the innermost BlockOn
// call on this goroutine, and panics if none is installed. The facades'
// Close methods reach the reactor through it, so closing a File,
// TcpListener or TcpStream outside any BlockOn panics.
func Current() *Executor {
	if currentExecutor == nil {
		panic("aruntime: no executor installed; construct I/O objects only inside BlockOn")
	}
	return currentExecutor
}

// NewExecutor creates an executor with its own io_uring-backed
// reactor. m may be nil to disable metrics recording.
func NewExecutor(cfg reactor.Config, m *Metrics) (*Executor, error) {
	var rm *reactor.Metrics
	if m != nil {
		rm = m.reactor
	}
	re, err := reactor.New(cfg, rm)
	if err != nil {
		return nil, err
	}
	return &Executor{reactor: re, metrics: m}, nil
}

// Close releases the executor's reactor.
func (ex *Executor) Close() error {
	return ex.reactor.Close()
}

func (ex *Executor) reactorHandle() *reactor.Reactor {
	return ex.reactor
}

// Spawn enqueues f onto the run queue. Spawned computations do not
// produce a value to the caller; if they complete with an error it is
// logged and dropped.
func (ex *Executor) Spawn(f Future[struct{}]) {
	t := &spawnedTask{future: f}
	t.ready.Store(true)
	ex.runQueue = append(ex.runQueue, t)
}

func (ex *Executor) compactRunQueue(done map[*spawnedTask]bool) {
	if len(done) == 0 {
		return
	}
	kept := ex.runQueue[:0]
	for _, t := range ex.runQueue {
		if !done[t] {
			kept = append(kept, t)
		}
	}
	ex.runQueue = kept
}

// tickSpawned polls every currently-queued ready task once, in
// arrival order, and reports whether any task made progress and
// whether any task is ready going into the next tick.
func (ex *Executor) tickSpawned() (progressed bool, anyReady bool) {
	done := make(map[*spawnedTask]bool)
	for _, t := range ex.runQueue {
		if !t.ready.Load() {
			continue
		}
		t.ready.Store(false)
		w := Waker{ready: &t.ready}
		_, taskDone, err := t.future.Poll(ex, w)
		progressed = true
		if err != nil {
			logging.Debug("spawned task failed", "error", err)
		}
		if taskDone {
			done[t] = true
		}
	}
	ex.compactRunQueue(done)
	for _, t := range ex.runQueue {
		if t.ready.Load() {
			anyReady = true
			break
		}
	}
	return progressed, anyReady
}

// BlockOn constructs the root computation from factory inside the
// runtime context and drives it to completion, pumping the reactor
// whenever neither the root nor the run queue can make progress.
func BlockOn[T any](ex *Executor, factory func(*Executor) Future[T]) (T, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	prev := currentExecutor
	currentExecutor = ex
	defer func() { currentExecutor = prev }()

	mainReady := &atomic.Bool{}
	mainReady.Store(true)
	mainWaker := Waker{ready: mainReady}
	main := factory(ex)

	for {
		if mainReady.Swap(false) {
			val, done, err := main.Poll(ex, mainWaker)
			if done {
				return val, err
			}
		}

		progressed, runQueueReady := ex.tickSpawned()
		if progressed && (mainReady.Load() || runQueueReady) {
			continue
		}

		if mainReady.Load() || runQueueReady {
			continue
		}

		if ex.reactor.Outstanding() == 0 {
			panic(newInvariantError("block_on", fmt.Sprintf("deadlock: no ready tasks and no outstanding submissions (runQueue=%d)", len(ex.runQueue))))
		}

		ex.reactor.Pump()
	}
}
