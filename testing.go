package aruntime

import "github.com/behrlich/aruntime/internal/reactor"

// NewTestExecutor builds an Executor over a caller-supplied *Metrics
// and an already-constructed reactor, letting tests
// drive BlockOn/Spawn against a ring.MockRing instead of a real
// kernel io_uring instance.
func NewTestExecutor(re *reactor.Reactor, m *Metrics) *Executor {
	return &Executor{reactor: re, metrics: m}
}
