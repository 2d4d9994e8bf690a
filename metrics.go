package aruntime

import "github.com/behrlich/aruntime/internal/reactor"

// Metrics tracks reactor/executor activity: tokens submitted,
// completions drained, late completions dropped, wakes invoked, and
// pump cycles executed. A nil *Metrics is valid everywhere it's
// accepted and disables recording.
type Metrics struct {
	reactor *reactor.Metrics
}

// NewMetrics creates a Metrics instance ready to pass to NewExecutor.
func NewMetrics() *Metrics {
	return &Metrics{reactor: reactor.NewMetrics()}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot = reactor.Snapshot

// Snapshot reads all counters. Calling Snapshot on a nil *Metrics
// returns the zero value.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return m.reactor.Snapshot()
}
