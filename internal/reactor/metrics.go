package reactor

import "sync/atomic"

// latencyBuckets defines the pump-to-completion latency histogram
// buckets in nanoseconds, logarithmically spaced from 1us to 10s.
// Adapted from the teacher's device-level I/O latency buckets,
// repurposed to measure the span between a token's submission and its
// drain by Pump.
var latencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks reactor/executor activity: token/completion/wake
// counters plus a pump-to-completion latency histogram. A nil
// *Metrics is valid everywhere it's accepted and simply disables
// recording.
type Metrics struct {
	TokensSubmitted    atomic.Uint64
	CompletionsDrained atomic.Uint64
	LateCompletions    atomic.Uint64
	WakesInvoked       atomic.Uint64
	PumpCalls          atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	// latencyHist[i] is the cumulative count of completions whose
	// submit-to-drain latency was <= latencyBuckets[i].
	latencyHist [numLatencyBuckets]atomic.Uint64
}

// NewMetrics creates a zeroed Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// recordLatency folds one completion's submit-to-drain latency into
// the running total and histogram. No-op on a nil Metrics.
func (m *Metrics) recordLatency(latencyNs uint64) {
	if m == nil {
		return
	}
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range latencyBuckets {
		if latencyNs <= bucket {
			m.latencyHist[i].Add(1)
		}
	}
}

// Snapshot is a point-in-time copy of the counters, useful for tests
// and logging without holding references into the live atomics.
type Snapshot struct {
	TokensSubmitted    uint64
	CompletionsDrained uint64
	LateCompletions    uint64
	WakesInvoked       uint64
	PumpCalls          uint64

	AvgLatencyNs     uint64
	LatencyHistogram [numLatencyBuckets]uint64
	LatencyP50Ns     uint64
	LatencyP99Ns     uint64
}

// Snapshot reads all counters and computes the latency percentiles
// from the current histogram state.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	snap := Snapshot{
		TokensSubmitted:    m.TokensSubmitted.Load(),
		CompletionsDrained: m.CompletionsDrained.Load(),
		LateCompletions:    m.LateCompletions.Load(),
		WakesInvoked:       m.WakesInvoked.Load(),
		PumpCalls:          m.PumpCalls.Load(),
	}
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}
	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.latencyHist[i].Load()
	}
	snap.LatencyP50Ns = m.percentile(opCount, 0.50)
	snap.LatencyP99Ns = m.percentile(opCount, 0.99)
	return snap
}

// percentile estimates the latency at the given percentile (0.0-1.0)
// by scanning the cumulative histogram for the first bucket whose
// count meets the target rank.
func (m *Metrics) percentile(opCount uint64, p float64) uint64 {
	if opCount == 0 {
		return 0
	}
	target := uint64(float64(opCount) * p)
	for i, bucket := range latencyBuckets {
		if m.latencyHist[i].Load() >= target {
			return bucket
		}
	}
	return latencyBuckets[len(latencyBuckets)-1]
}
