package aruntime

import "github.com/behrlich/aruntime/internal/reactor"

// Re-exported tunables for callers constructing an Executor without
// reaching into internal/reactor directly. DefaultAcceptBacklog lives
// in tcp.go, next to the Listen function it configures.
const (
	// DefaultRingEntries is the default io_uring submission queue depth.
	DefaultRingEntries = reactor.DefaultRingEntries
)

// DefaultConfig returns a reactor.Config with DefaultRingEntries.
func DefaultConfig() reactor.Config {
	return reactor.Config{Entries: DefaultRingEntries}
}
