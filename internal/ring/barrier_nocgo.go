//go:build linux && !cgo

package ring

// Sfence and Mfence are no-ops on the non-cgo build: the surrounding
// code only ever touches the ring offsets through sync/atomic, whose
// loads and stores already carry the ordering guarantees this runtime
// needs without an explicit asm fence.
func Sfence() {}

func Mfence() {}
