package bufpool

import "testing"

func TestGetResetsLen(t *testing.T) {
	b := Get()
	b.Len = 4
	Put(b)

	b2 := Get()
	if b2.Len == 4 {
		t.Fatalf("Get() returned stale Len=4, want it reset to full capacity")
	}
}

func TestReuse(t *testing.T) {
	b1 := Get()
	Put(b1)
	b2 := Get()
	Put(b2)
	// Not asserting identity: sync.Pool reuse is best-effort, but the
	// pool must never panic across repeated Get/Put cycles.
}

func BenchmarkGetPut(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf := Get()
		Put(buf)
	}
}
