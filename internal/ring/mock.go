package ring

// ResultFunc computes the completion result for a prepared entry,
// used by MockRing to fabricate deterministic kernel behaviour in
// tests without touching a real io_uring instance.
type ResultFunc func(e Entry) int32

// MockRing is an in-memory Ring that completes every submitted entry
// synchronously once flushed, calling a test-supplied ResultFunc to
// decide each completion's result.
type MockRing struct {
	Result    ResultFunc
	prepared  []Entry
	completed []Completion
	closed    bool
}

// NewMockRing creates a MockRing. A nil ResultFunc defaults to
// echoing the requested length as the result (a successful full
// transfer).
func NewMockRing(fn ResultFunc) *MockRing {
	if fn == nil {
		fn = func(e Entry) int32 { return int32(e.Len) }
	}
	return &MockRing{Result: fn}
}

func (m *MockRing) PrepareSQE(e Entry) error {
	m.prepared = append(m.prepared, e)
	return nil
}

func (m *MockRing) flush() uint32 {
	n := uint32(len(m.prepared))
	for _, e := range m.prepared {
		m.completed = append(m.completed, Completion{
			UserData: e.UserData,
			Res:      m.Result(e),
		})
	}
	m.prepared = m.prepared[:0]
	return n
}

func (m *MockRing) Submit() (uint32, error) {
	return m.flush(), nil
}

func (m *MockRing) SubmitAndWait(minComplete uint32) (uint32, error) {
	return m.flush(), nil
}

func (m *MockRing) PeekCQE() (Completion, bool) {
	if len(m.completed) == 0 {
		return Completion{}, false
	}
	c := m.completed[0]
	m.completed = m.completed[1:]
	return c, true
}

func (m *MockRing) Close() error {
	m.closed = true
	return nil
}
