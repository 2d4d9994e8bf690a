package reactor

// InvariantError reports a fatal reactor invariant violation — a
// completion for an unknown token, a ring error during submission or
// pump, or similar. These indicate
// runtime bugs, never user errors, and are always raised via panic.
type InvariantError struct {
	Op  string
	Msg string
}

func (e *InvariantError) Error() string {
	return "reactor: invariant violation in " + e.Op + ": " + e.Msg
}

func newInvariantError(op, msg string) *InvariantError {
	return &InvariantError{Op: op, Msg: msg}
}
