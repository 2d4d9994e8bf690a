package aruntime

import "github.com/behrlich/aruntime/internal/reactor"

// opState is the Unsubmitted/Awaiting/Done state machine every
// suspendable read/write/accept operation carries.
type opState uint8

const (
	stateUnsubmitted opState = iota
	stateAwaiting
	stateDone
)

// rwFuture implements Future[int] for a single read or write against
// an open descriptor. It is the direct Go expression of the "File /
// socket read-write operation" state machine.
type rwFuture struct {
	fd    int
	buf   []byte
	write bool
	state opState
	token reactor.Token
}

func (f *rwFuture) op() string {
	if f.write {
		return "write"
	}
	return "read"
}

func (f *rwFuture) Poll(ex *Executor, w Waker) (int, bool, error) {
	re := ex.reactorHandle()
	switch f.state {
	case stateUnsubmitted:
		if f.write {
			f.token = re.SubmitWrite(f.fd, w, f.buf)
		} else {
			f.token = re.SubmitRead(f.fd, w, f.buf)
		}
		f.state = stateAwaiting
		return 0, false, nil
	case stateAwaiting:
		r, ok := re.TakeResult(f.token)
		if !ok {
			return 0, false, nil
		}
		f.state = stateDone
		if r < 0 {
			return 0, true, newOSError(f.op(), f.fd, r)
		}
		return int(r), true, nil
	default:
		return 0, true, nil
	}
}
