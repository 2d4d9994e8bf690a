//go:build integration

// Package integration drives the runtime against a real io_uring
// instance and real file descriptors, covering the end-to-end
// scenarios enumerated in the design notes: hello world, file
// read/write, an echo server round trip, EOF surfacing, and listener
// bind errors.
package integration

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	aruntime "github.com/behrlich/aruntime"
)

func newExecutor(t *testing.T) *aruntime.Executor {
	t.Helper()
	ex, err := aruntime.NewExecutor(aruntime.DefaultConfig(), aruntime.NewMetrics())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ex.Close() })
	return ex
}

func TestHelloWorld(t *testing.T) {
	ex := newExecutor(t)
	result, err := aruntime.BlockOn(ex, func(*aruntime.Executor) aruntime.Future[int] {
		return aruntime.Ready[int]{Val: 42}
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestFileRead(t *testing.T) {
	ex := newExecutor(t)

	n, err := aruntime.BlockOn(ex, func(*aruntime.Executor) aruntime.Future[int] {
		return &openThenRead{path: "/etc/hostname", bufLen: 64}
	})
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

// openThenRead composes Open (synchronous) with Read (suspendable)
// into a single root Future: open never suspends so it runs eagerly
// on the first poll, then the read future takes over.
type openThenRead struct {
	path    string
	bufLen  int
	inner   aruntime.Future[int]
	started bool
}

func (f *openThenRead) Poll(ex *aruntime.Executor, w aruntime.Waker) (int, bool, error) {
	if !f.started {
		f.started = true
		file, err := aruntime.Open(f.path, unix.O_RDONLY, 0)
		if err != nil {
			return 0, true, err
		}
		f.inner = file.Read(make([]byte, f.bufLen))
	}
	return f.inner.Poll(ex, w)
}

func TestFileWrite(t *testing.T) {
	path := t.TempDir() + "/test.txt"
	ex := newExecutor(t)

	n, err := aruntime.BlockOn(ex, func(*aruntime.Executor) aruntime.Future[int] {
		return &openThenWrite{path: path, data: []byte("Hello, world!\n")}
	})
	require.NoError(t, err)
	assert.Equal(t, 14, n)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, fi.Size(), int64(14))
}

type openThenWrite struct {
	path    string
	data    []byte
	inner   aruntime.Future[int]
	started bool
}

func (f *openThenWrite) Poll(ex *aruntime.Executor, w aruntime.Waker) (int, bool, error) {
	if !f.started {
		f.started = true
		file, err := aruntime.Open(f.path, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0644)
		if err != nil {
			return 0, true, err
		}
		f.inner = file.Write(f.data)
	}
	return f.inner.Poll(ex, w)
}

// TestEchoServer binds a listener, accepts one connection, reads a
// client-sent payload, and echoes it back, matching the literal echo
// scenario: server read yields Ok(4), server write yields Ok(4).
func TestEchoServer(t *testing.T) {
	ex := newExecutor(t)

	result, err := aruntime.BlockOn(ex, func(e *aruntime.Executor) aruntime.Future[*echoResult] {
		return &echoServerFuture{addr: "127.0.0.1:30000"}
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 4, result.readN)
	assert.Equal(t, 4, result.writeN)
	assert.Equal(t, "ping", string(result.payload))
}

type echoResult struct {
	readN, writeN int
	payload       []byte
}

// echoServerFuture sequences bind -> start client goroutine -> accept
// -> read -> write into one polled state machine so the whole scenario
// runs as the BlockOn root. Each stage change polls the next sub-future
// at once, so every pending return has a reactor submission behind it.
type echoServerFuture struct {
	addr     string
	listener *aruntime.TcpListener
	stage    int
	accept   aruntime.Future[*aruntime.AcceptResult]
	stream   *aruntime.TcpStream
	readBuf  []byte
	readN    int
	readFut  aruntime.Future[int]
	writeFut aruntime.Future[int]
}

func (f *echoServerFuture) Poll(ex *aruntime.Executor, w aruntime.Waker) (*echoResult, bool, error) {
	for {
		switch f.stage {
		case 0:
			l, err := aruntime.Listen(f.addr)
			if err != nil {
				return nil, true, err
			}
			f.listener = l
			f.accept = l.Accept()
			go pingClient()
			f.stage = 1
		case 1:
			res, done, err := f.accept.Poll(ex, w)
			if !done {
				return nil, false, nil
			}
			if err != nil {
				return nil, true, err
			}
			f.stream = res.Stream
			f.readBuf = make([]byte, 4)
			f.readFut = f.stream.Read(f.readBuf)
			f.stage = 2
		case 2:
			n, done, err := f.readFut.Poll(ex, w)
			if !done {
				return nil, false, nil
			}
			if err != nil {
				return nil, true, err
			}
			f.readN = n
			f.writeFut = f.stream.Write(f.readBuf[:n])
			f.stage = 3
		default:
			n, done, err := f.writeFut.Poll(ex, w)
			if !done {
				return nil, false, nil
			}
			_ = f.listener.Close()
			_ = f.stream.Close()
			if err != nil {
				return nil, true, err
			}
			return &echoResult{readN: f.readN, writeN: n, payload: append([]byte{}, f.readBuf[:f.readN]...)}, true, nil
		}
	}
}

// pingClient is the external client side of the echo scenario. It
// runs on a real goroutine, not a Spawn()'d Future: the executor's
// single OS thread is pinned inside BlockOn's loop for the whole
// scenario (see cmd/echo's signal handler for the same reasoning), so
// a Spawn()'d task blocked in unix.Read here would deadlock waiting on
// a reply that only the executor it is blocking can produce. A plain
// blocking socket outside the reactor is all the scenario needs — only
// the server side is exercised through the runtime.
func pingClient() {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return
	}
	defer unix.Close(fd)
	sa := &unix.SockaddrInet4{Port: 30000, Addr: [4]byte{127, 0, 0, 1}}
	for i := 0; i < 200; i++ {
		if err := unix.Connect(fd, sa); err == nil {
			break
		}
	}
	unix.Write(fd, []byte("ping"))
	buf := make([]byte, 4)
	unix.Read(fd, buf)
}

// TestEOFSurfacing connects a client, closes it immediately, and
// asserts the server's stream read yields io.EOF rather than Ok(0).
func TestEOFSurfacing(t *testing.T) {
	ex := newExecutor(t)

	readErr, blockOnErr := aruntime.BlockOn(ex, func(e *aruntime.Executor) aruntime.Future[error] {
		return &eofScenarioFuture{addr: "127.0.0.1:30001"}
	})
	require.NoError(t, blockOnErr)
	assert.ErrorIs(t, readErr, io.EOF)
}

type eofScenarioFuture struct {
	addr     string
	listener *aruntime.TcpListener
	stage    int
	accept   aruntime.Future[*aruntime.AcceptResult]
	readFut  aruntime.Future[int]
}

func (f *eofScenarioFuture) Poll(ex *aruntime.Executor, w aruntime.Waker) (error, bool, error) {
	for {
		switch f.stage {
		case 0:
			l, err := aruntime.Listen(f.addr)
			if err != nil {
				return nil, true, err
			}
			f.listener = l
			f.accept = l.Accept()
			ex.Spawn(&clientConnectThenCloseTask{addr: f.addr})
			f.stage = 1
		case 1:
			res, done, err := f.accept.Poll(ex, w)
			if !done {
				return nil, false, nil
			}
			if err != nil {
				return nil, true, err
			}
			f.readFut = res.Stream.Read(make([]byte, 4))
			f.stage = 2
		default:
			_, done, err := f.readFut.Poll(ex, w)
			if !done {
				return nil, false, nil
			}
			_ = f.listener.Close()
			return err, true, nil
		}
	}
}

type clientConnectThenCloseTask struct {
	addr string
	done bool
}

func (c *clientConnectThenCloseTask) Poll(*aruntime.Executor, aruntime.Waker) (struct{}, bool, error) {
	if c.done {
		return struct{}{}, true, nil
	}
	c.done = true
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return struct{}{}, true, err
	}
	sa := &unix.SockaddrInet4{Port: 30001, Addr: [4]byte{127, 0, 0, 1}}
	for i := 0; i < 200; i++ {
		if err := unix.Connect(fd, sa); err == nil {
			break
		}
	}
	unix.Close(fd)
	return struct{}{}, true, nil
}

func TestListenerBindErrors(t *testing.T) {
	l1, err := aruntime.Listen("127.0.0.1:30100")
	require.NoError(t, err)
	// Listen runs outside BlockOn here, where TcpListener.Close would
	// panic (it reaches the reactor through Current), so the descriptor
	// is closed directly.
	defer unix.Close(l1.Fd())

	_, err = aruntime.Listen("127.0.0.1:30100")
	assert.Error(t, err)
}

func TestListenerEphemeralPortSucceeds(t *testing.T) {
	l, err := aruntime.Listen("0.0.0.0:0")
	require.NoError(t, err)
	defer unix.Close(l.Fd())
}
