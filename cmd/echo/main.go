// Command echo is the listener/accept/read/write scenario: it binds
// a TCP listener and, for every accepted connection, spawns a
// computation that echoes back whatever it reads until the
// connection errors (most commonly io.EOF).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/behrlich/aruntime"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:30000", "address to listen on")
	flag.Parse()

	ex, err := aruntime.NewExecutor(aruntime.DefaultConfig(), aruntime.NewMetrics())
	if err != nil {
		log.Fatalf("new executor: %v", err)
	}
	defer ex.Close()

	// The executor owns the only OS thread driving BlockOn's loop, so
	// SIGINT/SIGTERM are handled from a separate goroutine that just
	// terminates the process; there is no in-runtime cancellation to
	// hand off to (the core explicitly excludes it, see Non-goals).
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("received shutdown signal")
		os.Exit(0)
	}()

	_, err = aruntime.BlockOn(ex, func(e *aruntime.Executor) aruntime.Future[struct{}] {
		return &acceptLoopFuture{addr: *addr}
	})
	if err != nil {
		log.Fatalf("block_on: %v", err)
	}
}

// acceptLoopFuture binds once and spawns an echoConnFuture for every
// accepted connection, forever.
type acceptLoopFuture struct {
	addr     string
	listener *aruntime.TcpListener
	accept   aruntime.Future[*aruntime.AcceptResult]
	started  bool
}

func (f *acceptLoopFuture) Poll(ex *aruntime.Executor, w aruntime.Waker) (struct{}, bool, error) {
	if !f.started {
		f.started = true
		l, err := aruntime.Listen(f.addr)
		if err != nil {
			return struct{}{}, true, err
		}
		f.listener = l
		fmt.Printf("listening on %s\n", f.addr)
		f.accept = l.Accept()
	}
	for {
		res, done, err := f.accept.Poll(ex, w)
		if !done {
			return struct{}{}, false, nil
		}
		if err != nil {
			fmt.Printf("accept err: %v\n", err)
			return struct{}{}, true, err
		}
		ex.Spawn(&echoConnFuture{stream: res.Stream, buf: make([]byte, 1024)})
		f.accept = f.listener.Accept()
	}
}

// echoConnFuture loops read -> write on one connection until an
// error (typically io.EOF) ends it.
type echoConnFuture struct {
	stream  *aruntime.TcpStream
	buf     []byte
	readFut aruntime.Future[int]
	writeN  int
	stage   int // 0 = awaiting read, 1 = awaiting write
}

func (f *echoConnFuture) Poll(ex *aruntime.Executor, w aruntime.Waker) (struct{}, bool, error) {
	for {
		switch f.stage {
		case 0:
			if f.readFut == nil {
				f.readFut = f.stream.Read(f.buf)
			}
			n, done, err := f.readFut.Poll(ex, w)
			if !done {
				return struct{}{}, false, nil
			}
			f.readFut = nil
			if err != nil {
				fmt.Printf("read err: %v\n", err)
				_ = f.stream.Close()
				return struct{}{}, true, nil
			}
			f.writeN = n
			f.stage = 1
			f.readFut = f.stream.Write(f.buf[:f.writeN])
		case 1:
			_, done, err := f.readFut.Poll(ex, w)
			if !done {
				return struct{}{}, false, nil
			}
			f.readFut = nil
			if err != nil {
				fmt.Printf("write err: %v\n", err)
				_ = f.stream.Close()
				return struct{}{}, true, nil
			}
			f.stage = 0
		}
	}
}
