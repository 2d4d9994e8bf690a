// Command filecat is the file read/write scenario: it reads two
// files concurrently (spawned alongside the root) and writes a third,
// demonstrating Open/Read/Write driven entirely through the
// reactor.
package main

import (
	"flag"
	"fmt"
	"log"

	"golang.org/x/sys/unix"

	"github.com/behrlich/aruntime"
)

func main() {
	out := flag.String("out", "./test.txt", "path to write a greeting into")
	flag.Parse()

	ex, err := aruntime.NewExecutor(aruntime.DefaultConfig(), aruntime.NewMetrics())
	if err != nil {
		log.Fatalf("new executor: %v", err)
	}
	defer ex.Close()

	_, err = aruntime.BlockOn(ex, func(e *aruntime.Executor) aruntime.Future[struct{}] {
		return &catAndWriteFuture{outPath: *out}
	})
	if err != nil {
		log.Fatalf("block_on: %v", err)
	}
}

// catAndWriteFuture spawns two readers for fixed reference files
// alongside the root, then itself writes a greeting to outPath.
type catAndWriteFuture struct {
	outPath string
	write   aruntime.Future[int]
	started bool
}

func (f *catAndWriteFuture) Poll(ex *aruntime.Executor, w aruntime.Waker) (struct{}, bool, error) {
	if !f.started {
		f.started = true
		ex.Spawn(&printFileFuture{path: "/proc/cpuinfo", label: "file1"})
		ex.Spawn(&printFileFuture{path: "/etc/hostname", label: "file2"})

		file, err := aruntime.Open(f.outPath, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0644)
		if err != nil {
			fmt.Printf("file3 err: %v\n", err)
			return struct{}{}, true, nil
		}
		fmt.Printf("file3 fd: %d\n", file.Fd())
		f.write = file.Write([]byte("Hello, world!\n"))
	}
	n, done, err := f.write.Poll(ex, w)
	if !done {
		return struct{}{}, false, nil
	}
	if err != nil {
		fmt.Printf("file3 err: %v\n", err)
	} else {
		fmt.Printf("file3 written: %d\n", n)
	}
	return struct{}{}, true, nil
}

// printFileFuture opens path, reads up to 4KiB, and prints it once
// the read resolves. Spawned computations produce no value to their
// caller, so any error is just logged.
type printFileFuture struct {
	path    string
	label   string
	buf     []byte
	read    aruntime.Future[int]
	started bool
}

func (f *printFileFuture) Poll(ex *aruntime.Executor, w aruntime.Waker) (struct{}, bool, error) {
	if !f.started {
		f.started = true
		file, err := aruntime.Open(f.path, unix.O_RDONLY, 0)
		if err != nil {
			fmt.Printf("%s err: %v\n", f.label, err)
			return struct{}{}, true, nil
		}
		fmt.Printf("%s fd: %d\n", f.label, file.Fd())
		f.buf = make([]byte, 4096)
		f.read = file.Read(f.buf)
	}
	n, done, err := f.read.Poll(ex, w)
	if !done {
		return struct{}{}, false, nil
	}
	if err != nil {
		fmt.Printf("%s err: %v\n", f.label, err)
	} else {
		fmt.Printf("%s:\n%s\n", f.label, f.buf[:n])
	}
	return struct{}{}, true, nil
}
