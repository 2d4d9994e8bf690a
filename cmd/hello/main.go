// Command hello is the minimal block_on scenario: it constructs an
// Executor, drives a Future that never touches the reactor, and
// prints the result.
package main

import (
	"fmt"
	"log"

	"github.com/behrlich/aruntime"
)

func main() {
	ex, err := aruntime.NewExecutor(aruntime.DefaultConfig(), nil)
	if err != nil {
		log.Fatalf("new executor: %v", err)
	}
	defer ex.Close()

	result, err := aruntime.BlockOn(ex, func(*aruntime.Executor) aruntime.Future[int] {
		return aruntime.Ready[int]{Val: 42}
	})
	if err != nil {
		log.Fatalf("block_on: %v", err)
	}
	fmt.Printf("Hello, world! result=%d\n", result)
}
