// The recoveryd program runs one crash-recovery pass over a volume and is
// named accordingly.
package main

import (
	"fmt"
	"log"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/prasadlvi/vdo/recoveryd"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("no .conf file specified")
	}

	errChan := make(chan error, 1) // Must be buffered to avoid race
	var wg sync.WaitGroup

	go recoveryd.Daemon(os.Args[1], os.Args[2:], errChan, &wg, unix.SIGINT, unix.SIGTERM)

	err := <-errChan
	if nil != err {
		fmt.Fprintf(os.Stderr, "recoveryd: Daemon() startup failed: %v\n", err) // Can't use logger.*() as it may not be "up"
		os.Exit(1)
	}

	err = <-errChan

	wg.Wait() // wait for services to go Down()

	if nil != err {
		fmt.Fprintf(os.Stderr, "recoveryd: Daemon() returned error: %v\n", err)
		os.Exit(1)
	}
}
