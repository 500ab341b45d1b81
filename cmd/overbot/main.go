// Command overbot runs the event router with its command processor and
// configured network bridges.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "overbot: %v\n", err)
		os.Exit(1)
	}
}
