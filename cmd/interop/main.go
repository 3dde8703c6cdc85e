// Interop runs one WebRTC interop scenario against the peer server in each
// selected browser and prints a pass/fail summary.
//
// Usage:
//
//	go run ./cmd/peer-server &
//	go run ./cmd/interop            # all browsers
//	go run ./cmd/interop firefox --scenario media
//	BROWSER=safari go run ./cmd/interop
//
// The exit code is 0 only when every attempted browser passed.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute runs the CLI and returns the process exit code. A panic anywhere
// in the run is reported and turned into exit code 1.
func execute(args []string) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "interop: %v\n", r)
			code = 1
		}
	}()

	cmd := newRootCmd(&code)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "interop: %v\n", err)
		return 1
	}
	return code
}
