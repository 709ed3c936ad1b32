// Package main implements the shlock CLI, an operator tool for named
// cross-process locks.
//
// Usage:
//
//	shlock open -kind sem -count 4 jobs   # create or attach, print the header
//	shlock hold -kind rwlock -mode read -for 5s catalog
//	shlock inspect jobs                   # dump the shared header
//	shlock rm jobs                        # remove the name
//	shlock bench -kind mutex -workers 16 orders
//	shlock serve -addr :9464 orders jobs  # /metrics, /live, /ready
package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch command := os.Args[1]; command {
	case "open":
		err = openCommand(os.Args[2:])
	case "hold":
		err = holdCommand(os.Args[2:])
	case "inspect":
		err = inspectCommand(os.Args[2:])
	case "rm":
		err = rmCommand(os.Args[2:])
	case "bench":
		err = benchCommand(os.Args[2:])
	case "serve":
		err = serveCommand(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("shlock version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`shlock - named cross-process locks over POSIX shared memory

USAGE:
    shlock <command> [flags] <name>...

COMMANDS:
    open       Create or attach to a primitive and print its header
    hold       Acquire a primitive, hold it for a while, release it
    inspect    Print the shared header of a primitive
    rm         Remove a primitive's name from the namespace
    bench      Hammer a primitive from many workers and report contention
    serve      Keep primitives open and serve metrics and health endpoints
    version    Show version information
    help       Show this help message

COMMON FLAGS:
    -dir       shared memory directory (default /dev/shm, env SHLOCK_DIR)
    -kind      mutex, rwlock or sem (default mutex)

ENVIRONMENT:
    SHLOCK_LOG_LEVEL   0 trace, 1 debug, 2 info, 3 warn (default), 4 error, 5 off
`)
}
