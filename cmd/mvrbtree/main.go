// Package main provides the mvrbtree command line tool, which stores string
// key/value pairs in a persistent paged red-black tree file.
package main

import (
	"fmt"
	"io"
	"os"
)

// Output streams, swapped by tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	exitCode := run(os.Args)
	os.Exit(exitCode)
}

// run executes the CLI and returns an exit code.
func run(args []string) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 1
	}

	switch args[1] {
	case "put":
		return putCmd(args[2:])
	case "get":
		return getCmd(args[2:])
	case "remove":
		return removeCmd(args[2:])
	case "scan":
		return scanCmd(args[2:])
	case "stats":
		return statsCmd(args[2:])
	case "check":
		return checkCmd(args[2:])
	case "seed":
		return seedCmd(args[2:])
	case "soak":
		return soakCmd(args[2:])
	case "config":
		return configCmd(args[2:])
	case "version":
		return versionCmd(args[2:])
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		fmt.Fprintln(stderr, "Run 'mvrbtree help' for usage.")
		return 1
	}
}
