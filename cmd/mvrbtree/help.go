package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage information to the given writer.
func printUsage(w io.Writer) {
	fmt.Fprint(w, `mvrbtree - persistent paged red-black tree

Usage:
  mvrbtree <command> [options]

Commands:
  put         Store a key/value pair
  get         Print the value of a key
  remove      Remove a key
  scan        List entries in key order
  stats       Show tree and store statistics
  check       Verify the tree structure
  seed        Insert generated entries
  soak        Run a random workload against the index
  config      Configuration management
  version     Show version information

Common options:
  -config string
        Path to configuration file
  -data string
        Data directory (overrides config)

Use "mvrbtree <command> -h" for more information about a command.
`)
}

func printPutUsage(w io.Writer) {
	fmt.Fprint(w, `Store a key/value pair

Usage:
  mvrbtree put [options] <key> <value>
`)
}

func printGetUsage(w io.Writer) {
	fmt.Fprint(w, `Print the value of a key

Usage:
  mvrbtree get [options] <key>
`)
}

func printRemoveUsage(w io.Writer) {
	fmt.Fprint(w, `Remove a key

Usage:
  mvrbtree remove [options] <key>
`)
}

func printScanUsage(w io.Writer) {
	fmt.Fprint(w, `List entries in key order

Usage:
  mvrbtree scan [options]

Options:
  -from string
        Start at the first key >= from
  -limit int
        Maximum number of entries, 0 for all
`)
}

func printSeedUsage(w io.Writer) {
	fmt.Fprint(w, `Insert generated entries

Usage:
  mvrbtree seed [options]

Options:
  -count int
        Number of entries to insert (default 1000)
`)
}

// printConfigUsage prints the config command usage.
func printConfigUsage(w io.Writer) {
	fmt.Fprint(w, `Configuration management

Usage:
  mvrbtree config <subcommand> [options]

Subcommands:
  validate    Validate configuration file
  init        Generate default configuration
  show        Show effective configuration
`)
}

// printVersionUsage prints the version command usage.
func printVersionUsage(w io.Writer) {
	fmt.Fprint(w, `Show version information

Usage:
  mvrbtree version [options]

Options:
  -short
        Show only version number
  -h, -help
        Show this help message
`)
}

func printSoakUsage(w io.Writer) {
	fmt.Fprint(w, `Run a random put/get/remove workload against the index

Usage:
  mvrbtree soak [options]

Options:
  -duration duration
        How long to run (default 30s)
  -commit-every duration
        Commit interval (default 1s)
  -ops int
        Stop after this many operations (0 = no limit)

Tree settings are reloaded when the config file changes or on SIGHUP.
`)
}
