package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-faker/faker/v4"
	"go.uber.org/multierr"

	"github.com/KilimcininKorOglu/mvrbtree/internal/storage/mvrb"
)

var (
	keyColor   = color.New(color.FgCyan)
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed, color.Bold)
)

func fail(format string, args ...interface{}) int {
	errorColor.Fprint(stderr, "Error: ")
	fmt.Fprintf(stderr, format+"\n", args...)
	return 1
}

// withIndex parses flags, opens the index, runs fn and closes the index.
// fn receives the remaining positional arguments.
func withIndex(name string, args []string, want int, usage func(), readOnly bool,
	setup func(fs *flag.FlagSet), fn func(ix *index, rest []string) int) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags commonFlags
	flags.register(fs)
	help := fs.Bool("h", false, "Show help message")
	helpLong := fs.Bool("help", false, "Show help message")
	if setup != nil {
		setup(fs)
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *help || *helpLong {
		usage()
		return 0
	}
	if want >= 0 && fs.NArg() != want {
		usage()
		return 1
	}

	ix, err := openIndex(&flags, readOnly)
	if err != nil {
		return fail("%v", err)
	}
	code := fn(ix, fs.Args())
	if err := ix.close(); err != nil {
		return fail("close index: %v", err)
	}
	return code
}

// putCmd handles the put command.
func putCmd(args []string) int {
	return withIndex("put", args, 2, func() { printPutUsage(stdout) }, false, nil,
		func(ix *index, rest []string) int {
			old, existed, err := ix.tree.Put(rest[0], rest[1])
			if err != nil {
				return fail("put %q: %v", rest[0], err)
			}
			if existed {
				fmt.Fprintf(stdout, "%s replaced (was %q)\n", keyColor.Sprint(rest[0]), old)
			} else {
				fmt.Fprintf(stdout, "%s stored\n", keyColor.Sprint(rest[0]))
			}
			return 0
		})
}

// getCmd handles the get command.
func getCmd(args []string) int {
	return withIndex("get", args, 1, func() { printGetUsage(stdout) }, true, nil,
		func(ix *index, rest []string) int {
			v, ok, err := ix.tree.Get(rest[0])
			if err != nil {
				return fail("get %q: %v", rest[0], err)
			}
			if !ok {
				warnColor.Fprintf(stderr, "%s not found\n", rest[0])
				return 1
			}
			fmt.Fprintln(stdout, v)
			return 0
		})
}

// removeCmd handles the remove command.
func removeCmd(args []string) int {
	return withIndex("remove", args, 1, func() { printRemoveUsage(stdout) }, false, nil,
		func(ix *index, rest []string) int {
			_, ok, err := ix.tree.Remove(rest[0])
			if err != nil {
				return fail("remove %q: %v", rest[0], err)
			}
			if !ok {
				warnColor.Fprintf(stderr, "%s not found\n", rest[0])
				return 1
			}
			fmt.Fprintf(stdout, "%s removed\n", keyColor.Sprint(rest[0]))
			return 0
		})
}

// scanCmd handles the scan command.
func scanCmd(args []string) int {
	var from *string
	var limit *int
	setup := func(fs *flag.FlagSet) {
		from = fs.String("from", "", "Start at the first key >= from")
		limit = fs.Int("limit", 0, "Maximum number of entries")
	}
	return withIndex("scan", args, 0, func() { printScanUsage(stdout) }, true, setup,
		func(ix *index, _ []string) int {
			var it *mvrb.Iterator[string, string]
			var err error
			if *from != "" {
				it, err = ix.tree.IteratorFrom(*from)
			} else {
				it, err = ix.tree.Iterator()
			}
			if err != nil {
				return fail("scan: %v", err)
			}
			n := 0
			for it.HasNext() && (*limit <= 0 || n < *limit) {
				k, v, err := it.Next()
				if err != nil {
					return fail("scan: %v", err)
				}
				fmt.Fprintf(stdout, "%s\t%s\n", keyColor.Sprint(k), v)
				n++
			}
			if err := it.Err(); err != nil {
				return fail("scan: %v", err)
			}
			return 0
		})
}

// statsCmd handles the stats command.
func statsCmd(args []string) int {
	return withIndex("stats", args, 0, func() { printUsage(stdout) }, true, nil,
		func(ix *index, _ []string) int {
			s := ix.tree.Stats()
			fs := ix.file.Stats()
			fmt.Fprintf(stdout, "Tree %s\n", s.ID)
			fmt.Fprintf(stdout, "  Entries:       %s\n", humanize.Comma(int64(s.Size)))
			fmt.Fprintf(stdout, "  Header:        %s\n", s.HeaderRID)
			fmt.Fprintf(stdout, "  Root:          %s\n", s.RootRID)
			fmt.Fprintf(stdout, "  Page capacity: %d\n", s.PageCapacity)
			fmt.Fprintf(stdout, "  Resident:      %d nodes, %d entry points (budget %d)\n",
				s.ResidentNodes, s.EntryPoints, s.EntryPointBudget)
			fmt.Fprintf(stdout, "Store %s\n", ix.file.Path())
			fmt.Fprintf(stdout, "  File size:     %s\n", humanize.IBytes(uint64(fs.FileSizeBytes)))
			fmt.Fprintf(stdout, "  Pages:         %d total, %d free, %d bytes each\n",
				fs.TotalPages, fs.FreePages, fs.PageSize)
			if ix.cache != nil {
				cs := ix.cache.Stats()
				fmt.Fprintf(stdout, "  Read cache:    %d hits, %d misses (%.1f%%)\n",
					cs.Hits, cs.Misses, cs.Ratio*100)
			}
			return 0
		})
}

// checkCmd handles the check command.
func checkCmd(args []string) int {
	return withIndex("check", args, 0, func() { printUsage(stdout) }, true, nil,
		func(ix *index, _ []string) int {
			start := time.Now()
			if err := ix.tree.Verify(); err != nil {
				for _, e := range multierr.Errors(err) {
					errorColor.Fprint(stderr, "corrupt: ")
					fmt.Fprintln(stderr, e)
				}
				return 1
			}
			okColor.Fprint(stdout, "OK")
			fmt.Fprintf(stdout, " %s entries verified in %v\n",
				humanize.Comma(int64(ix.tree.Size())), time.Since(start).Round(time.Millisecond))
			return 0
		})
}

// seedCmd handles the seed command.
func seedCmd(args []string) int {
	var count *int
	setup := func(fs *flag.FlagSet) {
		count = fs.Int("count", 1000, "Number of entries to insert")
	}
	return withIndex("seed", args, 0, func() { printSeedUsage(stdout) }, false, setup,
		func(ix *index, _ []string) int {
			if *count <= 0 {
				return fail("-count must be positive")
			}
			start := time.Now()
			batch := make([]mvrb.Entry[string, string], 0, *count)
			for i := 0; i < *count; i++ {
				batch = append(batch, mvrb.Entry[string, string]{
					Key:   faker.Username() + "-" + faker.UUIDDigit()[:8],
					Value: faker.Sentence(),
				})
			}
			if err := ix.tree.PutAll(batch); err != nil {
				return fail("seed: %v", err)
			}
			fmt.Fprintf(stdout, "%s entries inserted in %v, tree holds %s\n",
				humanize.Comma(int64(*count)),
				time.Since(start).Round(time.Millisecond),
				humanize.Comma(int64(ix.tree.Size())))
			return 0
		})
}
