package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-faker/faker/v4"

	"github.com/KilimcininKorOglu/mvrbtree/internal/config"
)

// soakCmd runs a mixed put/get/remove workload against the index until the
// duration elapses or the process is interrupted. Tree tunables follow the
// config file while it runs.
func soakCmd(args []string) int {
	var duration, commitEvery *time.Duration
	var ops *int
	setup := func(fs *flag.FlagSet) {
		duration = fs.Duration("duration", 30*time.Second, "How long to run")
		commitEvery = fs.Duration("commit-every", time.Second, "Commit interval")
		ops = fs.Int("ops", 0, "Stop after this many operations (0 = no limit)")
	}
	return withIndex("soak", args, 0, func() { printSoakUsage(stdout) }, false, setup,
		func(ix *index, _ []string) int {
			if path := ix.manager.GetConfigFile(); path != "" {
				ix.manager.SetOnUpdate(func(old, cur *config.Config) {
					if old.Tree != cur.Tree {
						ix.log.Info("tree settings changed",
							"pageCapacity", cur.Tree.PageCapacity,
							"entryPoints", cur.Tree.EntryPoints,
							"optimizeThreshold", cur.Tree.OptimizeThreshold)
					}
				})
				w, err := config.NewConfigWatcher(&config.WatcherConfig{
					FilePath: path,
					OnChange: func(_, cur *config.Config) {
						if err := ix.manager.UpdateConfig(cur); err != nil {
							ix.log.Warn("config update rejected", "error", err)
						}
					},
					OnError: func(err error) {
						ix.log.Warn("config reload failed", "error", err)
					},
				})
				if err != nil {
					ix.log.Warn("failed to create config watcher", "error", err)
				} else {
					w.Start()
					defer w.Stop()
				}
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
			defer signal.Stop(sigCh)

			s := &soak{ix: ix}
			deadline := time.After(*duration)
			commits := time.NewTicker(*commitEvery)
			defer commits.Stop()
			start := time.Now()

		loop:
			for *ops <= 0 || s.total() < *ops {
				select {
				case <-deadline:
					break loop
				case sig := <-sigCh:
					if sig == syscall.SIGHUP {
						if err := ix.manager.Reload(); err != nil {
							ix.log.Warn("config reload failed", "error", err)
						}
						continue
					}
					ix.log.Info("received signal, stopping", "signal", sig.String())
					break loop
				case <-commits.C:
					if err := ix.commit(); err != nil {
						return fail("commit: %v", err)
					}
				default:
				}
				if err := s.step(); err != nil {
					return fail("soak: %v", err)
				}
			}

			elapsed := time.Since(start)
			fmt.Fprintf(stdout, "%s operations in %v (%s puts, %s gets, %s removes), tree holds %s\n",
				humanize.Comma(int64(s.total())), elapsed.Round(time.Millisecond),
				humanize.Comma(int64(s.puts)), humanize.Comma(int64(s.gets)),
				humanize.Comma(int64(s.removes)), humanize.Comma(int64(ix.tree.Size())))
			st := ix.tree.Stats()
			fmt.Fprintf(stdout, "%d optimizations, %d nodes evicted, %d low memory retries\n",
				st.Optimizations, st.Evictions, st.LowMemoryRetries)
			return 0
		})
}

// soak drives random operations over a bounded pool of recent keys so that
// gets and removes hit existing entries.
type soak struct {
	ix                  *index
	keys                []string
	puts, gets, removes int
}

const soakKeyPool = 4096

func (s *soak) total() int { return s.puts + s.gets + s.removes }

func (s *soak) pick() (string, bool) {
	if len(s.keys) == 0 {
		return "", false
	}
	return s.keys[rand.Intn(len(s.keys))], true
}

func (s *soak) step() error {
	switch n := rand.Intn(10); {
	case n < 5:
		key := faker.Username() + "-" + faker.UUIDDigit()[:8]
		if _, _, err := s.ix.tree.Put(key, faker.Sentence()); err != nil {
			return err
		}
		if len(s.keys) < soakKeyPool {
			s.keys = append(s.keys, key)
		} else {
			s.keys[rand.Intn(soakKeyPool)] = key
		}
		s.puts++
	case n < 8:
		key, ok := s.pick()
		if !ok {
			return nil
		}
		if _, _, err := s.ix.tree.Get(key); err != nil {
			return err
		}
		s.gets++
	default:
		key, ok := s.pick()
		if !ok {
			return nil
		}
		if _, _, err := s.ix.tree.Remove(key); err != nil {
			return err
		}
		s.removes++
	}
	return nil
}
