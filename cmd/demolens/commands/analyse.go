package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"demolens/analyser"
	"demolens/cache"
	"demolens/model"
	"demolens/output"
	"demolens/pool"
)

func newAnalyseCommand() *cobra.Command {
	var (
		noCache bool
		workers int
	)

	cmd := &cobra.Command{
		Use:   "analyse <file.dem>...",
		Short: "Analyse demo files and print match summaries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := openCache()
			if err != nil {
				return err
			}
			return runAnalyse(store, args, noCache, workers)
		},
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "re-analyse even when a cached summary exists")
	cmd.Flags().IntVar(&workers, "workers", pool.DefaultWorkers(), "number of analysis workers")

	return cmd
}

func runAnalyse(store *cache.Cache, paths []string, noCache bool, workers int) error {
	p := pool.New(workers, store)

	// The pool happily redoes work, so duplicate paths on the command
	// line are filtered here.
	inflight := make(map[string]bool)
	submitted := 0

	for _, path := range paths {
		if inflight[path] {
			continue
		}

		if !noCache {
			if demo, ok := loadCached(store, path); ok {
				fmt.Printf("%s (cached)\n", path)
				output.WriteSummary(os.Stdout, demo)
				continue
			}
		}

		inflight[path] = true
		p.Requests() <- path
		submitted++
	}

	failures := 0
	for i := 0; i < submitted; i++ {
		res := <-p.Results()
		if res.Demo == nil {
			failures++
			fmt.Printf("%s: analysis failed\n", res.Path)
			continue
		}
		fmt.Println(res.Path)
		output.WriteSummary(os.Stdout, res.Demo)
	}
	p.Close()

	if failures > 0 {
		return fmt.Errorf("%d of %d demos failed to analyse", failures, submitted)
	}
	return nil
}

// loadCached probes the cache for path's summary. A miss is the
// expected cold path; anything else is logged.
func loadCached(store *cache.Cache, path string) (*model.AnalysedDemo, bool) {
	key, _, err := analyser.HashDemoFile(path)
	if err != nil {
		slog.Warn("could not fingerprint demo", "path", path, "error", err)
		return nil, false
	}

	demo, err := store.Load(key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			slog.Error("failed to load cached demo", "key", key.Hex(), "error", err)
		}
		return nil, false
	}
	return demo, true
}
