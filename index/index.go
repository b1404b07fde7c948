// Package index discovers demo files on disk and fingerprints them
// without analysing anything, so a frontend can list demos and check
// the cache before requesting work.
package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"demolens/analyser"
	"demolens/model"
)

// scanConcurrency bounds how many files are fingerprinted at once.
const scanConcurrency = 8

// Demo is one discovered demo file and its cache key.
type Demo struct {
	Name    string
	Path    string
	Created time.Time
	// Size in bytes.
	Size int64
	Key  model.CacheKey
}

// Scan walks dirs for .dem files and fingerprints each. Directories
// that cannot be read and files that cannot be fingerprinted are
// logged and skipped rather than failing the scan. Results are sorted
// newest first.
func Scan(ctx context.Context, dirs []string) ([]Demo, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)

	var (
		mu    sync.Mutex
		demos []Demo
	)

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			slog.Error("failed to read demo directory", "dir", dir, "error", err)
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".dem") {
				continue
			}

			path := filepath.Join(dir, entry.Name())
			name := entry.Name()

			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}

				info, err := os.Stat(path)
				if err != nil {
					slog.Warn("skipping unreadable demo", "path", path, "error", err)
					return nil
				}

				key, created, err := analyser.HashDemoFile(path)
				if err != nil {
					slog.Warn("skipping unhashable demo", "path", path, "error", err)
					return nil
				}

				mu.Lock()
				demos = append(demos, Demo{
					Name:    name,
					Path:    path,
					Created: created,
					Size:    info.Size(),
					Key:     key,
				})
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(demos, func(i, j int) bool {
		return demos[i].Created.After(demos[j].Created)
	})
	return demos, nil
}
