package pool

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demolens/analyser"
	"demolens/cache"
	"demolens/demo/demotest"
	"demolens/model"
)

func writeDemo(t *testing.T, dir, name string) string {
	t.Helper()

	b := demotest.NewBuilder()
	b.Connect(2, "alice", "[U:1:101]")
	b.Connect(3, "bob", "[U:1:202]")
	b.Class(2, model.ClassScout)
	b.Tick(100)
	b.Kill(3, 2, -1, "scattergun")
	b.Tick(200)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
	return path
}

func TestPool_AnalysesAndCaches(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeDemo(t, dir, "match.dem")
	store := cache.New(filepath.Join(dir, "cache"))

	p := New(2, store)
	p.Requests() <- path

	res := <-p.Results()
	p.Close()

	assert.Equal(t, path, res.Path)
	require.NotNil(t, res.Demo)
	assert.Len(t, res.Demo.Players, 2)
	assert.Len(t, res.Demo.Kills, 1)

	expectedKey, _, err := analyser.HashDemoFile(path)
	require.NoError(t, err)
	assert.Equal(t, expectedKey, res.Key)

	// The entry was written before the result was delivered.
	assert.True(t, store.Exists(res.Key))
	cached, err := store.Load(res.Key)
	require.NoError(t, err)
	require.Equal(t, res.Demo, cached)
}

func TestPool_ReportsFailedAnalysis(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.dem")
	require.NoError(t, os.WriteFile(bad, []byte("not a demo at all"), 0o644))

	p := New(1, nil)
	p.Requests() <- bad

	res := <-p.Results()
	p.Close()

	assert.Equal(t, bad, res.Path)
	assert.Nil(t, res.Demo)
}

func TestPool_MissingFileIsAResult(t *testing.T) {
	t.Parallel()

	p := New(1, nil)
	missing := filepath.Join(t.TempDir(), "gone.dem")
	p.Requests() <- missing

	res := <-p.Results()
	p.Close()

	assert.Equal(t, missing, res.Path)
	assert.Nil(t, res.Demo)
}

func TestPool_EveryRequestGetsOneResult(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := []string{
		writeDemo(t, dir, "a.dem"),
		writeDemo(t, dir, "b.dem"),
	}
	bad := filepath.Join(dir, "bad.dem")
	require.NoError(t, os.WriteFile(bad, []byte("junk"), 0o644))
	paths = append(paths, bad)

	p := New(2, nil)
	go func() {
		for _, path := range paths {
			p.Requests() <- path
		}
		p.Close()
	}()

	// Results may arrive in any order, one per request.
	got := make(map[string]*model.AnalysedDemo)
	for res := range p.Results() {
		got[res.Path] = res.Demo
	}
	require.Len(t, got, len(paths))
	assert.NotNil(t, got[paths[0]])
	assert.NotNil(t, got[paths[1]])
	assert.Nil(t, got[bad])
}

func TestPool_SubmissionNeverWaitsForWorkers(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := make([]string, 8)
	for i := range paths {
		paths[i] = writeDemo(t, dir, fmt.Sprintf("match%d.dem", i))
	}

	// One worker, nobody draining results yet: the backlog has to sit
	// in the pool's queue, not in blocked senders.
	p := New(1, nil)
	submitted := make(chan struct{})
	go func() {
		for _, path := range paths {
			p.Requests() <- path
		}
		close(submitted)
	}()

	select {
	case <-submitted:
	case <-time.After(5 * time.Second):
		t.Fatal("submission blocked before any results were drained")
	}

	go p.Close()
	var results int
	for res := range p.Results() {
		assert.NotNil(t, res.Demo)
		results++
	}
	require.Equal(t, len(paths), results)
}

func TestDefaultWorkers_AtLeastOne(t *testing.T) {
	t.Parallel()

	assert.GreaterOrEqual(t, DefaultWorkers(), 1)
}
