package analyser

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgress_StartsQueued(t *testing.T) {
	t.Parallel()

	_, checker := NewProgress()
	got := checker.Check()
	assert.Equal(t, Queued, got.State)
	assert.Zero(t, got.Fraction)
}

func TestProgress_NilUpdaterIsSafe(t *testing.T) {
	t.Parallel()

	var updater *ProgressUpdater
	updater.Update(Progress{State: InProgress, Fraction: 0.5})
}

func TestProgress_ClampsAndNeverDecreases(t *testing.T) {
	t.Parallel()

	updater, checker := NewProgress()

	updater.Update(Progress{State: InProgress, Fraction: 0.5})
	assert.Equal(t, Progress{State: InProgress, Fraction: 0.5}, checker.Check())

	// Progress never moves backwards.
	updater.Update(Progress{State: InProgress, Fraction: 0.3})
	assert.Equal(t, Progress{State: InProgress, Fraction: 0.5}, checker.Check())

	updater.Update(Progress{State: InProgress, Fraction: -2})
	assert.Equal(t, Progress{State: InProgress, Fraction: 0.5}, checker.Check())

	updater.Update(Progress{State: InProgress, Fraction: 7})
	assert.Equal(t, Progress{State: InProgress, Fraction: 1}, checker.Check())
}

func TestProgress_FinishedIsTerminal(t *testing.T) {
	t.Parallel()

	updater, checker := NewProgress()

	updater.Update(Progress{State: Finished, Fraction: 0.4})
	got := checker.Check()
	assert.Equal(t, Finished, got.State)
	assert.Equal(t, 1.0, got.Fraction)

	// Later updates cannot resurrect a finished analysis.
	updater.Update(Progress{State: InProgress, Fraction: 0.1})
	assert.Equal(t, Progress{State: Finished, Fraction: 1}, checker.Check())
}

func TestProgress_ConcurrentReadsStayMonotone(t *testing.T) {
	t.Parallel()

	updater, checker := NewProgress()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i <= 1000; i++ {
			updater.Update(Progress{State: InProgress, Fraction: float64(i) / 1000})
		}
		updater.Update(Progress{State: Finished, Fraction: 1})
	}()

	var last Progress
	for last.State != Finished {
		got := checker.Check()
		require.GreaterOrEqual(t, got.Fraction, last.Fraction)
		require.GreaterOrEqual(t, got.State, last.State)
		last = got
	}
	wg.Wait()

	assert.Equal(t, Progress{State: Finished, Fraction: 1}, checker.Check())
}
