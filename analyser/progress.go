package analyser

import (
	"sync"
)

// ProgressState distinguishes the three phases of one analysis.
type ProgressState uint8

const (
	// Queued means the analysis has been requested but no walker has
	// picked it up yet.
	Queued ProgressState = iota
	// InProgress carries a completion fraction in [0, 1].
	InProgress
	// Finished is terminal.
	Finished
)

// Progress is a point-in-time view of an analysis.
type Progress struct {
	State    ProgressState
	Fraction float64
}

type progressCell struct {
	mu  sync.Mutex
	cur Progress
}

// ProgressUpdater is the write side of a progress pair. The walker is
// the only writer and only ever moves forward.
type ProgressUpdater struct {
	cell *progressCell
}

// ProgressChecker is the read side. It is intended for a single
// observing goroutine; reads never block the writer.
type ProgressChecker struct {
	cell *progressCell
	// last successfully observed value, returned when the lock is
	// contended. Progress is advisory, stale is fine.
	seen Progress
}

// NewProgress returns a connected updater/checker pair, initialised to
// Queued.
func NewProgress() (*ProgressUpdater, *ProgressChecker) {
	cell := &progressCell{}
	return &ProgressUpdater{cell: cell}, &ProgressChecker{cell: cell}
}

// Update publishes a new progress value. Fractions are clamped to
// [0, 1] and never move backwards, so checkers always observe a
// monotone sequence.
func (u *ProgressUpdater) Update(p Progress) {
	if u == nil {
		return
	}

	if p.Fraction < 0 {
		p.Fraction = 0
	} else if p.Fraction > 1 {
		p.Fraction = 1
	}
	if p.State == Finished {
		p.Fraction = 1
	}

	u.cell.mu.Lock()
	defer u.cell.mu.Unlock()

	if u.cell.cur.State == Finished {
		return
	}
	if p.State == InProgress && p.Fraction < u.cell.cur.Fraction {
		p.Fraction = u.cell.cur.Fraction
	}
	u.cell.cur = p
}

// Check returns the current progress without blocking. Under lock
// contention it returns the last observed value instead.
func (c *ProgressChecker) Check() Progress {
	if c.cell.mu.TryLock() {
		c.seen = c.cell.cur
		c.cell.mu.Unlock()
	}
	return c.seen
}
