// Package pool runs demo analyses on a bounded set of workers. A
// coordinator goroutine routes requests from an intake channel onto
// the workers, queueing in memory without bound while every worker is
// busy, and every request produces exactly one result on the response
// channel, successful or not, after any cache write for it has
// completed.
//
// The pool does not deduplicate: submitting the same path twice redoes
// the work. Callers that care keep their own in-flight set.
package pool

import (
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/oklog/ulid/v2"

	"demolens/analyser"
	"demolens/cache"
	"demolens/model"
)

// Result is the outcome of one analysis request. Demo is nil when the
// file could not be read or analysed; the failure has already been
// logged by then.
type Result struct {
	Path string
	Key  model.CacheKey
	Demo *model.AnalysedDemo
}

type request struct {
	id   ulid.ULID
	path string
}

// Pool is a fixed-size analysis worker pool with write-through
// caching.
type Pool struct {
	requests chan string
	results  chan Result
	work     chan request
	store    *cache.Cache
	log      *slog.Logger

	workers sync.WaitGroup
	once    sync.Once
}

// DefaultWorkers reserves two CPUs for the host application's own
// threads, with a floor of one worker.
func DefaultWorkers() int {
	n := runtime.NumCPU() - 2
	if n < 1 {
		n = 1
	}
	return n
}

// New starts a pool with the given number of workers. A nil store
// disables caching.
func New(workers int, store *cache.Cache) *Pool {
	if workers < 1 {
		workers = 1
	}

	p := &Pool{
		requests: make(chan string),
		results:  make(chan Result),
		work:     make(chan request),
		store:    store,
		log:      slog.Default(),
	}

	for i := 0; i < workers; i++ {
		p.workers.Add(1)
		go p.worker()
	}
	go p.coordinate()

	return p
}

// Requests is the intake channel. Submitting never waits for a free
// worker; the coordinator queues accepted requests in memory.
func (p *Pool) Requests() chan<- string { return p.requests }

// Results delivers completions, possibly out of submission order.
func (p *Pool) Results() <-chan Result { return p.results }

// Close stops intake, waits for in-flight work to finish and then
// closes the results channel. Accepted requests always run to
// completion, so callers must keep draining Results until it closes.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.requests)
	})
	p.workers.Wait()
}

// coordinate tags each request and hands it to a free worker, holding
// any backlog in an in-memory queue so intake stays open however far
// ahead of the workers the caller runs. It never analyses anything
// itself.
func (p *Pool) coordinate() {
	var pending []request

	requests := p.requests
	for requests != nil || len(pending) > 0 {
		var (
			handoff chan request
			next    request
		)
		if len(pending) > 0 {
			handoff = p.work
			next = pending[0]
		}

		select {
		case path, ok := <-requests:
			if !ok {
				requests = nil
				continue
			}
			pending = append(pending, request{id: ulid.Make(), path: path})
		case handoff <- next:
			pending = pending[1:]
		}
	}
	close(p.work)

	go func() {
		p.workers.Wait()
		close(p.results)
	}()
}

func (p *Pool) worker() {
	defer p.workers.Done()
	for req := range p.work {
		p.results <- p.process(req)
	}
}

// process runs one request to completion: read, hash, analyse, cache.
// Failures are logged and reported as an empty result so a single bad
// file never stops the pool.
func (p *Pool) process(req request) Result {
	log := p.log.With("request_id", req.id.String(), "path", req.path)
	log.Debug("analysing demo")

	b, err := os.ReadFile(req.path)
	if err != nil {
		log.Error("failed to read demo file", "error", err)
		return Result{Path: req.path}
	}

	info, err := os.Stat(req.path)
	if err != nil {
		log.Error("failed to stat demo file", "error", err)
		return Result{Path: req.path}
	}

	key := analyser.HashDemo(b, info.ModTime())

	demo, err := analyser.Analyse(b, nil)
	if err != nil {
		log.Error("failed to analyse demo", "error", err)
		return Result{Path: req.path}
	}

	// The cache write happens before the result is sent, so a consumer
	// reacting to the result sees the fresh entry.
	if p.store != nil {
		if err := p.store.Store(key, demo); err != nil {
			log.Error("failed to cache analysed demo", "error", err)
		}
	}

	log.Debug("finished analysing demo", "players", len(demo.Players), "kills", len(demo.Kills))
	return Result{Path: req.path, Key: key, Demo: demo}
}
