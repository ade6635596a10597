// Package loader drives concurrent per-function SSA construction
// (§5: "at the module level, one function may be processed per
// thread... no shared mutable references across function
// boundaries"). Each worker goroutine owns exactly one function's
// Constructor for its entire build, fanning the finished graph (or
// the error that stopped it) into a thread-safe results table.
package loader

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xandfury/radeco/pkg/regfile"
	"github.com/xandfury/radeco/pkg/ssa"
)

// Job is one function's worth of instructions to build SSA for.
type Job struct {
	Offset uint64
	Name   string
	Instrs []ssa.Instruction
}

// FunctionResult is the outcome of building one function: either a
// finished graph, or the error that aborted construction (§7:
// best-effort per function — one function's structural failure does
// not stop the rest of the module).
type FunctionResult struct {
	Offset uint64
	Name   string
	Graph  *ssa.Graph
	Err    error
}

// Table is a mutex-guarded results table, one entry per function
// offset, adapted from the teacher's per-rule results table to hold
// one SSA build outcome per function instead.
type Table struct {
	mu      sync.Mutex
	results map[uint64]FunctionResult
}

// NewTable returns an empty results table.
func NewTable() *Table {
	return &Table{results: make(map[uint64]FunctionResult)}
}

// Add records one function's outcome.
func (t *Table) Add(r FunctionResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.results[r.Offset] = r
}

// Get looks up a function's outcome by offset.
func (t *Table) Get(offset uint64) (FunctionResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.results[offset]
	return r, ok
}

// Len returns the number of recorded outcomes.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.results)
}

// All returns a copy of every recorded outcome.
func (t *Table) All() []FunctionResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]FunctionResult, 0, len(t.results))
	for _, r := range t.results {
		out = append(out, r)
	}
	return out
}

// Pool builds SSA graphs for a batch of functions concurrently, one
// goroutine constructing one function's graph at a time. NumWorkers
// defaults to runtime.NumCPU() when non-positive, matching the
// teacher's WorkerPool default.
type Pool struct {
	NumWorkers int
	Profile    *regfile.Profile
	AssumeCC   bool
	ReplacePC  bool
	Results    *Table

	log       *zap.SugaredLogger
	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool builds a loader pool for the given register profile.
func NewPool(profile *regfile.Profile, assumeCC, replacePC bool, numWorkers int, log *zap.SugaredLogger) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &Pool{
		NumWorkers: numWorkers,
		Profile:    profile,
		AssumeCC:   assumeCC,
		ReplacePC:  replacePC,
		Results:    NewTable(),
		log:        log,
	}
}

// Stats returns how many jobs have completed and how many failed so far.
func (p *Pool) Stats() (completed, failed int64) {
	return p.completed.Load(), p.failed.Load()
}

// Run distributes jobs across the pool's workers and blocks until
// every job has produced a FunctionResult. verbose mirrors the
// teacher's CLI progress convention: human-facing status lines go
// through fmt, not the structured logger.
func (p *Pool) Run(jobs []Job, verbose bool) {
	total := int64(len(jobs))
	ch := make(chan Job, len(jobs))
	for _, j := range jobs {
		ch <- j
	}
	close(ch)

	done := make(chan struct{})
	start := time.Now()
	if verbose {
		go p.reportProgress(total, start, done)
	}

	var wg sync.WaitGroup
	for i := 0; i < p.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range ch {
				p.build(job)
				p.completed.Add(1)
			}
		}()
	}
	wg.Wait()
	close(done)

	if verbose {
		elapsed := time.Since(start)
		comp, failed := p.Stats()
		fmt.Printf("  [%s] %d/%d functions built (%d failed) | DONE\n",
			elapsed.Round(time.Second), comp, total, failed)
	}
}

func (p *Pool) reportProgress(total int64, start time.Time, done chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			comp, failed := p.Stats()
			elapsed := time.Since(start)
			pct := float64(comp) / float64(total) * 100
			fmt.Printf("  [%s] %d/%d functions (%.1f%%) | %d failed\n",
				elapsed.Round(time.Second), comp, total, pct, failed)
		}
	}
}

// build constructs one function's SSA graph in isolation; a recovered
// panic (an unreachable construct-driver bug) is converted into a
// failed result carrying a plain error that names the function, rather
// than taking the whole pool down
// (§7's best-effort-per-function policy extends to genuinely unexpected
// failures, not just the documented error kinds).
func (p *Pool) build(job Job) {
	result := FunctionResult{Offset: job.Offset, Name: job.Name}
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("panic building function %s @ 0x%x: %v", job.Name, job.Offset, r)
			p.failed.Add(1)
			p.logFailure(job, result.Err)
		}
		p.Results.Add(result)
	}()

	c := ssa.NewConstructor(p.Profile, p.AssumeCC, p.ReplacePC, p.log)
	if err := c.Process(job.Instrs); err != nil {
		result.Err = err
		p.failed.Add(1)
		p.logFailure(job, err)
		return
	}
	result.Graph = c.Graph()
}

func (p *Pool) logFailure(job Job, err error) {
	if p.log == nil {
		return
	}
	p.log.Errorw("function build failed",
		"function", job.Name,
		"addr", job.Offset,
		"reason", err,
	)
}
