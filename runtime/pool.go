package runtime

import (
	"context"
	"log/slog"
)

// Job is one unit of CPU-bound work, typically an OAEP wrap plus the
// delivery of its result.
type Job func()

// Pool hands jobs to a fixed set of supervised workers. Key distribution
// to N participants is N independent jobs: one slow or failing recipient
// never blocks the others, and nothing here runs on the dispatch
// goroutine.
type Pool struct {
	jobs chan Job
}

func NewPool(queueSize int) *Pool {
	return &Pool{jobs: make(chan Job, queueSize)}
}

// Submit enqueues a job, blocking when the queue is full. Wrap jobs must
// not be dropped: a lost job is a participant that never receives their
// session key.
func (p *Pool) Submit(job Job) {
	p.jobs <- job
}

// Workers builds the pool's worker set for supervision.
func (p *Pool) Workers(n int, log *slog.Logger) []*PoolWorker {
	workers := make([]*PoolWorker, 0, n)
	for i := 0; i < n; i++ {
		workers = append(workers, &PoolWorker{jobs: p.jobs, log: log})
	}
	return workers
}

type PoolWorker struct {
	jobs <-chan Job
	log  *slog.Logger
}

func (w *PoolWorker) Run(ctx context.Context) error {
	for {
		select {
		case job := <-w.jobs:
			job()
		case <-ctx.Done():
			w.log.Debug("Context done, stopping pool worker")
			return nil
		}
	}
}
