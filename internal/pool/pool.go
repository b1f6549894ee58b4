// Package pool runs submitted tasks on a fixed set of worker goroutines.
package pool

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("pool: closed")

// Task is a unit of work. It receives the context the pool was created with.
type Task func(ctx context.Context)

// Pool is a fixed-size worker pool pulling tasks from a shared queue.
type Pool struct {
	ctx     context.Context
	tasks   chan Task
	group   errgroup.Group
	logger  *zap.SugaredLogger
	workers int

	mu     sync.RWMutex
	closed bool
}

// New starts workers goroutines (at least one). Tasks run with ctx.
func New(ctx context.Context, workers int, logger *zap.SugaredLogger) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		ctx:     ctx,
		tasks:   make(chan Task, workers),
		logger:  logger,
		workers: workers,
	}
	for i := 0; i < workers; i++ {
		p.group.Go(p.worker)
	}
	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) worker() error {
	for task := range p.tasks {
		p.run(task)
	}
	return nil
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("Task panicked", "panic", r)
		}
	}()
	task(p.ctx)
}

// Submit queues task. It blocks while the queue is full and returns
// ErrClosed once the pool is closed, or ctx's error if ctx ends first.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "submitting task")
	}
}

// Close stops accepting tasks, lets queued tasks finish and waits for the
// workers to exit. It is safe to call more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	return p.group.Wait()
}
