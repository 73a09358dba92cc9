// Package workpool runs CPU-bound jobs on a fixed number of workers so the
// update loop stays free to serve other users and progress messages.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/Atoilah/vcf-confreter/core/logger"
)

var (
	// ErrClosed is returned for jobs submitted after Close.
	ErrClosed = errors.New("workpool: closed")
	// ErrPanic wraps a panic raised by a job.
	ErrPanic = errors.New("workpool: job panicked")
)

type task struct {
	ctx context.Context
	run func(context.Context)
}

// Pool is a bounded set of workers fed from a queue.
type Pool struct {
	tasks chan task
	stop  chan struct{}
	once  sync.Once
	mu    sync.RWMutex
	wg    sync.WaitGroup
}

// New starts a pool with the given number of workers; values < 1 mean 1.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		tasks: make(chan task),
		stop:  make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		t.run(t.ctx)
	}
}

// Close stops accepting jobs and waits for running ones to return.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.stop)
		p.mu.Lock()
		close(p.tasks)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

// submit hands t to a worker, waiting for one to be free.
func (p *Pool) submit(t task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	select {
	case <-p.stop:
		return ErrClosed
	default:
	}
	select {
	case p.tasks <- t:
		return nil
	case <-p.stop:
		return ErrClosed
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
}

// Future is the pending result of a job.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Wait blocks until the job finishes or ctx ends. A ctx ending does not stop
// the job; the job sees cancellation through the context it was started with.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Go schedules fn on p. It blocks while every worker is busy, until ctx ends.
// A panic inside fn is returned as an error wrapping ErrPanic.
func Go[T any](p *Pool, ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	err := p.submit(task{ctx: ctx, run: func(ctx context.Context) {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				logger.CONV.Error("job panicked",
					slog.String("event", "workpool.panic"),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				f.err = fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		f.val, f.err = fn(ctx)
	}})
	if err != nil {
		f.err = err
		close(f.done)
	}
	return f
}
