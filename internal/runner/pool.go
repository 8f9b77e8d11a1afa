// Package runner - pool.go is a fixed-size worker pool.
//
// DESIGN: NewPool(n) starts n workers pulling from one task channel. Every
// task receives the pool-wide context; Close() cancels it, drops queued
// tasks that have not started, and joins the workers. Tasks already running
// are expected to observe ctx and return.
package runner

import (
	"context"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"
)

// Pool executes submitted tasks on a fixed number of worker goroutines.
type Pool struct {
	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool with n workers. n <= 0 defaults to GOMAXPROCS.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan Task, n*poolQueueFactor),
		ctx:    ctx,
		cancel: cancel,
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

const poolQueueFactor = 16

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.mu.Lock()
			closed := p.closed
			p.mu.Unlock()
			if closed {
				return
			}
			p.run(task)
		}
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("pool: task panicked")
		}
	}()
	task(p.ctx)
}

// Submit enqueues a task. Returns false if the pool is closed or its
// queue is full; the task is dropped in that case.
func (p *Pool) Submit(task Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Close cancels the pool context and joins all workers. Queued tasks that
// never started are dropped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
