/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package workpool runs submitted jobs on a bounded number of goroutines.
// Queued jobs start in priority order, FIFO within a priority. An optional
// rate limit spaces out job starts.
package workpool

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	applog "goslidewriter/internal/log"
)

// Priority orders queued jobs; higher values start first.
type Priority int

const (
	Background Priority = iota
	High
)

func (p Priority) String() string {
	if p == High {
		return "high"
	}
	return "background"
}

// Job is a unit of work. ctx is the context given to Submit.
type Job func(ctx context.Context)

// Options configures a Pool.
type Options struct {
	// MaxConcurrent caps running jobs (default 3).
	MaxConcurrent int
	// RequestsPerMinute limits job starts; 0 disables limiting.
	RequestsPerMinute int
	// Burst is the limiter burst (default 1).
	Burst  int
	Logger *slog.Logger
}

// Pool is a prioritized, bounded job runner. Safe for concurrent use.
type Pool struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	mu          sync.Mutex
	idle        *sync.Cond
	queue       jobQueue
	seq         uint64
	running     int
	outstanding int
	closed      bool
}

// New starts a pool and its dispatcher goroutine. Call Close to stop it.
func New(opts Options) *Pool {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	if opts.Logger == nil {
		opts.Logger = applog.WithComponent("workpool")
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		sem:    semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		log:    opts.Logger,
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if opts.RequestsPerMinute > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), burst)
	}
	p.idle = sync.NewCond(&p.mu)
	go p.dispatch()
	return p
}

// Submit queues job. It reports false once the pool is closed.
func (p *Pool) Submit(ctx context.Context, pri Priority, job Job) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.seq++
	heap.Push(&p.queue, &item{ctx: ctx, pri: pri, seq: p.seq, job: job})
	p.outstanding++
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

// Pending returns the number of queued, not yet started jobs.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Running returns the number of jobs currently executing.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Wait blocks until no job is queued or running.
func (p *Pool) Wait() {
	p.mu.Lock()
	for p.outstanding > 0 {
		p.idle.Wait()
	}
	p.mu.Unlock()
}

// Close drops queued jobs, cancels the dispatcher and waits for running
// jobs to return. Job contexts are not cancelled; callers own them.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	dropped := p.queue.Len()
	p.queue = nil
	p.outstanding -= dropped
	p.mu.Unlock()
	p.cancel()
	<-p.done
	if dropped > 0 {
		p.log.Debug("dropped queued jobs on close", slog.Int("count", dropped))
	}
	p.mu.Lock()
	p.idle.Broadcast()
	p.mu.Unlock()
	p.Wait()
}

func (p *Pool) dispatch() {
	defer close(p.done)
	for {
		select {
		case <-p.wake:
		case <-p.ctx.Done():
			return
		}
		for {
			if err := p.sem.Acquire(p.ctx, 1); err != nil {
				return
			}
			it, ok := p.pop()
			if !ok {
				p.sem.Release(1)
				break
			}
			// A job whose context is already done starts at once so it can
			// clean up without spending a rate token.
			if p.limiter != nil && it.ctx.Err() == nil {
				if err := p.limiter.Wait(p.ctx); err != nil {
					p.sem.Release(1)
					p.finish()
					return
				}
			}
			go p.run(it)
		}
	}
}

func (p *Pool) pop() (*item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.Len() == 0 {
		return nil, false
	}
	it := heap.Pop(&p.queue).(*item)
	p.running++
	return it, true
}

func (p *Pool) run(it *item) {
	defer p.sem.Release(1)
	defer p.finish()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("job panicked", slog.Any("panic", r), slog.String("priority", it.pri.String()))
		}
	}()
	it.job(it.ctx)
}

func (p *Pool) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running--
	p.outstanding--
	if p.outstanding <= 0 {
		p.outstanding = 0
		p.idle.Broadcast()
	}
}

type item struct {
	ctx context.Context
	pri Priority
	seq uint64
	job Job
}

type jobQueue []*item

func (q jobQueue) Len() int { return len(q) }
func (q jobQueue) Less(i, j int) bool {
	if q[i].pri != q[j].pri {
		return q[i].pri > q[j].pri
	}
	return q[i].seq < q[j].seq
}
func (q jobQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *jobQueue) Push(x any)   { *q = append(*q, x.(*item)) }
func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}
