package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

type job struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Queue 单 worker 串行执行请求：FIFO、同一时刻最多一个在途，相邻派发至少间隔 spacing
type Queue struct {
	clock   clockwork.Clock
	spacing *rate.Limiter
	jobs    chan job
	quit    chan struct{}
	gate    func() error
	wg      sync.WaitGroup
	once    sync.Once
}

type QueueOption func(*Queue)

// WithGate 派发前检查准入；返回错误时任务直接以该错误结束，不占用间隔槽位
func WithGate(gate func() error) QueueOption {
	return func(q *Queue) { q.gate = gate }
}

func NewQueue(clock clockwork.Clock, spacing time.Duration, capacity int, opts ...QueueOption) *Queue {
	limit := rate.Inf
	if spacing > 0 {
		limit = rate.Every(spacing)
	}
	q := &Queue{
		clock:   clock,
		spacing: rate.NewLimiter(limit, 1),
		jobs:    make(chan job, capacity),
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Do enqueues fn and waits for its result. If ctx ends first the caller
// returns and the job's outcome is dropped.
func (q *Queue) Do(ctx context.Context, fn func(context.Context) error) error {
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case q.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-q.quit:
		return ErrClosed
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-q.quit:
		return ErrClosed
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.quit:
			return
		case j := <-q.jobs:
			q.dispatch(j)
		}
	}
}

func (q *Queue) dispatch(j job) {
	if err := j.ctx.Err(); err != nil {
		j.done <- err
		return
	}
	if q.gate != nil {
		if err := q.gate(); err != nil {
			j.done <- err
			return
		}
	}

	now := q.clock.Now()
	r := q.spacing.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		select {
		case <-q.clock.After(delay):
		case <-j.ctx.Done():
			r.CancelAt(q.clock.Now())
			j.done <- j.ctx.Err()
			return
		case <-q.quit:
			j.done <- ErrClosed
			return
		}
	}
	j.done <- j.fn(j.ctx)
}

// Close stops the worker; queued jobs fail with ErrClosed.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.quit)
		q.wg.Wait()
	})
}
