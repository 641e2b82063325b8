package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kingrea/crewflow/internal/telemetry"
)

// ErrPoolShutdown rejects submissions made after Shutdown and tasks still
// queued when the pool drains.
var ErrPoolShutdown = errors.New("pool: shut down")

// TaskSeries is the timing series every completed task is recorded under.
const TaskSeries = "pool.task"

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	Workers   int  `json:"workers"`
	Active    int  `json:"active"`
	Idle      int  `json:"idle"`
	Queued    int  `json:"queued"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
	Shutdown  bool `json:"shutdown"`
}

type pending struct {
	ctx    context.Context
	task   Task
	future *Future
}

// Pool runs submitted tasks on a fixed set of workers. Tasks start in
// submission order; at most len(workers) run at once.
type Pool struct {
	mu        sync.Mutex
	workers   []*Worker
	queue     []*pending
	active    int
	completed int
	failed    int
	shutdown  bool
	nextID    uint64
	inflight  sync.WaitGroup

	sink    telemetry.Sink
	timings telemetry.Timings
	clock   func() time.Time
}

// Option customizes a Pool.
type Option func(*Pool)

// WithSink reports task failures and shutdown progress.
func WithSink(sink telemetry.Sink) Option {
	return func(p *Pool) {
		p.sink = telemetry.SinkOrNop(sink)
	}
}

// WithTimings records task durations under TaskSeries.
func WithTimings(t telemetry.Timings) Option {
	return func(p *Pool) {
		p.timings = telemetry.TimingsOrNop(t)
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(p *Pool) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// New creates a pool with maxWorkers execution slots.
func New(maxWorkers int, opts ...Option) (*Pool, error) {
	if maxWorkers < 1 {
		return nil, fmt.Errorf("pool: max workers must be >= 1, got %d", maxWorkers)
	}
	p := &Pool{
		workers: make([]*Worker, maxWorkers),
		sink:    telemetry.Nop{},
		timings: telemetry.Nop{},
		clock:   time.Now,
	}
	for i := range p.workers {
		p.workers[i] = &Worker{ID: i + 1, Status: WorkerIdle}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Submit queues task and returns its future. ctx is handed to the task when
// it runs; the pool itself never cancels a task. After Shutdown the returned
// future is already rejected with ErrPoolShutdown.
func (p *Pool) Submit(ctx context.Context, task Task) *Future {
	if task == nil {
		return rejected(0, ErrInvalidTask)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	if p.shutdown {
		p.mu.Unlock()
		p.sink.Log("pool rejected task", "task", id, "reason", "shutdown")
		return rejected(id, ErrPoolShutdown)
	}
	future := newFuture(id)
	p.queue = append(p.queue, &pending{ctx: ctx, task: task, future: future})
	p.dispatchLocked()
	p.mu.Unlock()
	return future
}

// SubmitFunc is Submit for a plain function.
func (p *Pool) SubmitFunc(ctx context.Context, fn func(context.Context) (any, error)) *Future {
	if fn == nil {
		return rejected(0, ErrInvalidTask)
	}
	return p.Submit(ctx, Func(fn))
}

// dispatchLocked binds queued tasks to idle workers, head of queue first.
// Callers hold p.mu.
func (p *Pool) dispatchLocked() {
	if p.shutdown {
		return
	}
	for len(p.queue) > 0 {
		w := p.idleWorkerLocked()
		if w == nil {
			return
		}
		item := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		w.bind(item.future.id)
		p.active++
		p.inflight.Add(1)
		go p.run(w, item)
	}
}

func (p *Pool) idleWorkerLocked() *Worker {
	for _, w := range p.workers {
		if w.Status == WorkerIdle {
			return w
		}
	}
	return nil
}

func (p *Pool) run(w *Worker, item *pending) {
	started := p.clock()
	value, err := runSafely(item.ctx, item.task)
	p.timings.Observe(TaskSeries, p.clock().Sub(started))

	p.mu.Lock()
	if err != nil {
		w.fail(err)
		p.failed++
	} else {
		p.completed++
	}
	w.free(err != nil)
	p.active--
	p.dispatchLocked()
	p.mu.Unlock()

	if err != nil {
		p.sink.Log("pool task failed", "task", item.future.id, "worker", w.ID, "error", err.Error())
	}
	item.future.resolve(value, err)
	p.inflight.Done()
}

// Shutdown stops accepting work, waits for in-flight tasks to finish and then
// rejects everything still queued with ErrPoolShutdown. It is safe to call
// more than once. If ctx ends before the in-flight tasks finish, the queue is
// still rejected and ctx.Err() is returned; running tasks finish on their own.
func (p *Pool) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	first := !p.shutdown
	p.shutdown = true
	inflight := p.active
	p.mu.Unlock()
	if first {
		p.sink.Log("pool shutting down", "in_flight", inflight)
	}

	drained := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(drained)
	}()
	var waitErr error
	select {
	case <-drained:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	p.mu.Lock()
	queued := p.queue
	p.queue = nil
	p.mu.Unlock()
	for _, item := range queued {
		item.future.resolve(nil, ErrPoolShutdown)
	}
	if len(queued) > 0 {
		p.sink.Log("pool rejected queued tasks", "count", len(queued))
	}
	return waitErr
}

// IsShutdown reports whether Shutdown has been called.
func (p *Pool) IsShutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdown
}

// MaxWorkers returns the fixed number of execution slots.
func (p *Pool) MaxWorkers() int {
	return len(p.workers)
}

// ActiveWorkerCount returns how many workers are bound to a task.
func (p *Pool) ActiveWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// IdleWorkerCount returns how many workers can take work right now.
func (p *Pool) IdleWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers) - p.active
}

// QueueDepth returns how many tasks are waiting for a worker.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Stats returns a consistent snapshot taken under a single lock.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Workers:   len(p.workers),
		Active:    p.active,
		Idle:      len(p.workers) - p.active,
		Queued:    len(p.queue),
		Completed: p.completed,
		Failed:    p.failed,
		Shutdown:  p.shutdown,
	}
}

// Workers returns copies of the worker records.
func (p *Pool) Workers() []Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Worker, len(p.workers))
	for i, w := range p.workers {
		out[i] = *w
	}
	return out
}
