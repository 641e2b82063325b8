package pool

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Future is the pending result of a submitted task. It resolves exactly once.
type Future struct {
	id    uint64
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func newFuture(id uint64) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

func rejected(id uint64, err error) *Future {
	f := newFuture(id)
	f.resolve(nil, err)
	return f
}

func (f *Future) resolve(value any, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// ID returns the submission sequence number assigned by the pool.
func (f *Future) ID() uint64 {
	return f.id
}

// Done is closed once the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future resolves or ctx ends. Abandoning the wait does
// not cancel the task.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AwaitAll waits for every future and returns the values in argument order.
// The first error observed is returned.
func AwaitAll(ctx context.Context, futures ...*Future) ([]any, error) {
	values := make([]any, len(futures))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range futures {
		g.Go(func() error {
			v, err := f.Await(gctx)
			if err != nil {
				return err
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return values, err
	}
	return values, nil
}
