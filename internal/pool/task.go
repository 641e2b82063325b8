package pool

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidTask is returned by From when a value has no runnable shape.
var ErrInvalidTask = errors.New("pool: value is not a runnable task")

// Task is a unit of work. Identity is assigned by whoever submits it.
type Task interface {
	Run(ctx context.Context) (any, error)
}

// Executor is implemented by objects that carry their own work.
type Executor interface {
	Execute(ctx context.Context) (any, error)
}

// Func adapts a function into a Task.
type Func func(ctx context.Context) (any, error)

// Run implements Task.
func (f Func) Run(ctx context.Context) (any, error) {
	return f(ctx)
}

// Executable adapts an Executor into a Task.
type Executable struct {
	Executor Executor
}

// Run implements Task.
func (e Executable) Run(ctx context.Context) (any, error) {
	if e.Executor == nil {
		return nil, ErrInvalidTask
	}
	return e.Executor.Execute(ctx)
}

// From resolves a dynamically shaped value into a Task once, before it is
// queued.
func From(v any) (Task, error) {
	switch t := v.(type) {
	case nil:
		return nil, ErrInvalidTask
	case Task:
		return t, nil
	case Executor:
		return Executable{Executor: t}, nil
	case func(context.Context) (any, error):
		return Func(t), nil
	case func() (any, error):
		return Func(func(context.Context) (any, error) { return t() }), nil
	case func() error:
		return Func(func(context.Context) (any, error) { return nil, t() }), nil
	case func():
		return Func(func(context.Context) (any, error) { t(); return nil, nil }), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidTask, v)
	}
}

// runSafely converts panics into errors so a misbehaving task only fails its
// own future.
func runSafely(ctx context.Context, task Task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("pool: task panicked: %v", r)
		}
	}()
	return task.Run(ctx)
}

// RunSafely runs task in the caller's goroutine with the same panic handling
// the pool applies to dispatched work.
func RunSafely(ctx context.Context, task Task) (any, error) {
	if task == nil {
		return nil, ErrInvalidTask
	}
	return runSafely(ctx, task)
}
