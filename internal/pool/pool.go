// Package pool runs independent units of work on a bounded number of
// goroutines.
package pool

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one item. Exactly one of Value and Err is
// meaningful.
type Outcome[R any] struct {
	Index int
	Value R
	Err   error
}

// PanicError wraps a panic raised by a unit of work.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Map calls fn for every item with at most workers calls in flight and
// returns one Outcome per item, in input order. A failing or panicking item
// never stops the others. Items not yet started when ctx is cancelled get
// ctx.Err() as their error.
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) (R, error)) []Outcome[R] {
	if workers < 1 {
		workers = 1
	}
	out := make([]Outcome[R], len(items))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, item := range items {
		out[i].Index = i
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		g.Go(func() error {
			out[i].Value, out[i].Err = call(ctx, item, fn)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func call[T, R any](ctx context.Context, item T, fn func(context.Context, T) (R, error)) (v R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	if err := ctx.Err(); err != nil {
		return v, err
	}
	return fn(ctx, item)
}

// Errors returns the failed outcomes.
func Errors[R any](outcomes []Outcome[R]) []Outcome[R] {
	var failed []Outcome[R]
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}
