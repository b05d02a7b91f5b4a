package worker

import "context"

// sinkFuncs adapts a pair of repository methods to Sink.
type sinkFuncs[T any] struct {
	batch func(ctx context.Context, items []T) error
	one   func(ctx context.Context, item T) error
}

func (s sinkFuncs[T]) WriteBatch(ctx context.Context, items []T) error { return s.batch(ctx, items) }
func (s sinkFuncs[T]) WriteOne(ctx context.Context, item T) error      { return s.one(ctx, item) }
