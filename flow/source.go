package flow

import (
	"context"

	"github.com/lguimbarda/parflow/flow/core"
)

// FromSlice creates a Stream that emits each element from the given slice,
// followed by an end-of-stream sentinel once every element was emitted.
// Uses buffered channels to reduce goroutine synchronization overhead.
func FromSlice[T any](items []T) Stream[T] {
	const maxBufferSize = 512

	return Emit(func(ctx context.Context) <-chan Result[T] {
		// For small slices, use a fully-buffered channel (no goroutine needed)
		if len(items) <= maxBufferSize {
			out := make(chan Result[T], len(items)+1)
			for _, item := range items {
				out <- Ok(item)
			}
			out <- core.EndOfStream[T]()
			close(out)
			return out
		}

		out := make(chan Result[T], maxBufferSize)
		go func() {
			defer close(out)
			for _, item := range items {
				select {
				case <-ctx.Done():
					return
				case out <- Ok(item):
				}
			}
			select {
			case <-ctx.Done():
			case out <- core.EndOfStream[T]():
			}
		}()
		return out
	})
}

// Empty creates a Stream that emits no values and completes immediately.
func Empty[T any]() Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T], 1)
		out <- core.EndOfStream[T]()
		close(out)
		return out
	})
}
