// Package flow provides a stream processing framework for building
// data pipelines in Go that run their stages concurrently on local workers.
//
// This package is the primary user-facing API for stream building blocks.
// The flow/core subpackage contains the low-level abstractions, and
// flow/compute layers a context-owned, Spark-like collection API on top.
package flow

import (
	"context"

	"github.com/lguimbarda/parflow/flow/core"
)

// Type aliases for core stream abstractions.
// These allow users to work with the framework without importing core directly.
type (
	// Result represents the outcome of processing an item in the stream.
	// It exists in one of three states: Value, Error, or Sentinel.
	Result[T any] = core.Result[T]

	// Stream represents a flow of data with methods for processing.
	Stream[T any] = core.Stream[T]

	// Transformer transforms a Stream of type IN into a Stream of type OUT.
	Transformer[IN, OUT any] = core.Transformer[IN, OUT]

	// Emitter produces a channel of Results and implements Stream.
	Emitter[T any] = core.Emitter[T]

	// Transmitter transforms one channel of Results into another and implements Transformer.
	Transmitter[IN, OUT any] = core.Transmitter[IN, OUT]

	// Mapper transforms individual items (1:1 cardinality) and implements Transformer.
	Mapper[IN, OUT any] = core.Mapper[IN, OUT]
)

// ErrEndOfStream is the sentinel error indicating normal stream termination.
var ErrEndOfStream = core.ErrEndOfStream

// Ok creates a successful Result containing the given value.
func Ok[T any](value T) Result[T] {
	return core.Ok(value)
}

// Err creates an error Result.
func Err[T any](err error) Result[T] {
	return core.Err[T](err)
}

// Map creates a sequential Mapper from a transformation function.
func Map[IN, OUT any](mapFunc func(IN) (OUT, error)) Mapper[IN, OUT] {
	return core.Map(mapFunc)
}

// Terminal operations.

// Slice collects all stream values into a slice.
func Slice[T any](ctx context.Context, in Stream[T]) ([]T, error) {
	return core.Slice(ctx, in)
}

// Count returns the number of values in the stream.
func Count[T any](ctx context.Context, in Stream[T]) (int, error) {
	return core.Count(ctx, in)
}

// ForEach calls fn for every value, sequentially.
func ForEach[T any](ctx context.Context, in Stream[T], fn func(T) error) error {
	return core.ForEach(ctx, in, fn)
}

// Emit creates an Emitter from a channel-producing function.
func Emit[T any](emitter func(context.Context) <-chan Result[T]) Emitter[T] {
	return core.Emit(emitter)
}

// Transmit creates a Transmitter from a channel transformation function.
func Transmit[IN, OUT any](transmitter func(context.Context, <-chan Result[IN]) <-chan Result[OUT]) Transmitter[IN, OUT] {
	return core.Transmit(transmitter)
}
