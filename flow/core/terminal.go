package core

import (
	"context"
	"errors"
)

// Terminal functions are sinks that consume the stream data and produce a
// final result, such as a slice of values, a count, or just the side effects
// of the stream. They all stop at the first error Result and cancel upstream
// work when they return.

func Slice[OUT any](ctx context.Context, in Stream[OUT]) ([]OUT, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var result []OUT
	for res := range in.Emit(ctx) {
		if res.IsError() {
			return nil, res.Error()
		}
		if res.IsSentinel() {
			continue
		}
		result = append(result, res.Value())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Count returns the number of values in the stream.
func Count[OUT any](ctx context.Context, in Stream[OUT]) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := 0
	for res := range in.Emit(ctx) {
		if res.IsError() {
			return 0, res.Error()
		}
		if res.IsValue() {
			n++
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return n, nil
}

// ForEach calls fn for every value in order on the calling goroutine.
// A panic in fn is returned as an ErrPanic. Once the end-of-stream sentinel
// arrived, a later cancellation of ctx is not reported.
func ForEach[OUT any](ctx context.Context, in Stream[OUT], fn func(OUT) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	drained := false
	for res := range in.Emit(ctx) {
		if res.IsError() {
			return res.Error()
		}
		if res.IsSentinel() {
			drained = drained || errors.Is(res.Sentinel(), ErrEndOfStream)
			continue
		}
		if err := SafeCall(fn, res.Value()); err != nil {
			return err
		}
	}
	if drained {
		return nil
	}
	return ctx.Err()
}

// SafeCall runs fn(v), turning a panic into an ErrPanic.
func SafeCall[T any](fn func(T) error, v T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewPanicError(r)
		}
	}()
	return fn(v)
}
