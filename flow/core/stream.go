// Package core defines the core abstractions for data flow processing:
// streams, transformers, emitters and result handling.
//
// NOTE: this package should have no dependencies outside the standard
// library, including other flow packages.
package core

import (
	"context"
	"iter"
)

// Stream represents a flow of data. Nothing runs until Emit is called, which
// makes every stream lazy; terminals are what actually drive the work.
// Stream answers the question: "What operations will produce the stream's data?".
type Stream[OUT any] interface {
	Emit(context.Context) <-chan Result[OUT]

	Collect(context.Context) []Result[OUT]
	All(context.Context) iter.Seq[Result[OUT]]
}

func Collect[OUT any](ctx context.Context, stream Stream[OUT]) []Result[OUT] {
	var results []Result[OUT]
	for res := range stream.Emit(ctx) {
		results = append(results, res)
	}
	return results
}

func All[OUT any](ctx context.Context, stream Stream[OUT]) iter.Seq[Result[OUT]] {
	return func(yield func(Result[OUT]) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		for res := range stream.Emit(ctx) {
			if !yield(res) {
				return
			}
		}
	}
}

// Transformer represents a data processing unit that transforms
// a Stream of type IN into a Stream of type OUT.
// They answer the question: "What operations are being applied to the stream's data?".
type Transformer[IN, OUT any] interface {
	Apply(context.Context, Stream[IN]) Stream[OUT]
}
