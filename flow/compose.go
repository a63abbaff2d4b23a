package flow

import (
	"context"
)

// Through chains two transformers together, creating a new transformer
// that first applies t1 and then t2 to the stream.
func Through[IN, MID, OUT any](t1 Transformer[IN, MID], t2 Transformer[MID, OUT]) Transformer[IN, OUT] {
	return Transmit(func(ctx context.Context, in <-chan Result[IN]) <-chan Result[OUT] {
		inStream := Emit(func(_ context.Context) <-chan Result[IN] { return in })
		return t2.Apply(ctx, t1.Apply(ctx, inStream)).Emit(ctx)
	})
}

// Apply is a helper to apply a single transformer to a stream.
// Equivalent to transformer.Apply(ctx, stream) but reads left-to-right.
func Apply[IN, OUT any](ctx context.Context, stream Stream[IN], transformer Transformer[IN, OUT]) Stream[OUT] {
	return transformer.Apply(ctx, stream)
}
