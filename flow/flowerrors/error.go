// Package flowerrors provides stream operators that observe error Results
// without touching values.
package flowerrors

import (
	"context"

	"github.com/lguimbarda/parflow/flow/core"
)

// OnError creates a Transformer that calls a handler function when an error occurs.
// The handler is called for side effects; the error still passes through the stream.
func OnError[T any](handler func(error)) core.Transformer[T, T] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[T]) <-chan core.Result[T] {
		out := make(chan core.Result[T])

		go func() {
			defer close(out)

			for res := range in {
				select {
				case <-ctx.Done():
					return
				default:
				}

				if res.IsError() {
					handler(res.Error())
				}

				select {
				case <-ctx.Done():
					return
				case out <- res:
				}
			}
		}()

		return out
	})
}
