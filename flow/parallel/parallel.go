// Package parallel runs per-item work of a stream on a fixed pool of worker
// goroutines. Items are independent: no ordering is kept between them.
package parallel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/lguimbarda/parflow/flow/core"
)

// Map creates a Transformer that processes items concurrently using n workers.
// Each worker applies mapper; an error or panic becomes an error Result for
// that item. Results may arrive out of order. If n <= 0, defaults to 1 worker.
//
// An end-of-stream sentinel from upstream is held back and emitted once, after
// every worker has finished, so it stays the last Result of the output.
func Map[IN, OUT any](n int, mapper func(IN) (OUT, error), opts ...core.TransformOption) core.Transformer[IN, OUT] {
	if n <= 0 {
		n = 1
	}
	cfg := core.ApplyOptions(opts...)
	m := core.Map(mapper)

	return core.Transmit(func(ctx context.Context, in <-chan core.Result[IN]) <-chan core.Result[OUT] {
		out := make(chan core.Result[OUT], cfg.BufferSize)

		go func() {
			defer close(out)

			var (
				wg      sync.WaitGroup
				ended   atomic.Bool
				stopped atomic.Bool
			)
			wg.Add(n)

			for i := 0; i < n; i++ {
				go func() {
					defer wg.Done()
					for res := range in {
						select {
						case <-ctx.Done():
							stopped.Store(true)
							return
						default:
						}

						if res.IsSentinel() && errors.Is(res.Sentinel(), core.ErrEndOfStream) {
							ended.Store(true)
							continue
						}

						select {
						case <-ctx.Done():
							stopped.Store(true)
							return
						case out <- m(res):
						}
					}
				}()
			}

			wg.Wait()

			if ended.Load() && !stopped.Load() {
				select {
				case <-ctx.Done():
				case out <- core.EndOfStream[OUT]():
				}
			}
		}()

		return out
	})
}

// ForEach drains the stream with n workers, calling fn once for every value.
// It blocks until every value has been handled or the first failure: an
// error Result, an error or panic from fn, or cancellation of ctx. The first
// failure cancels the remaining work and is returned.
// If n <= 0, defaults to 1 worker.
//
// A stream that delivered its end-of-stream sentinel counts as drained: a
// cancellation of ctx that arrives afterwards is not reported.
func ForEach[T any](ctx context.Context, n int, s core.Stream[T], fn func(T) error) error {
	if n <= 0 {
		n = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	in := s.Emit(gctx)

	var drained atomic.Bool
	for i := 0; i < n; i++ {
		g.Go(func() error {
			for res := range in {
				if res.IsSentinel() {
					if errors.Is(res.Sentinel(), core.ErrEndOfStream) {
						drained.Store(true)
					}
					continue
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				if res.IsError() {
					return res.Error()
				}
				if err := core.SafeCall(fn, res.Value()); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if drained.Load() {
		return nil
	}
	// The source stopped early because the caller's context ended.
	return ctx.Err()
}
