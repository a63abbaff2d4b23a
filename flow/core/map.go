package core

import (
	"context"
)

// DefaultBufferSize is the default buffer size for internal channels.
// A small buffer reduces goroutine synchronization overhead without
// consuming excessive memory.
const DefaultBufferSize = 64

// TransformConfig holds configuration options for transform operations.
type TransformConfig struct {
	BufferSize int
}

// TransformOption is a functional option for configuring transforms.
type TransformOption func(*TransformConfig)

// WithBufferSize sets the buffer size for the transform's output channel.
// Use 0 for unbuffered (synchronous) operation.
func WithBufferSize(size int) TransformOption {
	return func(c *TransformConfig) {
		if size >= 0 {
			c.BufferSize = size
		}
	}
}

func defaultConfig() TransformConfig {
	return TransformConfig{
		BufferSize: DefaultBufferSize,
	}
}

// ApplyOptions folds functional options over the default config.
func ApplyOptions(opts ...TransformOption) TransformConfig {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Mapper defines a function that maps a Result of type IN to a Result of type OUT. It represents a transformation
// that maintains the cardinality of the flow (one input item produces one output item).
// It answers the question: "What is done to each item in the flow?"
type Mapper[IN, OUT any] func(Result[IN]) Result[OUT]

// Map creates a Mapper from a transformation function. Errors and panics of
// mapFunc become error Results; upstream errors and sentinels pass through.
func Map[IN, OUT any](mapFunc func(IN) (OUT, error)) Mapper[IN, OUT] {
	return func(res Result[IN]) (out Result[OUT]) {
		if res.IsError() {
			return Err[OUT](res.Error())
		}
		if res.IsSentinel() {
			return Sentinel[OUT](res.Sentinel())
		}

		defer func() {
			if r := recover(); r != nil {
				out = Err[OUT](NewPanicError(r))
			}
		}()
		mappedValue, err := mapFunc(res.Value())
		if err != nil {
			return Err[OUT](err)
		}
		return Ok(mappedValue)
	}
}

// Apply transforms a stream using this Mapper with default configuration.
func (m Mapper[IN, OUT]) Apply(ctx context.Context, s Stream[IN]) Stream[OUT] {
	return m.ApplyWith(ctx, s)
}

// ApplyWith transforms a stream using this Mapper with custom options.
// Items are mapped one at a time, in order, on a single goroutine.
func (m Mapper[IN, OUT]) ApplyWith(_ context.Context, s Stream[IN], opts ...TransformOption) Stream[OUT] {
	cfg := ApplyOptions(opts...)
	return Emit(func(ctx context.Context) <-chan Result[OUT] {
		outChan := make(chan Result[OUT], cfg.BufferSize)
		go func() {
			defer close(outChan)
			for resIn := range s.Emit(ctx) {
				select {
				case <-ctx.Done():
					return
				case outChan <- m(resIn):
				}
			}
		}()
		return outChan
	})
}
