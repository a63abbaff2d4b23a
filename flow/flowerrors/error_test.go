package flowerrors_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lguimbarda/parflow/flow/core"
	"github.com/lguimbarda/parflow/flow/flowerrors"
)

func mixedStream() core.Stream[int] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[int] {
		out := make(chan core.Result[int])
		go func() {
			defer close(out)
			for _, r := range []core.Result[int]{
				core.Ok(1),
				core.Err[int](errors.New("error1")),
				core.Ok(2),
				core.Err[int](errors.New("error2")),
				core.EndOfStream[int](),
			} {
				select {
				case <-ctx.Done():
					return
				case out <- r:
				}
			}
		}()
		return out
	})
}

func TestOnError(t *testing.T) {
	ctx := context.Background()

	var capturedErrors []string
	handler := func(err error) {
		capturedErrors = append(capturedErrors, err.Error())
	}

	result := flowerrors.OnError[int](handler).Apply(ctx, mixedStream())

	var values []int
	var errCount, sentinels int
	for r := range result.Emit(ctx) {
		switch {
		case r.IsValue():
			values = append(values, r.Value())
		case r.IsError():
			errCount++
		case r.IsSentinel():
			sentinels++
		}
	}

	if len(values) != 2 {
		t.Errorf("got %d values, want 2", len(values))
	}
	if errCount != 2 {
		t.Errorf("got %d errors, want 2", errCount)
	}
	if sentinels != 1 {
		t.Errorf("got %d sentinels, want 1", sentinels)
	}
	if len(capturedErrors) != 2 {
		t.Fatalf("got %d captured errors, want 2", len(capturedErrors))
	}
	if capturedErrors[0] != "error1" || capturedErrors[1] != "error2" {
		t.Errorf("captured errors = %v, want [error1, error2]", capturedErrors)
	}
}

func TestErrorContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	infinite := core.Emit(func(ctx context.Context) <-chan core.Result[int] {
		out := make(chan core.Result[int])
		go func() {
			defer close(out)
			for {
				select {
				case <-ctx.Done():
					return
				case out <- core.Err[int](errors.New("again")):
				}
			}
		}()
		return out
	})

	result := flowerrors.OnError[int](func(error) {}).Apply(ctx, infinite)
	ch := result.Emit(ctx)
	<-ch
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range ch {
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after cancellation")
	}
}
