package compute

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/lguimbarda/parflow/flow"
	"github.com/lguimbarda/parflow/flow/core"
	"github.com/lguimbarda/parflow/flow/flowerrors"
	"github.com/lguimbarda/parflow/flow/observe"
	"github.com/lguimbarda/parflow/flow/parallel"
)

// Stage names used for element metrics.
const (
	StageForEach = "foreach"
	stageMap     = "map"
)

// slot carries an element together with its position in the input, so
// failures can name it and Collect can restore input order.
type slot[T any] struct {
	index int
	value T
}

// Collection is an immutable, lazily evaluated collection of elements
// bound to a Runner. Transformations return new collections; actions run
// the whole chain on the runner's workers.
type Collection[T any] struct {
	runner Runner
	depth  int
	stream core.Stream[slot[T]]
}

// Parallelize distributes a copy of data over r. No work is performed.
func Parallelize[T any](r Runner, data []T) *Collection[T] {
	if len(data) == 0 {
		return &Collection[T]{runner: r, stream: flow.Empty[slot[T]]()}
	}
	slots := make([]slot[T], len(data))
	for i, v := range data {
		slots[i] = slot[T]{index: i, value: v}
	}
	return &Collection[T]{runner: r, stream: flow.FromSlice(slots)}
}

// Map returns a collection holding f(x) for every element x of c. It is
// lazy: f runs once per element when an action is executed, on up to
// Parallelism() workers. An error or panic from f fails the action with an
// *ElementError.
func Map[T, U any](c *Collection[T], f func(T) (U, error)) *Collection[U] {
	depth := c.depth + 1
	stage := fmt.Sprintf("%s.%d", stageMap, depth)
	r := c.runner

	apply := func(s slot[T]) (out slot[U], err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = &ElementError{Stage: stage, Index: s.index, Value: s.value, Err: core.NewPanicError(rec)}
			}
		}()
		u, err := f(s.value)
		if err != nil {
			return slot[U]{}, &ElementError{Stage: stage, Index: s.index, Value: s.value, Err: err}
		}
		return slot[U]{index: s.index, value: u}, nil
	}

	var t core.Transformer[slot[T], slot[U]]
	if n := r.Parallelism(); n > 1 {
		t = parallel.Map(n, apply, core.WithBufferSize(r.BufferSize()))
	} else {
		t = core.Map(apply)
	}

	// Errors from upstream stages pass through core.Map untouched; only
	// the ones raised here are counted and logged for this stage.
	own := func(err error) bool {
		var elemErr *ElementError
		return errors.As(err, &elemErr) && elemErr.Stage == stage
	}

	log := r.Logger()
	stream := flow.Apply(context.Background(), c.stream, flow.Through(
		t,
		flow.Through(
			observe.Count[slot[U]](r.Recorder(stage), own),
			flowerrors.OnError[slot[U]](func(err error) {
				if own(err) {
					log.Warn().Err(err).Str("stage", stage).Msg("element failed")
				}
			}),
		),
	))

	return &Collection[U]{runner: r, depth: depth, stream: stream}
}

// ForEach runs observer once for every element and blocks until all have
// been observed. Elements are observed concurrently with no ordering
// between them. The first failure of a transform or of observer cancels
// the remaining work and is returned; cancelling ctx aborts the action
// with ctx's error.
func (c *Collection[T]) ForEach(ctx context.Context, observer func(T) error) error {
	if err := c.runner.Err(); err != nil {
		return err
	}

	rec := c.runner.Recorder(StageForEach)
	log := c.runner.Logger()
	log.Debug().Int("parallelism", c.runner.Parallelism()).Msg("running foreach")

	return parallel.ForEach(ctx, c.runner.Parallelism(), c.stream, func(s slot[T]) error {
		err := core.SafeCall(observer, s.value)
		rec.Record(ctx, err)
		if err != nil {
			return &ElementError{Stage: StageForEach, Index: s.index, Value: s.value, Err: err}
		}
		return nil
	})
}

// Collect returns every element in input order.
func (c *Collection[T]) Collect(ctx context.Context) ([]T, error) {
	if err := c.runner.Err(); err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		slots []slot[T]
	)
	err := parallel.ForEach(ctx, c.runner.Parallelism(), c.stream, func(s slot[T]) error {
		mu.Lock()
		slots = append(slots, s)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(slots, func(a, b slot[T]) int { return a.index - b.index })
	out := make([]T, len(slots))
	for i, s := range slots {
		out[i] = s.value
	}
	return out, nil
}

// Count returns the number of elements.
func (c *Collection[T]) Count(ctx context.Context) (int, error) {
	if err := c.runner.Err(); err != nil {
		return 0, err
	}
	return core.Count(ctx, c.stream)
}
