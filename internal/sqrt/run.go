package sqrt

import (
	"context"
	"errors"

	"github.com/lguimbarda/parflow/flow/compute"
)

// Opener creates the compute context for a run.
type Opener func(ctx context.Context) (compute.Runner, error)

// Run distributes input over a freshly opened context, maps every value to
// its DerivedPair and hands each pair to observe. The context is closed
// exactly once on every path after it was opened. A close error is
// returned only when the run itself succeeded.
func Run(ctx context.Context, open Opener, input []int, observe func(DerivedPair) error) (err error) {
	r, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); err == nil {
			err = cerr
		}
	}()

	log := r.Logger()
	log.Debug().Ints("input", input).Msg("distributing input")

	pairs := compute.Map(compute.Parallelize(r, input), SquareRoot)
	if err := pairs.ForEach(ctx, observe); err != nil {
		return err
	}
	return nil
}

// IsInputError reports whether err was caused by an invalid input value.
func IsInputError(err error) bool {
	return errors.Is(err, ErrNegativeInput)
}
