package compute

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrClosed is returned by actions run after their context was closed.
var ErrClosed = errors.New("compute: context closed")

// InitError reports a context that could not be created.
type InitError struct {
	AppName string
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("compute: initialize %q: %v", e.AppName, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// ElementError reports the element whose transform or observer failed.
// Index is the element's position in the distributed input and Stage the
// stage whose function failed.
type ElementError struct {
	Stage string
	Index int
	Value any
	Err   error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("compute: %s: element %d (%v): %v", e.Stage, e.Index, e.Value, e.Err)
}

func (e *ElementError) Unwrap() error {
	return e.Err
}
