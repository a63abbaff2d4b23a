package core

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrPanic wraps a recovered panic value as an error.
// It is produced when a user-provided function panics while a stream is
// being processed. Stack holds the trace with internal parflow frames removed.
type ErrPanic struct {
	Value any
	Stack string
}

func (e ErrPanic) Error() string {
	if e.Stack != "" {
		return fmt.Sprintf("panic: %v\n%s", e.Value, e.Stack)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// NewPanicError creates an ErrPanic from a recovered value with a cleaned stack trace.
func NewPanicError(recovered any) ErrPanic {
	return ErrPanic{
		Value: recovered,
		Stack: cleanStack(captureStack(4)), // skip: runtime.Callers, captureStack, NewPanicError, defer func
	}
}

func captureStack(skip int) string {
	const maxFrames = 32
	var pcs [maxFrames]uintptr
	n := runtime.Callers(skip, pcs[:])
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&sb, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return sb.String()
}

// internalPrefix marks the stream machinery frames dropped by cleanStack.
const internalPrefix = "github.com/lguimbarda/parflow/flow/"

// cleanStack removes internal flow frames from a stack trace, keeping
// user code and standard library frames.
func cleanStack(stack string) string {
	lines := strings.Split(stack, "\n")
	var result []string
	var skipNext bool

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		if !strings.HasPrefix(line, "\t") {
			if strings.Contains(line, internalPrefix) {
				skipNext = true
				continue
			}
			skipNext = false
		} else if skipNext {
			continue
		}

		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

// Result represents the outcome of processing an item in the stream.
// It exists in one of three states:
//   - Value: successful processing result (IsValue() returns true)
//   - Error: processing failure (IsError() returns true)
//   - Sentinel: stream control signal like end-of-stream (IsSentinel() returns true)
//
// Whether an error ends the stream is decided by the consumer: terminals
// such as Slice and ForEach stop at the first error.
type Result[OUT any] struct {
	value      OUT
	err        error
	isSentinel bool
}

// NewResult creates a Result with explicit control over all fields.
// Prefer Ok(), Err() or EndOfStream() for common cases.
func NewResult[OUT any](value OUT, err error, isSentinel bool) Result[OUT] {
	return Result[OUT]{value: value, err: err, isSentinel: isSentinel}
}

// Ok creates a successful Result containing the given value.
func Ok[OUT any](value OUT) Result[OUT] {
	return Result[OUT]{value: value}
}

// Err creates an error Result.
func Err[OUT any](err error) Result[OUT] {
	var zero OUT
	return Result[OUT]{value: zero, err: err}
}

// Sentinel creates a sentinel Result with an optional descriptive error.
func Sentinel[OUT any](err error) Result[OUT] {
	var zero OUT
	return Result[OUT]{value: zero, err: err, isSentinel: true}
}

// ErrEndOfStream is the sentinel error indicating normal stream termination.
var ErrEndOfStream = errors.New("end of stream")

// EndOfStream creates a sentinel Result indicating the stream has ended normally.
func EndOfStream[OUT any]() Result[OUT] {
	return Sentinel[OUT](ErrEndOfStream)
}

// IsValue returns true if this Result contains a successful value.
func (r Result[OUT]) IsValue() bool {
	return r.err == nil && !r.isSentinel
}

// IsSentinel returns true if this Result is a sentinel (control signal).
func (r Result[OUT]) IsSentinel() bool {
	return r.isSentinel
}

// IsError returns true if this Result contains a processing error.
func (r Result[OUT]) IsError() bool {
	return r.err != nil && !r.isSentinel
}

// Value returns the contained value. Only meaningful when IsValue() is true.
func (r Result[OUT]) Value() OUT {
	return r.value
}

// Error returns the error if this is an error Result, nil otherwise.
func (r Result[OUT]) Error() error {
	if r.isSentinel {
		return nil
	}
	return r.err
}

// Sentinel returns the sentinel's context error if this is a sentinel Result.
func (r Result[OUT]) Sentinel() error {
	if !r.isSentinel {
		return nil
	}
	return r.err
}

// Unwrap returns the value and error together.
func (r Result[OUT]) Unwrap() (OUT, error) {
	return r.value, r.err
}
