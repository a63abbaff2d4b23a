package sqrt

import (
	"io"
	"sync"
)

// LineWriter writes whole lines to a shared writer. Each line reaches the
// underlying writer in a single Write call, and calls are serialized, so
// lines from concurrent observers never interleave.
type LineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLineWriter creates a LineWriter on w.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

// WriteLine writes line followed by a newline.
func (lw *LineWriter) WriteLine(line string) error {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err := lw.w.Write(buf)
	return err
}

// Print writes Format(p) as one line.
func (lw *LineWriter) Print(p DerivedPair) error {
	return lw.WriteLine(Format(p))
}

// Observers calls each observer in turn, stopping at the first error.
func Observers(observers ...func(DerivedPair) error) func(DerivedPair) error {
	return func(p DerivedPair) error {
		for _, observe := range observers {
			if err := observe(p); err != nil {
				return err
			}
		}
		return nil
	}
}
