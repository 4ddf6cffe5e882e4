package report

import (
	"io"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the report and returns the number of bytes written.
	Write(report *Report) (int, error)
}

// MultiWriter writes to multiple Writers, typically the terminal and a file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers and returns the total
// bytes written. It stops on the first error.
func (m *MultiWriter) Write(report *Report) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
