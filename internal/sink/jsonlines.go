package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/nao1215/yieldpage/internal/model"
)

// Stdout is the output path that selects standard output.
const Stdout = "-"

// JSONLines writes one JSON document per record and line.
type JSONLines struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

// NewJSONLines writes records to w. The caller keeps ownership of w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w)}
}

// OpenJSONLines writes records to the file at path, creating parent
// directories and truncating an existing file. Stdout selects os.Stdout.
func OpenJSONLines(path string) (*JSONLines, error) {
	if path == Stdout || path == "" {
		return NewJSONLines(os.Stdout), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	s := NewJSONLines(f)
	s.closer = f
	return s, nil
}

// Emit implements Sink.
func (s *JSONLines) Emit(_ context.Context, rec *model.PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to write record %s: %w", rec.URL, err)
	}
	return nil
}

// Close closes the underlying file, if JSONLines opened it.
func (s *JSONLines) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}
