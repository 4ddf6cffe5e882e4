package sink

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/nao1215/yieldpage/internal/model"
)

// Sink receives page records. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, rec *model.PageRecord) error
	Close() error
}

// Multi fans every record out to several sinks. A failing sink does not stop
// the others from receiving the record.
type Multi struct {
	sinks []Sink
}

// NewMulti returns a sink writing to all of sinks.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Emit implements Sink.
func (m *Multi) Emit(ctx context.Context, rec *model.PageRecord) error {
	var errs *multierror.Error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, rec); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// Close closes every sink and reports all failures.
func (m *Multi) Close() error {
	var errs *multierror.Error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Discard drops every record.
type Discard struct{}

// Emit implements Sink.
func (Discard) Emit(context.Context, *model.PageRecord) error { return nil }

// Close implements Sink.
func (Discard) Close() error { return nil }
