package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FetchResult is the raw output of a successful fetch.
type FetchResult struct {
	URL        string
	HTML       string
	StatusCode int
	Duration   time.Duration
}

// Fetcher loads a page in a leased session under a hard wall-clock timeout.
// It never retries; retry policy belongs to the caller.
type Fetcher struct {
	timeout time.Duration
}

// NewFetcher returns a Fetcher whose fetches are abandoned after timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{timeout: timeout}
}

type fetchOutcome struct {
	status int
	html   string
	err    error
}

// Fetch navigates s to url and extracts the HTML. The deadline is enforced
// even when the session ignores cancellation. When Fetch returns before the
// session call did, the error is an *OverrunError: the session is busy until
// its Settled channel is closed and must then be released as unhealthy.
//
// Errors wrap ErrFetchTimeout, ErrTransport (both transient) or the error of
// ctx when the caller cancelled.
func (f *Fetcher) Fetch(ctx context.Context, s Session, url string) (*FetchResult, error) {
	fctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan fetchOutcome, 1)
	settled := make(chan struct{})
	go func() {
		defer close(settled)
		status, err := s.Navigate(fctx, url)
		if err != nil {
			done <- fetchOutcome{err: err}
			return
		}
		html, err := s.HTML(fctx)
		done <- fetchOutcome{status: status, html: html, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, f.classify(ctx, fctx, out.err)
		}
		return &FetchResult{
			URL:        url,
			HTML:       out.html,
			StatusCode: out.status,
			Duration:   time.Since(start),
		}, nil
	case <-fctx.Done():
		return nil, &OverrunError{
			err:     f.classify(ctx, fctx, fctx.Err()),
			settled: settled,
		}
	}
}

func (f *Fetcher) classify(parent, fctx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(fctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrFetchTimeout, f.timeout)
	}
	if IsTransient(err) {
		return err
	}
	return transportError("fetch", err)
}
