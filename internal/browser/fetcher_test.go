package browser_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nao1215/yieldpage/internal/browser"
	"github.com/nao1215/yieldpage/internal/browser/browsertest"
)

func openSession(t *testing.T, transport *browsertest.Transport) browser.Session {
	t.Helper()
	s, err := transport.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestFetcherSuccess(t *testing.T) {
	t.Parallel()

	transport := browsertest.New()
	transport.SetPage("https://example.com/", "<html><head><title>Hi</title></head></html>")

	result, err := browser.NewFetcher(time.Second).Fetch(context.Background(), openSession(t, transport), "https://example.com/")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.StatusCode != 200 || result.HTML == "" || result.URL != "https://example.com/" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestFetcherTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		ignoreContext bool
	}{
		{name: "session honours cancellation"},
		{name: "session ignores cancellation", ignoreContext: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			transport := browsertest.New()
			transport.Script("https://slow.example/", browsertest.Response{
				Delay:         500 * time.Millisecond,
				IgnoreContext: tt.ignoreContext,
			})

			start := time.Now()
			_, err := browser.NewFetcher(30*time.Millisecond).Fetch(context.Background(), openSession(t, transport), "https://slow.example/")
			if !errors.Is(err, browser.ErrFetchTimeout) {
				t.Fatalf("expected ErrFetchTimeout, got %v", err)
			}
			if !browser.IsTransient(err) {
				t.Error("timeouts must be transient")
			}
			if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
				t.Errorf("fetch took %v, the timeout was not enforced", elapsed)
			}

			// A session that honours cancellation may return together with
			// the deadline, so only the hung session must report an overrun.
			var overrun *browser.OverrunError
			if !errors.As(err, &overrun) {
				if tt.ignoreContext {
					t.Fatalf("expected *OverrunError, got %T", err)
				}
				return
			}
			if tt.ignoreContext {
				select {
				case <-overrun.Settled():
					t.Error("session call reported settled while still navigating")
				default:
				}
			}
			select {
			case <-overrun.Settled():
			case <-time.After(2 * time.Second):
				t.Error("session call never settled")
			}
			if got := transport.MaxConcurrentTotal(); got != 1 {
				t.Errorf("max concurrent navigations = %d, want 1", got)
			}
		})
	}
}

func TestFetcherTransportError(t *testing.T) {
	t.Parallel()

	transport := browsertest.New()
	transport.Script("https://broken.example/", browsertest.Response{Err: errors.New("net::ERR_CONNECTION_RESET")})

	_, err := browser.NewFetcher(time.Second).Fetch(context.Background(), openSession(t, transport), "https://broken.example/")
	if !errors.Is(err, browser.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestFetcherCallerCancellation(t *testing.T) {
	t.Parallel()

	transport := browsertest.New()
	transport.Script("https://slow.example/", browsertest.Response{Delay: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := browser.NewFetcher(5*time.Second).Fetch(ctx, openSession(t, transport), "https://slow.example/")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if browser.IsTransient(err) {
		t.Error("cancellation must not be transient")
	}
}
