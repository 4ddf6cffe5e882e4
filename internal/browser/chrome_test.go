package browser_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/yieldpage/internal/browser"
)

func TestNewChromeTransportTriesEveryEndpoint(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	endpoints := []string{
		"ws://" + addr + "/devtools/browser/first",
		"ws://" + addr + "/devtools/browser/second",
	}
	transport, err := browser.NewChromeTransport(ctx, browser.ChromeOptions{RemoteURLs: endpoints}, slog.New(slog.DiscardHandler))
	if err == nil {
		_ = transport.Close()
		t.Fatal("expected an error when no endpoint is reachable")
	}
	if !errors.Is(err, browser.ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
	for _, endpoint := range endpoints {
		if !strings.Contains(err.Error(), endpoint) {
			t.Errorf("error does not mention %s: %v", endpoint, err)
		}
	}
}
