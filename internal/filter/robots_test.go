package filter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestRobots(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n\nUser-agent: yieldpage\nDisallow: /no-bots/\n")
	}))
	t.Cleanup(srv.Close)

	robots := NewRobots(srv.Client())
	ctx := context.Background()

	if !robots.Allowed(ctx, mustParse(t, srv.URL+"/public/page")) {
		t.Error("expected public page to be allowed")
	}
	if robots.Allowed(ctx, mustParse(t, srv.URL+"/no-bots/page")) {
		t.Error("expected agent-specific disallow to apply")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("expected robots.txt to be fetched once, got %d", got)
	}
}

func TestRobotsMissingFileAllows(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	robots := NewRobots(srv.Client(), WithRobotsAgent("custom"))
	if !robots.Allowed(context.Background(), mustParse(t, srv.URL+"/anything")) {
		t.Error("expected missing robots.txt to allow everything")
	}
}

func TestRobotsUnreachableAllows(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	robots := NewRobots(&http.Client{})
	if !robots.Allowed(context.Background(), mustParse(t, addr+"/page")) {
		t.Error("expected unreachable host to allow everything")
	}
}

func TestRobotsIgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
	}))
	t.Cleanup(srv.Close)

	robots := NewRobots(srv.Client())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if robots.Allowed(ctx, mustParse(t, srv.URL+"/private/a")) {
		t.Error("rules must be fetched even when the first caller was cancelled")
	}
	if robots.Allowed(context.Background(), mustParse(t, srv.URL+"/private/b")) {
		t.Error("cached rules must keep disallowing")
	}
}
