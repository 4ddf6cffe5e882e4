package filter

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// DefaultRobotsAgent is the user agent token matched against robots.txt groups.
const DefaultRobotsAgent = "yieldpage"

// maxRobotsSize bounds how much of a robots.txt file is read.
const maxRobotsSize = 512 * 1024

// robotsFetchTimeout bounds a robots.txt fetch when the client has no timeout.
const robotsFetchTimeout = 30 * time.Second

// Robots answers robots.txt questions, fetching each host's file at most once
// per run. A robots.txt that cannot be fetched allows everything.
type Robots struct {
	client *http.Client
	agent  string
	logger *slog.Logger

	mu    sync.Mutex
	hosts map[string]*robotsEntry
}

type robotsEntry struct {
	once sync.Once
	data *robotstxt.RobotsData
}

// RobotsOption configures Robots.
type RobotsOption func(*Robots)

// WithRobotsAgent sets the agent token used for group matching.
func WithRobotsAgent(agent string) RobotsOption {
	return func(r *Robots) {
		if agent != "" {
			r.agent = agent
		}
	}
}

// WithRobotsLogger sets the logger.
func WithRobotsLogger(logger *slog.Logger) RobotsOption {
	return func(r *Robots) {
		r.logger = logger
	}
}

// NewRobots creates a robots.txt checker that fetches with client.
func NewRobots(client *http.Client, opts ...RobotsOption) *Robots {
	if client == nil {
		client = http.DefaultClient
	}
	r := &Robots{
		client: client,
		agent:  DefaultRobotsAgent,
		logger: slog.Default(),
		hosts:  make(map[string]*robotsEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allowed reports whether robots.txt of u's host permits crawling u.
func (r *Robots) Allowed(ctx context.Context, u *url.URL) bool {
	key := u.Scheme + "://" + u.Host

	r.mu.Lock()
	entry, ok := r.hosts[key]
	if !ok {
		entry = &robotsEntry{}
		r.hosts[key] = entry
	}
	r.mu.Unlock()

	entry.once.Do(func() {
		entry.data = r.fetch(ctx, key)
	})
	if entry.data == nil {
		return true
	}
	return entry.data.TestAgent(u.RequestURI(), r.agent)
}

// fetch downloads and parses origin's robots.txt. The result is cached for
// the whole run, so the fetch does not follow the cancellation of the caller
// that happened to trigger it.
func (r *Robots) fetch(ctx context.Context, origin string) *robotstxt.RobotsData {
	timeout := r.client.Timeout
	if timeout <= 0 {
		timeout = robotsFetchTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("robots.txt unavailable", "host", origin, "error", err)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		r.logger.Debug("robots.txt read failed", "host", origin, "error", err)
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		r.logger.Debug("robots.txt unparsable", "host", origin, "error", err)
		return nil
	}
	return data
}
