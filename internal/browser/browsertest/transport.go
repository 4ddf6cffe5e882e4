// Package browsertest provides an in-memory browser.Transport for tests.
package browsertest

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/nao1215/yieldpage/internal/browser"
)

// ErrScripted is the default error of a scripted failure.
var ErrScripted = errors.New("scripted navigation failure")

// Response scripts one navigation.
type Response struct {
	HTML   string
	Status int
	// Delay is waited before the navigation completes.
	Delay time.Duration
	// IgnoreContext makes the delay uncancellable, like a hung browser.
	IgnoreContext bool
	// Err fails the navigation.
	Err error
}

// Transport serves scripted pages. Each navigation of a URL consumes the next
// scripted response; the last one repeats. Unknown URLs get a 404 page.
type Transport struct {
	mu          sync.Mutex
	scripts     map[string][]Response
	navigations map[string]int
	active      map[string]int
	maxActive   map[string]int
	totalActive int
	maxTotal    int
	order       []string
	opened      int
	closed      int
	openErr     error
}

// New returns an empty fake transport.
func New() *Transport {
	return &Transport{
		scripts:     make(map[string][]Response),
		navigations: make(map[string]int),
		active:      make(map[string]int),
		maxActive:   make(map[string]int),
	}
}

// SetPage serves html with status 200 for rawURL.
func (t *Transport) SetPage(rawURL, html string) {
	t.Script(rawURL, Response{HTML: html, Status: 200})
}

// Script sets the responses for successive navigations to rawURL.
func (t *Transport) Script(rawURL string, responses ...Response) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scripts[rawURL] = responses
}

// FailOpen makes every Open call fail with err.
func (t *Transport) FailOpen(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openErr = err
}

// Open implements browser.Transport.
func (t *Transport) Open(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	t.opened++
	return &session{t: t}, nil
}

// Navigations returns how often rawURL was navigated to.
func (t *Transport) Navigations(rawURL string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.navigations[rawURL]
}

// Order returns the navigated URLs in start order.
func (t *Transport) Order() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.order...)
}

// MaxConcurrent returns the highest number of simultaneous navigations
// observed against host.
func (t *Transport) MaxConcurrent(host string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxActive[host]
}

// MaxConcurrentTotal returns the highest number of simultaneous navigations.
func (t *Transport) MaxConcurrentTotal() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxTotal
}

// Opened and Closed count session lifecycle calls.
func (t *Transport) Opened() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opened
}

// Closed returns how many sessions were closed.
func (t *Transport) Closed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) begin(rawURL string) (Response, string) {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.navigations[rawURL]
	t.navigations[rawURL] = n + 1
	t.order = append(t.order, rawURL)

	t.active[host]++
	if t.active[host] > t.maxActive[host] {
		t.maxActive[host] = t.active[host]
	}
	t.totalActive++
	if t.totalActive > t.maxTotal {
		t.maxTotal = t.totalActive
	}

	script, ok := t.scripts[rawURL]
	if !ok || len(script) == 0 {
		return Response{HTML: "<html><body>not found</body></html>", Status: 404}, host
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n], host
}

func (t *Transport) end(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[host]--
	t.totalActive--
}

type session struct {
	t    *Transport
	html string
}

func (s *session) Navigate(ctx context.Context, rawURL string) (int, error) {
	resp, host := s.t.begin(rawURL)
	defer s.t.end(host)

	if resp.Delay > 0 {
		if resp.IgnoreContext {
			time.Sleep(resp.Delay)
		} else {
			timer := time.NewTimer(resp.Delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
	}
	if resp.Err != nil {
		return 0, resp.Err
	}
	s.html = resp.HTML
	return resp.Status, nil
}

func (s *session) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.html, nil
}

func (s *session) Close() error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	s.t.closed++
	return nil
}
