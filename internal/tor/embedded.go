package tor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nao1215/tornago"
)

// EmbeddedTor manages a Tor daemon started through tornago, so --tor works
// without a separately installed Tor.
//
// Bootstrapping takes one to three minutes: the daemon downloads directory
// information and builds its first circuits before the SOCKS port is usable.
type EmbeddedTor struct {
	mu          sync.Mutex
	process     *tornago.TorProcess
	socksAddr   string
	controlAddr string

	startupTimeout time.Duration
}

// EmbeddedTorOption configures an EmbeddedTor instance.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.startupTimeout = timeout
	}
}

// NewEmbeddedTor creates a new embedded Tor manager. Call Start to launch the
// daemon.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{
		startupTimeout: 3 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type startResult struct {
	process *tornago.TorProcess
	err     error
}

// Start launches the daemon and waits until it has bootstrapped, the startup
// timeout passes, or ctx is done. A daemon that finishes starting after ctx
// was cancelled is stopped again.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	// ":0" lets the OS pick free ports.
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	done := make(chan startResult, 1)
	go func() {
		process, err := tornago.StartTorDaemon(launchCfg)
		done <- startResult{process: process, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				_ = res.process.Stop()
			}
		}()
		return ctx.Err()
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("failed to start embedded Tor daemon: %w", res.err)
		}
		e.mu.Lock()
		e.process = res.process
		e.socksAddr = res.process.SocksAddr()
		e.controlAddr = res.process.ControlAddr()
		e.mu.Unlock()
		return nil
	}
}

// Stop shuts the daemon down. It is safe to call on a stopped or never
// started instance.
func (e *EmbeddedTor) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	e.socksAddr = ""
	e.controlAddr = ""
	return err
}

// IsRunning reports whether the daemon is up.
func (e *EmbeddedTor) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.process != nil
}

// SocksAddr returns the "host:port" SOCKS5 address of the running daemon, or
// an empty string.
func (e *EmbeddedTor) SocksAddr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.socksAddr
}

// ControlAddr returns the control port address of the running daemon, or an
// empty string.
func (e *EmbeddedTor) ControlAddr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controlAddr
}

// ProxyServer returns the browser --proxy-server value for the daemon.
func (e *EmbeddedTor) ProxyServer() (string, error) {
	addr := e.SocksAddr()
	if addr == "" {
		return "", ErrNotRunning
	}
	return ProxyServer(addr), nil
}

// HTTPClient returns an HTTP client routed through the daemon.
func (e *EmbeddedTor) HTTPClient(timeout time.Duration) (*http.Client, error) {
	addr := e.SocksAddr()
	if addr == "" {
		return nil, ErrNotRunning
	}
	return HTTPClient(addr, timeout)
}
