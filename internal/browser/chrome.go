package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/hashicorp/go-multierror"
)

// ChromeOptions configures a ChromeTransport.
type ChromeOptions struct {
	// RemoteURLs are DevTools endpoints of already running browsers, tried in
	// order until one accepts, e.g. ws://127.0.0.1:9222/devtools/browser/<id>
	// or http://127.0.0.1:9222. When empty a local Chrome is launched.
	RemoteURLs []string

	// Headless runs the local browser without a window.
	Headless bool

	// ProxyServer is passed to the local browser as --proxy-server,
	// e.g. socks5://127.0.0.1:9050.
	ProxyServer string

	// UserAgent overrides the local browser's user agent.
	UserAgent string

	// RenderWait is slept after each navigation so client-side rendering can
	// settle before the DOM is read.
	RenderWait time.Duration
}

// ChromeTransport drives Chrome through the DevTools protocol. All sessions
// are tabs of one shared browser.
type ChromeTransport struct {
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	renderWait    time.Duration
	logger        *slog.Logger
}

// NewChromeTransport connects to or launches a browser. ctx bounds the
// lifetime of the browser itself; call Close when the crawl ends.
func NewChromeTransport(ctx context.Context, opts ChromeOptions, logger *slog.Logger) (*ChromeTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if len(opts.RemoteURLs) == 0 {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-first-run", true),
			chromedp.Flag("disable-extensions", true),
		)
		if opts.ProxyServer != "" {
			execOpts = append(execOpts, chromedp.ProxyServer(opts.ProxyServer))
		}
		if opts.UserAgent != "" {
			execOpts = append(execOpts, chromedp.UserAgent(opts.UserAgent))
		}
		allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, execOpts...)
		t, err := startBrowser(allocCtx, cancelAlloc, opts, logger)
		if err != nil {
			return nil, transportError("start browser", err)
		}
		logger.Debug("browser ready", "remote", false, "headless", opts.Headless)
		return t, nil
	}

	var errs *multierror.Error
	for i, endpoint := range opts.RemoteURLs {
		if i > 0 {
			logger.Info("trying fallback browser endpoint", "url", endpoint)
		}
		allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, endpoint)
		t, err := startBrowser(allocCtx, cancelAlloc, opts, logger)
		if err == nil {
			logger.Debug("browser ready", "remote", true, "url", endpoint)
			return t, nil
		}
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", endpoint, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, transportError("connect browser", errs.ErrorOrNil())
}

// startBrowser runs the first action on allocCtx, which launches or attaches
// to the browser. On failure both contexts are cancelled.
func startBrowser(allocCtx context.Context, cancelAlloc context.CancelFunc, opts ChromeOptions, logger *slog.Logger) (*ChromeTransport, error) {
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug("devtools error", "detail", fmt.Sprintf(format, args...))
		}),
	)
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, err
	}
	return &ChromeTransport{
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		renderWait:    opts.RenderWait,
		logger:        logger,
	}, nil
}

// Open creates a new tab.
func (t *ChromeTransport) Open(ctx context.Context) (Session, error) {
	tabCtx, cancel := chromedp.NewContext(t.browserCtx)
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, transportError("open tab", err)
	}
	return &chromeSession{ctx: tabCtx, cancel: cancel, renderWait: t.renderWait}, nil
}

// Close shuts the browser down, or disconnects from a remote one.
func (t *ChromeTransport) Close() error {
	err := chromedp.Cancel(t.browserCtx)
	t.cancelBrowser()
	t.cancelAlloc()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type chromeSession struct {
	ctx        context.Context
	cancel     context.CancelFunc
	renderWait time.Duration
}

// run executes actions on the tab, aborting them when ctx is done. Cancelling
// the derived context aborts the actions without closing the tab.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) (int, error) {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		return 0, err
	}
	status := 0
	if resp != nil {
		status = int(resp.Status)
	}

	if s.renderWait > 0 {
		if err := chromedp.Run(runCtx, chromedp.Sleep(s.renderWait)); err != nil {
			return status, err
		}
	}
	return status, nil
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (s *chromeSession) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
