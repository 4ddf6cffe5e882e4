package tor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// maxRedirects bounds redirect chains followed by HTTPClient.
const maxRedirects = 10

// ValidateProxyAddress checks that address is "host:port" with a port in
// 1-65535.
func ValidateProxyAddress(address string) error {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidProxyAddress, address)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%w: %q", ErrInvalidProxyAddress, address)
	}
	return nil
}

// ProxyServer returns the --proxy-server value that routes a browser through
// the SOCKS5 proxy at address.
func ProxyServer(address string) string {
	return "socks5://" + address
}

// HTTPClient returns an HTTP client that routes every request through the
// SOCKS5 proxy at socksAddr. It is used for side requests such as robots.txt
// that must take the same network path as the browser.
func HTTPClient(socksAddr string, timeout time.Duration) (*http.Client, error) {
	if err := ValidateProxyAddress(socksAddr); err != nil {
		return nil, err
	}

	// Tor's SOCKS port does not require authentication.
	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		},
		// Every connection is a Tor circuit, so keep the idle pool small.
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}
