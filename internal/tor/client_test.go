package tor

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func TestValidateProxyAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		address string
		valid   bool
	}{
		{"ipv4 with port", "127.0.0.1:9050", true},
		{"localhost with port", "localhost:9150", true},
		{"ipv6 with port", "[::1]:9050", true},
		{"empty", "", false},
		{"no port", "127.0.0.1", false},
		{"empty host", ":9050", false},
		{"empty port", "127.0.0.1:", false},
		{"port zero", "127.0.0.1:0", false},
		{"port too large", "127.0.0.1:65536", false},
		{"non-numeric port", "127.0.0.1:tor", false},
		{"url instead of address", "socks5://127.0.0.1:9050", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateProxyAddress(tt.address)
			if tt.valid && err != nil {
				t.Errorf("expected %q to be valid, got %v", tt.address, err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidProxyAddress) {
				t.Errorf("expected ErrInvalidProxyAddress for %q, got %v", tt.address, err)
			}
		})
	}
}

func TestProxyServer(t *testing.T) {
	t.Parallel()

	if got := ProxyServer("127.0.0.1:9050"); got != "socks5://127.0.0.1:9050" {
		t.Errorf("ProxyServer = %q", got)
	}
}

// startSOCKS5 runs a minimal no-auth SOCKS5 proxy supporting CONNECT and
// returns its address and a counter of proxied connections.
func startSOCKS5(t *testing.T) (string, *atomic.Int32) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	var proxied atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSOCKS5(conn, &proxied)
		}
	}()
	return ln.Addr().String(), &proxied
}

func serveSOCKS5(conn net.Conn, proxied *atomic.Int32) {
	defer conn.Close()

	greeting := make([]byte, 2)
	if _, err := io.ReadFull(conn, greeting); err != nil || greeting[0] != 0x05 {
		return
	}
	if _, err := io.ReadFull(conn, make([]byte, greeting[1])); err != nil {
		return
	}
	if _, err := conn.Write([]byte{0x05, 0x00}); err != nil {
		return
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil || header[1] != 0x01 {
		return
	}
	var host string
	switch header[3] {
	case 0x01:
		ip := make([]byte, 4)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return
		}
		host = net.IP(ip).String()
	case 0x03:
		n := make([]byte, 1)
		if _, err := io.ReadFull(conn, n); err != nil {
			return
		}
		name := make([]byte, n[0])
		if _, err := io.ReadFull(conn, name); err != nil {
			return
		}
		host = string(name)
	default:
		return
	}
	portBytes := make([]byte, 2)
	if _, err := io.ReadFull(conn, portBytes); err != nil {
		return
	}
	port := binary.BigEndian.Uint16(portBytes)

	target, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		_, _ = conn.Write([]byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		return
	}
	defer target.Close()
	if _, err := conn.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0}); err != nil {
		return
	}

	proxied.Add(1)

	go func() { _, _ = io.Copy(target, conn) }()
	_, _ = io.Copy(conn, target)
}

func TestHTTPClient(t *testing.T) {
	t.Parallel()

	t.Run("invalid address", func(t *testing.T) {
		t.Parallel()
		if _, err := HTTPClient("nope", time.Second); !errors.Is(err, ErrInvalidProxyAddress) {
			t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
		}
	})

	t.Run("requests go through the proxy", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "User-agent: *\nDisallow: /private/\n")
		}))
		t.Cleanup(srv.Close)

		proxyAddr, proxied := startSOCKS5(t)
		client, err := HTTPClient(proxyAddr, 5*time.Second)
		if err != nil {
			t.Fatalf("HTTPClient: %v", err)
		}
		if client.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v", client.Timeout)
		}

		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/robots.txt", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("request through proxy failed: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode != http.StatusOK || len(body) == 0 {
			t.Errorf("unexpected response %d %q", resp.StatusCode, body)
		}
		client.CloseIdleConnections()
		if proxied.Load() == 0 {
			t.Error("request did not use the SOCKS5 proxy")
		}
	})

	t.Run("unreachable proxy fails", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		addr := ln.Addr().String()
		_ = ln.Close()

		client, err := HTTPClient(addr, time.Second)
		if err != nil {
			t.Fatal(err)
		}
		req, _ := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://example.invalid/", nil)
		if _, err := client.Do(req); err == nil {
			t.Error("expected error through a closed proxy port")
		}
	})
}
