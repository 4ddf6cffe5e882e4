// Package tor routes a crawl through the Tor network.
//
// EmbeddedTor starts a private Tor daemon via tornago. The browser is then
// launched with ProxyServer as its --proxy-server, and side requests such as
// robots.txt use HTTPClient so they leave through the same SOCKS5 proxy.
package tor
