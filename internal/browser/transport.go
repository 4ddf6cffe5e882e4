package browser

import "context"

// Transport opens browser sessions. Implementations must be safe for
// concurrent use.
type Transport interface {
	// Open creates a new session, such as a browser tab.
	Open(ctx context.Context) (Session, error)
}

// Session is one browser context capable of loading a page. A session is
// used by one goroutine at a time.
type Session interface {
	// Navigate loads url and waits for the page to load. It returns the HTTP
	// status of the main document, or 0 when the browser does not report one.
	Navigate(ctx context.Context, url string) (int, error)

	// HTML returns the serialized DOM of the loaded page.
	HTML(ctx context.Context) (string, error)

	// Close releases the session.
	Close() error
}
