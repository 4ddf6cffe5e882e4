package filter

import "errors"

var (
	// ErrUnsupportedScheme is returned when a URL is not http or https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrMissingHost is returned when a URL has no host component.
	ErrMissingHost = errors.New("URL has no host")

	// ErrInvalidPattern is returned when an include or exclude pattern does not
	// compile. It is fatal at startup.
	ErrInvalidPattern = errors.New("invalid URL pattern")
)
