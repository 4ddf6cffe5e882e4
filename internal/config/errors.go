package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers compare them with errors.Is.
var (
	// ErrNoSeed is returned when no seed URL is specified.
	ErrNoSeed = errors.New("no seed specified: provide at least one start URL")

	// ErrInvalidSeed is returned when a seed is not an absolute http(s) URL.
	ErrInvalidSeed = errors.New("invalid seed: must be an absolute http or https URL")

	// ErrInvalidPattern is returned when an include or exclude pattern is not a
	// valid regular expression.
	ErrInvalidPattern = errors.New("invalid pattern: not a valid regular expression")

	// ErrInvalidDepth is returned when the maximum depth is negative.
	ErrInvalidDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidMaxPages is returned when the page limit is negative.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidSessions is returned when the session pool capacity is not positive.
	ErrInvalidSessions = errors.New("invalid max sessions: must be positive")

	// ErrInvalidWorkers is returned when the worker count is negative.
	ErrInvalidWorkers = errors.New("invalid workers: must be non-negative")

	// ErrInvalidHostConcurrency is returned when the per-host limit is not positive.
	ErrInvalidHostConcurrency = errors.New("invalid max per host: must be positive")

	// ErrInvalidInterval is returned when the host interval or render wait is negative.
	ErrInvalidInterval = errors.New("invalid interval: must be non-negative")

	// ErrInvalidTimeout is returned when the fetch timeout is not positive or
	// the run timeout is negative.
	ErrInvalidTimeout = errors.New("invalid timeout: fetch timeout must be positive")

	// ErrInvalidRetryLimit is returned when the retry limit is not positive.
	ErrInvalidRetryLimit = errors.New("invalid retry limit: must allow at least one attempt")

	// ErrInvalidBackoff is returned when backoff durations are negative or the
	// multiplier would shrink the delay.
	ErrInvalidBackoff = errors.New("invalid backoff: durations must be non-negative and multiplier at least 1")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingBrowserModes is returned when --tor is combined with a
	// remote browser URL.
	ErrConflictingBrowserModes = errors.New("conflicting browser modes: --tor requires a locally launched browser")
)
