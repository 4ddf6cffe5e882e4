package crawler

import (
	"log/slog"
	"time"

	"github.com/juju/clock"

	"github.com/nao1215/yieldpage/internal/model"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMaxDepth sets the maximum link depth from a seed.
func WithMaxDepth(depth int) Option {
	return func(s *Scheduler) {
		if depth >= 0 {
			s.maxDepth = depth
		}
	}
}

// WithMaxPages stops claiming new URLs after n claims. Zero means unlimited.
func WithMaxPages(n int) Option {
	return func(s *Scheduler) {
		if n >= 0 {
			s.maxPages = n
		}
	}
}

// WithHostLimits sets the per-host concurrency cap and the minimum interval
// between two dispatches to the same host.
func WithHostLimits(maxPerHost int, interval time.Duration) Option {
	return func(s *Scheduler) {
		if maxPerHost > 0 {
			s.maxPerHost = maxPerHost
		}
		if interval >= 0 {
			s.hostInterval = interval
		}
	}
}

// WithRetry sets the maximum number of attempts per URL and the exponential
// backoff between them: base * multiplier^(n-1), capped at maxDelay when
// maxDelay is positive.
func WithRetry(limit int, base time.Duration, multiplier float64, maxDelay time.Duration) Option {
	return func(s *Scheduler) {
		if limit > 0 {
			s.retryLimit = limit
		}
		if base >= 0 {
			s.backoffBase = base
		}
		if multiplier >= 1 {
			s.backoffMultiplier = multiplier
		}
		if maxDelay >= 0 {
			s.backoffMax = maxDelay
		}
	}
}

// WithRobots enables robots.txt checks for every admitted URL.
func WithRobots(robots RobotsChecker) Option {
	return func(s *Scheduler) {
		s.robots = robots
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(s *Scheduler) {
		if id != "" {
			s.runID = id
		}
	}
}

// WithProgress calls fn with a stats snapshot every interval while the run
// is active.
func WithProgress(interval time.Duration, fn func(model.Summary)) Option {
	return func(s *Scheduler) {
		s.progressEvery = interval
		s.progress = fn
	}
}
