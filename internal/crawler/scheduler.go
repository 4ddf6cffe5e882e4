package crawler

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/yieldpage/internal/browser"
	"github.com/nao1215/yieldpage/internal/filter"
	"github.com/nao1215/yieldpage/internal/frontier"
	"github.com/nao1215/yieldpage/internal/model"
	"github.com/nao1215/yieldpage/internal/parser"
)

// SessionPool lends browser sessions. *browser.Pool implements it.
type SessionPool interface {
	Acquire(ctx context.Context) (browser.Session, error)
	Release(s browser.Session, healthy bool)
}

// PageFetcher loads one page in a session. *browser.Fetcher implements it.
type PageFetcher interface {
	Fetch(ctx context.Context, s browser.Session, url string) (*browser.FetchResult, error)
}

// RecordSink receives page records. It must be safe for concurrent use.
type RecordSink interface {
	Emit(ctx context.Context, rec *model.PageRecord) error
}

// RobotsChecker answers robots.txt questions. *filter.Robots implements it.
type RobotsChecker interface {
	Allowed(ctx context.Context, u *url.URL) bool
}

// minWait keeps a worker from spinning when a wake-up time is already due.
const minWait = time.Millisecond

// Scheduler runs a crawl: a fixed set of workers pull targets from the
// frontier, fetch them through the session pool, emit records and feed newly
// discovered links back in. The run ends when the frontier is empty and no
// target is in flight, or when the context is cancelled.
//
// A target moves Pending -> Dispatched -> Fetching -> Parsing -> Completed,
// or Fetching -> Retrying -> Dispatched, or Fetching -> FailedTerminal.
type Scheduler struct {
	pool     SessionPool
	fetcher  PageFetcher
	filter   *filter.Filter
	sink     RecordSink
	robots   RobotsChecker
	clock    clock.Clock
	logger   *slog.Logger
	frontier *frontier.Frontier
	visited  *frontier.VisitedSet
	hosts    *hostTable

	runID             string
	workers           int
	maxDepth          int
	maxPages          int
	maxPerHost        int
	hostInterval      time.Duration
	retryLimit        int
	backoffBase       time.Duration
	backoffMultiplier float64
	backoffMax        time.Duration
	progressEvery     time.Duration
	progress          func(model.Summary)

	// mu guards the fields below and orders frontier admission; lock order
	// is mu, then the frontier, then the host table.
	mu       sync.Mutex
	started  bool
	finished bool
	inFlight int
	wake     chan struct{}

	// claimMu makes the page-limit check and the claim one step.
	claimMu sync.Mutex

	statsMu sync.Mutex
	stats   model.Summary

	// draining tracks sessions held past an overrun fetch.
	draining sync.WaitGroup
}

// New creates a Scheduler. Without options it crawls only the seeds
// (depth 0) with one worker.
func New(pool SessionPool, fetcher PageFetcher, f *filter.Filter, sink RecordSink, opts ...Option) *Scheduler {
	s := &Scheduler{
		pool:              pool,
		fetcher:           fetcher,
		filter:            f,
		sink:              sink,
		clock:             clock.WallClock,
		logger:            slog.Default(),
		frontier:          frontier.New(),
		visited:           frontier.NewVisitedSet(),
		runID:             uuid.NewString(),
		workers:           1,
		maxPerHost:        1,
		retryLimit:        1,
		backoffMultiplier: 1,
		wake:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hosts = newHostTable(s.maxPerHost, s.hostInterval)
	return s
}

// RunID returns the identifier stamped on every record of this run.
func (s *Scheduler) RunID() string {
	return s.runID
}

// Stats returns a snapshot of the run counters.
func (s *Scheduler) Stats() model.Summary {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	snapshot := s.stats
	snapshot.Seeds = append([]string(nil), s.stats.Seeds...)
	return snapshot
}

// HostState returns the politeness state of host.
func (s *Scheduler) HostState(host string) HostState {
	return s.hosts.snapshot(host)
}

// URLState returns the visited-set state of a normalized URL.
func (s *Scheduler) URLState(normalized string) frontier.State {
	state, _ := s.visited.State(normalized)
	return state
}

func (s *Scheduler) count(update func(*model.Summary)) {
	s.statsMu.Lock()
	update(&s.stats)
	s.statsMu.Unlock()
}

// Run crawls from seeds until the frontier is exhausted or ctx is done and
// returns the run summary. On cancellation, fetches already in flight run to
// completion (bounded by the fetch timeout) but their results are discarded.
func (s *Scheduler) Run(ctx context.Context, seeds []string) (*model.Summary, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	s.count(func(st *model.Summary) {
		st.RunID = s.runID
		st.Seeds = append([]string(nil), seeds...)
		st.StartedAt = s.clock.Now()
	})
	s.logger.Info("crawl started", "run_id", s.runID, "seeds", len(seeds), "workers", s.workers, "max_depth", s.maxDepth)

	for _, seed := range seeds {
		if !s.admit(ctx, seed, nil) {
			s.logger.Warn("seed not admitted", "seed", seed)
		}
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	stopWake := context.AfterFunc(ctx, s.wakeAll)
	defer stopWake()

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		s.reportProgress(runCtx)
	}()

	g := new(errgroup.Group)
	for i := range s.workers {
		g.Go(func() error {
			return s.work(ctx, i)
		})
	}
	err := g.Wait()
	s.draining.Wait()
	cancelRun()
	<-progressDone

	s.count(func(st *model.Summary) {
		st.FinishedAt = s.clock.Now()
		st.Interrupted = ctx.Err() != nil
	})
	summary := s.Stats()
	s.logger.Info("crawl finished",
		"run_id", s.runID,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"skipped", summary.Skipped(),
		"interrupted", summary.Interrupted,
		"elapsed", summary.Duration(),
	)
	return &summary, err
}

func (s *Scheduler) reportProgress(ctx context.Context) {
	if s.progress == nil || s.progressEvery <= 0 {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.progressEvery):
			s.progress(s.Stats())
		}
	}
}

func (s *Scheduler) work(ctx context.Context, id int) error {
	logger := s.logger.With("worker", id)
	for {
		target, ok := s.next(ctx)
		if !ok {
			return nil
		}
		s.process(ctx, target, logger)
	}
}

// next blocks until a target is eligible for dispatch, the run is over, or
// ctx is done. A returned target holds a host slot and counts as in flight.
func (s *Scheduler) next(ctx context.Context) (model.CrawlTarget, bool) {
	for {
		s.mu.Lock()
		if ctx.Err() != nil || s.finished {
			s.mu.Unlock()
			return model.CrawlTarget{}, false
		}

		now := s.clock.Now()
		target, wakeAt, ok := s.frontier.PopNext(now, func(host string) (bool, time.Time) {
			return s.hosts.tryAcquire(host, now)
		})
		if ok {
			s.inFlight++
			s.mu.Unlock()
			return target, true
		}
		if s.inFlight == 0 && s.frontier.Len() == 0 {
			s.finished = true
			s.broadcastLocked()
			s.mu.Unlock()
			return model.CrawlTarget{}, false
		}
		wake := s.wake
		s.mu.Unlock()

		var (
			timer   clock.Timer
			timerCh <-chan time.Time
		)
		if !wakeAt.IsZero() {
			timer = s.clock.NewTimer(max(wakeAt.Sub(now), minWait))
			timerCh = timer.Chan()
		}
		select {
		case <-wake:
		case <-timerCh:
		case <-ctx.Done():
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (s *Scheduler) process(ctx context.Context, target model.CrawlTarget, logger *slog.Logger) {
	host := target.Host()
	logger = logger.With("url", target.URL, "depth", target.Depth, "attempt", target.Attempt+1)
	logger.Debug("dispatched")

	session, err := s.pool.Acquire(ctx)
	if err != nil {
		defer s.finish(host)
		if ctx.Err() != nil {
			s.abandon(logger)
			return
		}
		s.fail(ctx, target, err, logger)
		return
	}

	// The fetch is not cut short by shutdown; its own timeout bounds it.
	result, err := s.fetcher.Fetch(context.WithoutCancel(ctx), session, target.URL)
	var overrun *browser.OverrunError
	if errors.As(err, &overrun) {
		// Deferred so the retry is queued before the target stops counting
		// as in flight.
		defer s.drain(session, host, overrun.Settled(), logger)
	} else {
		s.pool.Release(session, err == nil)
		defer s.finish(host)
	}

	if ctx.Err() != nil {
		s.abandon(logger)
		return
	}
	if err != nil {
		s.fail(ctx, target, err, logger)
		return
	}
	s.complete(ctx, target, result, logger)
}

func (s *Scheduler) complete(ctx context.Context, target model.CrawlTarget, result *browser.FetchResult, logger *slog.Logger) {
	parsed := parser.Parse(result.HTML, target.URL)

	s.emit(ctx, &model.PageRecord{
		RunID:         s.runID,
		URL:           target.URL,
		Depth:         target.Depth,
		Origin:        target.Origin,
		Outcome:       model.OutcomeCompleted,
		Attempts:      target.Attempt + 1,
		StatusCode:    result.StatusCode,
		Title:         parsed.Title,
		Description:   parsed.Description,
		Meta:          parsed.Meta,
		Text:          parsed.Text,
		Links:         parsed.Links,
		ContentHash:   model.HashContent(parsed.Text),
		FetchDuration: result.Duration,
		FetchedAt:     s.clock.Now(),
	}, logger)
	s.visited.MarkDone(target.URL)
	s.count(func(st *model.Summary) { st.Completed++ })
	logger.Info("page crawled", "status", result.StatusCode, "links", len(parsed.Links), "elapsed", result.Duration)

	for _, link := range parsed.Links {
		s.admit(ctx, link, &target)
	}
}

func (s *Scheduler) fail(ctx context.Context, target model.CrawlTarget, err error, logger *slog.Logger) {
	attempts := target.Attempt + 1
	if browser.IsTransient(err) && attempts < s.retryLimit {
		delay := s.backoff(attempts)
		s.frontier.Push(target.Retry(s.clock.Now().Add(delay)))
		s.count(func(st *model.Summary) { st.Retries++ })
		s.wakeAll()
		logger.Debug("fetch failed, retrying", "error", err, "delay", delay)
		return
	}

	s.visited.MarkFailed(target.URL, err.Error())
	s.emit(ctx, &model.PageRecord{
		RunID:     s.runID,
		URL:       target.URL,
		Depth:     target.Depth,
		Origin:    target.Origin,
		Outcome:   model.OutcomeFailed,
		Error:     err.Error(),
		Attempts:  attempts,
		FetchedAt: s.clock.Now(),
	}, logger)
	s.count(func(st *model.Summary) { st.Failed++ })
	logger.Warn("giving up on page", "error", err, "attempts", attempts)
}

func (s *Scheduler) abandon(logger *slog.Logger) {
	s.count(func(st *model.Summary) { st.Abandoned++ })
	logger.Debug("discarding in-flight work on shutdown")
}

// backoff returns the delay before attempt number attempts+1.
func (s *Scheduler) backoff(attempts int) time.Duration {
	d := float64(s.backoffBase) * math.Pow(s.backoffMultiplier, float64(attempts-1))
	if s.backoffMax > 0 && d > float64(s.backoffMax) {
		return s.backoffMax
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (s *Scheduler) emit(ctx context.Context, rec *model.PageRecord, logger *slog.Logger) {
	if err := s.sink.Emit(context.WithoutCancel(ctx), rec); err != nil {
		s.count(func(st *model.Summary) { st.EmitErrors++ })
		logger.Error("emitting record failed", "error", err)
	}
}

// drain keeps the session and the host slot of an overrun fetch until the
// browser call returns, so neither the host limit nor the pool capacity is
// exceeded by a navigation that is still running.
func (s *Scheduler) drain(session browser.Session, host string, settled <-chan struct{}, logger *slog.Logger) {
	s.draining.Go(func() {
		<-settled
		logger.Debug("overrun navigation returned, releasing session")
		s.pool.Release(session, false)
		s.finish(host)
	})
}

// finish returns the host slot of a processed target and wakes waiting workers.
func (s *Scheduler) finish(host string) {
	s.hosts.release(host)
	s.mu.Lock()
	s.inFlight--
	s.broadcastLocked()
	s.mu.Unlock()
}

// admit runs a candidate URL through normalization, filtering, the duplicate
// and depth checks, robots.txt and the page limit, and claims and queues it.
// parent is nil for seeds.
func (s *Scheduler) admit(ctx context.Context, raw string, parent *model.CrawlTarget) bool {
	normalized, err := filter.Normalize(raw)
	if err != nil {
		s.count(func(st *model.Summary) { st.Filtered++ })
		return false
	}
	u, err := url.Parse(normalized)
	if err != nil {
		s.count(func(st *model.Summary) { st.Filtered++ })
		return false
	}

	target := model.NewSeedTarget(normalized)
	originHost := u.Host
	if parent != nil {
		target = parent.Child(normalized)
		originHost = parent.Host()
	}

	if reason := s.filter.Check(u, originHost); reason != filter.Accepted {
		s.count(func(st *model.Summary) { st.Filtered++ })
		s.logger.Debug("link rejected", "url", normalized, "reason", reason.String())
		return false
	}
	if s.visited.Seen(normalized) {
		s.count(func(st *model.Summary) { st.Duplicates++ })
		return false
	}
	if target.Depth > s.maxDepth {
		s.count(func(st *model.Summary) { st.SkippedDepth++ })
		return false
	}
	if s.robots != nil && !s.robots.Allowed(ctx, u) {
		s.count(func(st *model.Summary) { st.Filtered++ })
		s.logger.Debug("link disallowed by robots.txt", "url", normalized)
		return false
	}

	s.claimMu.Lock()
	if s.maxPages > 0 && s.visited.Len() >= s.maxPages {
		s.claimMu.Unlock()
		s.count(func(st *model.Summary) { st.Filtered++ })
		return false
	}
	claimed := s.visited.TryClaim(normalized)
	s.claimMu.Unlock()
	if !claimed {
		s.count(func(st *model.Summary) { st.Duplicates++ })
		return false
	}

	s.count(func(st *model.Summary) { st.Claimed++ })
	s.frontier.Push(target)
	s.wakeAll()
	return true
}

func (s *Scheduler) wakeAll() {
	s.mu.Lock()
	s.broadcastLocked()
	s.mu.Unlock()
}

func (s *Scheduler) broadcastLocked() {
	close(s.wake)
	s.wake = make(chan struct{})
}
