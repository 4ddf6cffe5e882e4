package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/yieldpage/internal/browser"
	"github.com/nao1215/yieldpage/internal/config"
	"github.com/nao1215/yieldpage/internal/crawler"
	"github.com/nao1215/yieldpage/internal/database"
	"github.com/nao1215/yieldpage/internal/filter"
	ylog "github.com/nao1215/yieldpage/internal/log"
	"github.com/nao1215/yieldpage/internal/model"
	"github.com/nao1215/yieldpage/internal/report"
	"github.com/nao1215/yieldpage/internal/sink"
	"github.com/nao1215/yieldpage/internal/store"
	"github.com/nao1215/yieldpage/internal/tor"
)

const (
	// progressInterval is how often run status is logged and published.
	progressInterval = 2 * time.Second

	// statusTTL keeps run status in Redis for a day after the last update.
	statusTTL = 24 * time.Hour

	// finishTimeout bounds the bookkeeping writes after the crawl context is
	// gone.
	finishTimeout = 10 * time.Second
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url...]",
		Short: "Crawl websites starting from one or more seed URLs",
		Long: `Crawl fetches the seed URLs in a browser and follows their links breadth first.

Links stay on the host of the page they were found on unless --allow-external
is given. Each host is limited to --max-per-host concurrent fetches spaced at
least --host-interval apart. Failed fetches are retried with exponential
backoff up to --retries attempts.

A summary is printed when the crawl ends, including after Ctrl-C or when
--run-timeout expires.

Examples:
  # Crawl a documentation site, writing records to a file
  yieldpage crawl --output pages.jsonl https://docs.example.com/

  # Stay under /guide/ and stop after 200 pages
  yieldpage crawl --path-prefix /guide/ -p 200 https://docs.example.com/guide/

  # Store the run for 'yieldpage history' and print a Markdown summary
  yieldpage crawl --db --markdown --report summary.md https://docs.example.com/

  # Attach to an already running browser
  yieldpage crawl --browser-url ws://127.0.0.1:9222/devtools/browser/<id> https://example.com/

  # Fall back to a local debugging port when the remote browser is down
  yieldpage crawl --browser-url http://10.0.0.5:9222,http://127.0.0.1:9222 https://example.com/

  # Crawl an onion service through an embedded Tor daemon
  yieldpage crawl --tor http://exampleonion.onion/`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	f := cmd.Flags()

	// Scope
	f.StringArray("include", nil, "Only follow URLs matching one of these regular expressions")
	f.StringArray("exclude", config.DefaultExcludePatterns, "Never follow URLs matching one of these regular expressions")
	f.Bool("allow-external", false, "Follow links to other hosts")
	f.String("path-prefix", "", "Only follow same-host URLs whose path starts with this prefix")

	// Limits
	f.IntP("depth", "d", config.DefaultMaxDepth, "Maximum link depth from a seed")
	f.IntP("max-pages", "p", 0, "Stop claiming new URLs after this many (0 is unlimited)")
	f.IntP("sessions", "s", config.DefaultMaxSessions, "Number of browser sessions")
	f.IntP("workers", "w", 0, "Number of crawl workers (default: sessions)")
	f.Int("max-per-host", config.DefaultMaxPerHost, "Concurrent fetches per host")
	f.Duration("host-interval", config.DefaultHostInterval, "Minimum time between requests to one host")
	f.DurationP("fetch-timeout", "t", config.DefaultFetchTimeout, "Timeout for one page fetch")
	f.Int("retries", config.DefaultRetryLimit, "Maximum fetch attempts per URL")
	f.Duration("backoff-base", config.DefaultBackoffBase, "Delay before the second attempt")
	f.Float64("backoff-multiplier", config.DefaultBackoffMultiplier, "Growth factor of the retry delay")
	f.Duration("backoff-max", config.DefaultBackoffMax, "Maximum retry delay")
	f.Duration("run-timeout", config.DefaultRunTimeout, "Timeout for the whole crawl (0 disables)")
	f.Bool("robots", false, "Respect robots.txt")

	// Browser
	f.String("browser-url", "", "DevTools URL of a running browser; a comma-separated list is tried in order (env "+config.EnvBrowserURL+")")
	f.Bool("headless", true, "Run the local browser without a window")
	f.String("user-agent", config.DefaultUserAgent, "User agent of the local browser")
	f.Duration("render-wait", 0, "Extra wait after navigation for client-side rendering")
	f.Bool("tor", false, "Route the local browser through an embedded Tor daemon")
	f.Duration("tor-timeout", config.DefaultTorStartupTimeout, "Timeout for embedded Tor startup")

	// Record outputs
	f.StringP("output", "o", "", `Write page records as JSON lines to this file ("-" for stdout)`)
	f.Bool("db", false, "Store the run in the SQLite database")
	f.String("db-dir", config.XDGDataDir(), "Directory of the SQLite database")
	f.StringSlice("kafka-brokers", nil, "Publish page records to these Kafka brokers")
	f.String("kafka-topic", config.DefaultKafkaTopic, "Kafka topic for page records")
	f.String("neo4j-uri", "", "Write the link graph to this Neo4j server")
	f.String("neo4j-user", config.DefaultNeo4jUser, "Neo4j user name")
	f.String("neo4j-password", "", "Neo4j password")
	f.String("redis-addr", "", "Publish run status to this Redis server")

	// Summary report
	f.BoolP("json", "j", false, "Print the summary as JSON (mutually exclusive with --markdown)")
	f.BoolP("markdown", "m", false, "Print the summary as Markdown (mutually exclusive with --json)")
	f.StringP("report", "r", "", "Write the summary to this file instead of stdout")

	f.StringP("config", "c", "", "Configuration file path (default: .yieldpage in current or home directory)")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := ylog.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := crawlEnv{
		stdout:       cmd.OutOrStdout(),
		newTransport: newChromeTransport,
	}
	return runCrawl(ctx, cfg, env, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig layers defaults, the configuration file and the flags that
// were set explicitly, in that order.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg.ConfigFilePath = configPath

	// An explicitly named file must exist; the implicit search may find nothing.
	if found := config.FindConfigFile(configPath); found != "" {
		file, err := config.LoadConfigFile(found)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", found, err)
		}
		file.Apply(cfg)
	} else if configPath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configPath)
	}
	cfg.ApplyEnv(os.LookupEnv)

	r := flagReader{cmd: cmd}
	r.array("include", &cfg.IncludePatterns)
	r.array("exclude", &cfg.ExcludePatterns)
	r.boolean("allow-external", &cfg.AllowExternal)
	r.str("path-prefix", &cfg.PathPrefix)

	r.integer("depth", &cfg.MaxDepth)
	r.integer("max-pages", &cfg.MaxPages)
	r.integer("sessions", &cfg.MaxSessions)
	r.integer("workers", &cfg.Workers)
	r.integer("max-per-host", &cfg.MaxPerHost)
	r.duration("host-interval", &cfg.HostInterval)
	r.duration("fetch-timeout", &cfg.FetchTimeout)
	r.integer("retries", &cfg.RetryLimit)
	r.duration("backoff-base", &cfg.BackoffBase)
	r.float("backoff-multiplier", &cfg.BackoffMultiplier)
	r.duration("backoff-max", &cfg.BackoffMax)
	r.duration("run-timeout", &cfg.RunTimeout)
	r.boolean("robots", &cfg.RespectRobots)

	r.str("browser-url", &cfg.BrowserURL)
	r.boolean("headless", &cfg.Headless)
	r.str("user-agent", &cfg.UserAgent)
	r.duration("render-wait", &cfg.RenderWait)
	r.boolean("tor", &cfg.UseTor)
	r.duration("tor-timeout", &cfg.TorStartupTimeout)

	r.str("output", &cfg.OutputFile)
	r.boolean("db", &cfg.SaveToDB)
	r.str("db-dir", &cfg.DBDir)
	r.strings("kafka-brokers", &cfg.KafkaBrokers)
	r.str("kafka-topic", &cfg.KafkaTopic)
	r.str("neo4j-uri", &cfg.Neo4jURI)
	r.str("neo4j-user", &cfg.Neo4jUser)
	r.str("neo4j-password", &cfg.Neo4jPassword)
	r.str("redis-addr", &cfg.RedisAddr)

	r.boolean("json", &cfg.JSONReport)
	r.boolean("markdown", &cfg.MarkdownReport)
	r.str("report", &cfg.ReportFile)
	if r.err != nil {
		return nil, r.err
	}

	if len(args) > 0 {
		cfg.Seeds = args
	}
	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

// flagReader copies flags the user set explicitly into config fields and
// keeps the first lookup error.
type flagReader struct {
	cmd *cobra.Command
	err error
}

func (r *flagReader) changed(name string) bool {
	return r.err == nil && r.cmd.Flags().Changed(name)
}

func (r *flagReader) str(name string, dst *string) {
	if r.changed(name) {
		*dst, r.err = r.cmd.Flags().GetString(name)
	}
}

func (r *flagReader) strings(name string, dst *[]string) {
	if r.changed(name) {
		*dst, r.err = r.cmd.Flags().GetStringSlice(name)
	}
}

// array reads a repeatable flag whose values may contain commas.
func (r *flagReader) array(name string, dst *[]string) {
	if r.changed(name) {
		*dst, r.err = r.cmd.Flags().GetStringArray(name)
	}
}

func (r *flagReader) boolean(name string, dst *bool) {
	if r.changed(name) {
		*dst, r.err = r.cmd.Flags().GetBool(name)
	}
}

func (r *flagReader) integer(name string, dst *int) {
	if r.changed(name) {
		*dst, r.err = r.cmd.Flags().GetInt(name)
	}
}

func (r *flagReader) float(name string, dst *float64) {
	if r.changed(name) {
		*dst, r.err = r.cmd.Flags().GetFloat64(name)
	}
}

func (r *flagReader) duration(name string, dst *time.Duration) {
	if r.changed(name) {
		*dst, r.err = r.cmd.Flags().GetDuration(name)
	}
}

// transportFactory starts the browser backend. The returned function
// releases it.
type transportFactory func(ctx context.Context, opts browser.ChromeOptions, logger *slog.Logger) (browser.Transport, func() error, error)

// crawlEnv holds what runCrawl needs from its surroundings.
type crawlEnv struct {
	stdout       io.Writer
	newTransport transportFactory
}

func newChromeTransport(ctx context.Context, opts browser.ChromeOptions, logger *slog.Logger) (browser.Transport, func() error, error) {
	t, err := browser.NewChromeTransport(ctx, opts, logger)
	if err != nil {
		return nil, nil, err
	}
	return t, t.Close, nil
}

// runCrawl executes one crawl run. Only setup failures are returned as
// errors; an interrupted crawl still reports its summary and returns nil.
func runCrawl(ctx context.Context, cfg *config.Config, env crawlEnv, logger *slog.Logger) error {
	chromeOpts := browser.ChromeOptions{
		RemoteURLs: cfg.BrowserURLs(),
		Headless:   cfg.Headless,
		UserAgent:  cfg.UserAgent,
		RenderWait: cfg.RenderWait,
	}
	robotsClient := &http.Client{Timeout: cfg.FetchTimeout}

	if cfg.UseTor {
		embeddedTor, err := startEmbeddedTor(ctx, cfg, env.stdout, logger)
		if err != nil {
			return err
		}
		defer func() {
			logger.Info("stopping embedded Tor daemon")
			if err := embeddedTor.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}()
		if chromeOpts.ProxyServer, err = embeddedTor.ProxyServer(); err != nil {
			return err
		}
		if robotsClient, err = embeddedTor.HTTPClient(cfg.FetchTimeout); err != nil {
			return err
		}
	}

	pageFilter, err := filter.New(filter.Options{
		AllowExternal: cfg.AllowExternal,
		PathPrefix:    cfg.PathPrefix,
		Include:       cfg.IncludePatterns,
		Exclude:       cfg.ExcludePatterns,
	})
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	transport, closeTransport, err := env.newTransport(ctx, chromeOpts, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err := closeTransport(); err != nil {
			logger.Warn("failed to close browser", "error", err)
		}
	}()

	pool := browser.NewPool(transport, cfg.MaxSessions, browser.WithPoolLogger(logger))
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Warn("failed to close browser sessions", "error", err)
		}
	}()

	outputs, err := openOutputs(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := outputs.records.Close(); err != nil {
			logger.Error("failed to close record outputs", "error", err)
		}
		if outputs.status != nil {
			_ = outputs.status.Close()
		}
	}()

	opts := []crawler.Option{
		crawler.WithWorkers(cfg.WorkerCount()),
		crawler.WithMaxDepth(cfg.MaxDepth),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithHostLimits(cfg.MaxPerHost, cfg.HostInterval),
		crawler.WithRetry(cfg.RetryLimit, cfg.BackoffBase, cfg.BackoffMultiplier, cfg.BackoffMax),
		crawler.WithLogger(logger),
		crawler.WithProgress(progressInterval, outputs.progress(ctx, logger)),
	}
	if cfg.RespectRobots {
		opts = append(opts, crawler.WithRobots(filter.NewRobots(robotsClient, filter.WithRobotsLogger(logger))))
	}
	sched := crawler.New(pool, browser.NewFetcher(cfg.FetchTimeout), pageFilter, outputs.records, opts...)

	if outputs.db != nil {
		if err := outputs.db.StartRun(ctx, sched.RunID(), cfg.Seeds, time.Now()); err != nil {
			return fmt.Errorf("failed to record run start: %w", err)
		}
	}
	outputs.publish(ctx, logger, store.StatusFromSummary(model.Summary{
		RunID:     sched.RunID(),
		Seeds:     cfg.Seeds,
		StartedAt: time.Now(),
	}, store.StateRunning, time.Now()))

	runCtx := ctx
	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	summary, runErr := sched.Run(runCtx, cfg.Seeds)
	if summary == nil {
		return runErr
	}
	if runErr != nil {
		logger.Error("crawl ended with error", "error", runErr)
	}
	if summary.Interrupted {
		logger.Warn("crawl interrupted; pending pages were not fetched", "pending", summary.Pending())
	}

	// The crawl context may already be cancelled; bookkeeping still has to land.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if outputs.db != nil {
		if err := outputs.db.FinishRun(finishCtx, summary); err != nil {
			logger.Error("failed to record run finish", "error", err)
		}
	}
	final := store.StatusFromSummary(*summary, store.FinalState(summary), time.Now())
	if runErr != nil {
		final.State = store.StateFailed
		final.Error = runErr.Error()
	}
	outputs.publish(finishCtx, logger, final)

	return writeReport(cfg, env.stdout, outputs.collector.Report(summary))
}

// crawlOutputs groups every destination of a run's results.
type crawlOutputs struct {
	records   *sink.Multi
	collector *report.Collector
	db        *database.CrawlDB
	status    *store.RedisStatusStore
}

// openOutputs opens the configured record sinks. The report collector is
// always present. On error, sinks opened so far are closed.
func openOutputs(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*crawlOutputs, error) {
	out := &crawlOutputs{collector: report.NewCollector()}
	sinks := []sink.Sink{out.collector}
	fail := func(err error) (*crawlOutputs, error) {
		_ = sink.NewMulti(sinks...).Close()
		return nil, err
	}

	if cfg.OutputFile != "" {
		jl, err := sink.OpenJSONLines(cfg.OutputFile)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, jl)
	}

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fail(fmt.Errorf("failed to open database: %w", err))
		}
		logger.Info("database opened", "path", db.Path())
		out.db = db
		sinks = append(sinks, db)
	}

	if len(cfg.KafkaBrokers) > 0 {
		logger.Info("publishing page records to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		sinks = append(sinks, sink.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic))
	}

	if cfg.Neo4jURI != "" {
		graph, err := sink.NewGraphSink(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, logger)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, graph)
	}

	if cfg.RedisAddr != "" {
		out.status = store.NewRedisStatusStore(cfg.RedisAddr, store.DefaultPrefix, statusTTL)
	}

	out.records = sink.NewMulti(sinks...)
	return out, nil
}

// progress returns the scheduler progress callback.
func (o *crawlOutputs) progress(ctx context.Context, logger *slog.Logger) func(model.Summary) {
	return func(s model.Summary) {
		logger.Debug("crawl progress",
			"claimed", s.Claimed,
			"completed", s.Completed,
			"failed", s.Failed,
			"pending", s.Pending(),
		)
		o.publish(ctx, logger, store.StatusFromSummary(s, store.StateRunning, time.Now()))
	}
}

// publish stores status when a status store is configured. Failures are
// logged and never stop the crawl.
func (o *crawlOutputs) publish(ctx context.Context, logger *slog.Logger, status store.RunStatus) {
	if o.status == nil {
		return
	}
	if err := o.status.SetStatus(ctx, status); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("failed to publish run status", "run_id", status.RunID, "error", err)
	}
}

// writeReport writes the summary in the requested format to the report file
// or out.
func writeReport(cfg *config.Config, out io.Writer, rep *report.Report) error {
	if cfg.ReportFile != "" {
		if dir := filepath.Dir(cfg.ReportFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		out = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
	if _, err := w.Write(rep); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// startEmbeddedTor starts a Tor daemon for the local browser.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) (*tor.EmbeddedTor, error) {
	fmt.Fprintln(out, "Starting embedded Tor daemon...")
	fmt.Fprintf(out, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embeddedTor.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	logger.Info("embedded Tor daemon started",
		"socksAddr", embeddedTor.SocksAddr(),
		"controlAddr", embeddedTor.ControlAddr(),
	)
	fmt.Fprintf(out, "SOCKS proxy: %s\n\n", embeddedTor.SocksAddr())
	return embeddedTor, nil
}
