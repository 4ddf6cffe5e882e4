package config

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "yieldpage"

	// DefaultMaxDepth limits how many link hops away from a seed the crawl goes.
	// Depth 0 means only the seeds themselves are fetched.
	DefaultMaxDepth = 5

	// DefaultMaxSessions is the number of browser tabs that may be open at once.
	// Every tab is a full renderer process, so this stays small by default.
	DefaultMaxSessions = 4

	// DefaultMaxPerHost caps concurrent fetches against a single host.
	DefaultMaxPerHost = 2

	// DefaultHostInterval is the minimum spacing between two requests to the
	// same host.
	DefaultHostInterval = 500 * time.Millisecond

	// DefaultFetchTimeout bounds a single navigation plus HTML extraction.
	// Script-heavy documentation sites regularly need tens of seconds.
	DefaultFetchTimeout = 45 * time.Second

	// DefaultRetryLimit is the maximum number of fetch attempts per URL,
	// counting the first one.
	DefaultRetryLimit = 3

	// DefaultBackoffBase is the delay before the second attempt.
	DefaultBackoffBase = 1 * time.Second

	// DefaultBackoffMultiplier grows the delay between successive attempts.
	DefaultBackoffMultiplier = 2.0

	// DefaultBackoffMax caps the delay between attempts.
	DefaultBackoffMax = 30 * time.Second

	// DefaultRunTimeout bounds the whole crawl.
	DefaultRunTimeout = 20 * time.Minute

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultUserAgent identifies the crawler. Empty means the browser's own.
	DefaultUserAgent = ""

	// DefaultKafkaTopic is the topic page records are published to.
	DefaultKafkaTopic = "yieldpage.pages"

	// DefaultNeo4jUser is the user name for the link graph database.
	DefaultNeo4jUser = "neo4j"
)

// DefaultExcludePatterns skip static assets and generated source listings,
// which never contain crawlable prose.
var DefaultExcludePatterns = []string{
	`\.(jpg|jpeg|png|gif|css|js|ico|woff|woff2|ttf|eot|svg|pdf)$`,
	`/_sources/`,
}

// Config holds all configuration options for a crawl run.
// It is populated from CLI flags and the optional config file and is passed
// down explicitly rather than kept in global state.
type Config struct {
	// Seeds are the absolute http(s) URLs the crawl starts from.
	Seeds []string

	// IncludePatterns are regular expressions; when non-empty, a discovered URL
	// must match at least one of them.
	IncludePatterns []string

	// ExcludePatterns are regular expressions; a discovered URL matching any of
	// them is rejected. Exclusion is checked before inclusion.
	ExcludePatterns []string

	// AllowExternal lets the crawl leave the host of the page a link was found on.
	AllowExternal bool

	// PathPrefix restricts same-host crawling to URLs whose path starts with it.
	// Ignored when AllowExternal is set.
	PathPrefix string

	// MaxDepth is the maximum link depth from a seed.
	MaxDepth int

	// MaxPages stops claiming new URLs once this many have been claimed.
	// Zero means unlimited.
	MaxPages int

	// MaxSessions is the capacity of the browser session pool.
	MaxSessions int

	// Workers is the number of scheduler workers. Zero means MaxSessions.
	Workers int

	// MaxPerHost caps concurrent fetches per host.
	MaxPerHost int

	// HostInterval is the minimum time between two requests to the same host.
	HostInterval time.Duration

	// FetchTimeout is the hard wall-clock limit of one fetch.
	FetchTimeout time.Duration

	// RetryLimit is the maximum number of fetch attempts per URL.
	RetryLimit int

	// BackoffBase, BackoffMultiplier and BackoffMax shape the delay before a
	// retried URL becomes eligible again.
	BackoffBase       time.Duration
	BackoffMultiplier float64
	BackoffMax        time.Duration

	// RunTimeout bounds the whole crawl. Zero disables the limit.
	RunTimeout time.Duration

	// RespectRobots enables robots.txt checks for discovered URLs.
	RespectRobots bool

	// UserAgent overrides the browser user agent when launching a local browser.
	UserAgent string

	// BrowserURL is a remote DevTools endpoint, or a comma-separated list of
	// endpoints tried in order. When empty a local headless Chrome is launched.
	BrowserURL string

	// Headless controls whether a locally launched browser shows a window.
	Headless bool

	// RenderWait is an extra delay after navigation for client-side rendering.
	RenderWait time.Duration

	// UseTor starts an embedded Tor daemon and routes the local browser and
	// robots.txt requests through it.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for Tor to bootstrap.
	TorStartupTimeout time.Duration

	// OutputFile receives page records as JSON lines. "-" means stdout and
	// empty disables the JSON lines sink.
	OutputFile string

	// SaveToDB stores runs, pages and links in SQLite under DBDir.
	SaveToDB bool

	// DBDir is the directory of the SQLite database.
	// Defaults to the XDG data directory (~/.local/share/yieldpage on Linux).
	DBDir string

	// KafkaBrokers enables publishing page records to KafkaTopic.
	KafkaBrokers []string
	KafkaTopic   string

	// Neo4jURI enables writing the link graph to Neo4j.
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// RedisAddr enables publishing run status to Redis.
	RedisAddr string

	// JSONReport and MarkdownReport select the summary format; they are
	// mutually exclusive. Neither means plain text.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile is the output file of the summary report. Empty means stdout.
	ReportFile string

	// ConfigFilePath is an explicit configuration file path.
	ConfigFilePath string

	// Verbose enables debug logging.
	Verbose bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		ExcludePatterns:   append([]string(nil), DefaultExcludePatterns...),
		MaxDepth:          DefaultMaxDepth,
		MaxSessions:       DefaultMaxSessions,
		MaxPerHost:        DefaultMaxPerHost,
		HostInterval:      DefaultHostInterval,
		FetchTimeout:      DefaultFetchTimeout,
		RetryLimit:        DefaultRetryLimit,
		BackoffBase:       DefaultBackoffBase,
		BackoffMultiplier: DefaultBackoffMultiplier,
		BackoffMax:        DefaultBackoffMax,
		RunTimeout:        DefaultRunTimeout,
		UserAgent:         DefaultUserAgent,
		Headless:          true,
		TorStartupTimeout: DefaultTorStartupTimeout,
		DBDir:             XDGDataDir(),
		KafkaTopic:        DefaultKafkaTopic,
		Neo4jUser:         DefaultNeo4jUser,
	}
}

// EnvBrowserURL names the environment variable that supplies BrowserURL when
// neither the command line nor the config file sets it.
const EnvBrowserURL = "YIELDPAGE_BROWSER_URL"

// ApplyEnv fills settings that are still unset from the environment, read
// through lookup (os.LookupEnv outside of tests).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if c.BrowserURL != "" {
		return
	}
	if v, ok := lookup(EnvBrowserURL); ok {
		c.BrowserURL = strings.TrimSpace(v)
	}
}

// BrowserURLs returns the remote browser endpoints in the order they are
// tried.
func (c *Config) BrowserURLs() []string {
	var urls []string
	for _, u := range strings.Split(c.BrowserURL, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// WorkerCount returns the effective number of scheduler workers.
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return c.MaxSessions
}

// XDGDataDir returns the XDG data directory for yieldpage.
// On Linux: ~/.local/share/yieldpage
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for yieldpage.
// On Linux: ~/.config/yieldpage
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found as one of the sentinel errors in this package.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeed
	}
	for _, seed := range c.Seeds {
		u, err := url.Parse(seed)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrInvalidSeed
		}
	}

	for _, pattern := range append(append([]string(nil), c.IncludePatterns...), c.ExcludePatterns...) {
		if _, err := regexp.Compile(pattern); err != nil {
			return ErrInvalidPattern
		}
	}

	if c.MaxDepth < 0 {
		return ErrInvalidDepth
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.MaxSessions <= 0 {
		return ErrInvalidSessions
	}
	if c.Workers < 0 {
		return ErrInvalidWorkers
	}
	if c.MaxPerHost <= 0 {
		return ErrInvalidHostConcurrency
	}
	if c.HostInterval < 0 || c.RenderWait < 0 {
		return ErrInvalidInterval
	}
	if c.FetchTimeout <= 0 || c.RunTimeout < 0 {
		return ErrInvalidTimeout
	}
	if c.RetryLimit <= 0 {
		return ErrInvalidRetryLimit
	}
	if c.BackoffBase < 0 || c.BackoffMax < 0 || c.BackoffMultiplier < 1 {
		return ErrInvalidBackoff
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	// A remote browser cannot be pointed at the embedded Tor proxy.
	if c.UseTor && c.BrowserURL != "" {
		return ErrConflictingBrowserModes
	}

	return nil
}
