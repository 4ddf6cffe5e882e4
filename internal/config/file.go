package config

import "time"

// File represents the structure of the .yieldpage configuration file.
// Zero values mean "not set" and leave the corresponding Config field alone.
type File struct {
	Seeds           []string `yaml:"seeds,omitempty"`
	IncludePatterns []string `yaml:"include,omitempty"`
	ExcludePatterns []string `yaml:"exclude,omitempty"`
	AllowExternal   *bool    `yaml:"allowExternal,omitempty"`
	PathPrefix      string   `yaml:"pathPrefix,omitempty"`

	Crawl   CrawlSection   `yaml:"crawl,omitempty"`
	Browser BrowserSection `yaml:"browser,omitempty"`
	Output  OutputSection  `yaml:"output,omitempty"`
}

// CrawlSection holds scheduling limits.
type CrawlSection struct {
	MaxDepth          *int          `yaml:"maxDepth,omitempty"`
	MaxPages          *int          `yaml:"maxPages,omitempty"`
	MaxSessions       int           `yaml:"maxSessions,omitempty"`
	Workers           int           `yaml:"workers,omitempty"`
	MaxPerHost        int           `yaml:"maxPerHost,omitempty"`
	HostInterval      time.Duration `yaml:"hostInterval,omitempty"`
	FetchTimeout      time.Duration `yaml:"fetchTimeout,omitempty"`
	RetryLimit        int           `yaml:"retryLimit,omitempty"`
	BackoffBase       time.Duration `yaml:"backoffBase,omitempty"`
	BackoffMultiplier float64       `yaml:"backoffMultiplier,omitempty"`
	BackoffMax        time.Duration `yaml:"backoffMax,omitempty"`
	RunTimeout        time.Duration `yaml:"runTimeout,omitempty"`
	RespectRobots     *bool         `yaml:"respectRobots,omitempty"`
}

// BrowserSection configures the browser transport.
type BrowserSection struct {
	URL        string        `yaml:"url,omitempty"`
	Headless   *bool         `yaml:"headless,omitempty"`
	UserAgent  string        `yaml:"userAgent,omitempty"`
	RenderWait time.Duration `yaml:"renderWait,omitempty"`
	Tor        *bool         `yaml:"tor,omitempty"`
}

// OutputSection configures record sinks.
type OutputSection struct {
	File          string   `yaml:"file,omitempty"`
	SaveToDB      *bool    `yaml:"db,omitempty"`
	DBDir         string   `yaml:"dbDir,omitempty"`
	KafkaBrokers  []string `yaml:"kafkaBrokers,omitempty"`
	KafkaTopic    string   `yaml:"kafkaTopic,omitempty"`
	Neo4jURI      string   `yaml:"neo4jURI,omitempty"`
	Neo4jUser     string   `yaml:"neo4jUser,omitempty"`
	Neo4jPassword string   `yaml:"neo4jPassword,omitempty"`
	RedisAddr     string   `yaml:"redisAddr,omitempty"`
}

// Apply overlays the values set in the file onto cfg.
// CLI flags are applied afterwards by the caller so they take precedence.
func (f *File) Apply(cfg *Config) {
	if len(f.Seeds) > 0 {
		cfg.Seeds = append([]string(nil), f.Seeds...)
	}
	if len(f.IncludePatterns) > 0 {
		cfg.IncludePatterns = append([]string(nil), f.IncludePatterns...)
	}
	if len(f.ExcludePatterns) > 0 {
		cfg.ExcludePatterns = append([]string(nil), f.ExcludePatterns...)
	}
	if f.AllowExternal != nil {
		cfg.AllowExternal = *f.AllowExternal
	}
	setString(&cfg.PathPrefix, f.PathPrefix)

	c := f.Crawl
	if c.MaxDepth != nil {
		cfg.MaxDepth = *c.MaxDepth
	}
	if c.MaxPages != nil {
		cfg.MaxPages = *c.MaxPages
	}
	setInt(&cfg.MaxSessions, c.MaxSessions)
	setInt(&cfg.Workers, c.Workers)
	setInt(&cfg.MaxPerHost, c.MaxPerHost)
	setDuration(&cfg.HostInterval, c.HostInterval)
	setDuration(&cfg.FetchTimeout, c.FetchTimeout)
	setInt(&cfg.RetryLimit, c.RetryLimit)
	setDuration(&cfg.BackoffBase, c.BackoffBase)
	if c.BackoffMultiplier != 0 {
		cfg.BackoffMultiplier = c.BackoffMultiplier
	}
	setDuration(&cfg.BackoffMax, c.BackoffMax)
	setDuration(&cfg.RunTimeout, c.RunTimeout)
	if c.RespectRobots != nil {
		cfg.RespectRobots = *c.RespectRobots
	}

	b := f.Browser
	setString(&cfg.BrowserURL, b.URL)
	if b.Headless != nil {
		cfg.Headless = *b.Headless
	}
	setString(&cfg.UserAgent, b.UserAgent)
	setDuration(&cfg.RenderWait, b.RenderWait)
	if b.Tor != nil {
		cfg.UseTor = *b.Tor
	}

	o := f.Output
	setString(&cfg.OutputFile, o.File)
	if o.SaveToDB != nil {
		cfg.SaveToDB = *o.SaveToDB
	}
	setString(&cfg.DBDir, o.DBDir)
	if len(o.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = append([]string(nil), o.KafkaBrokers...)
	}
	setString(&cfg.KafkaTopic, o.KafkaTopic)
	setString(&cfg.Neo4jURI, o.Neo4jURI)
	setString(&cfg.Neo4jUser, o.Neo4jUser)
	setString(&cfg.Neo4jPassword, o.Neo4jPassword)
	setString(&cfg.RedisAddr, o.RedisAddr)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
