package config

import (
	"strings"
	"time"
)

// Environment variables consulted by ApplyEnv
const (
	EnvUsername   = "LETTERBOXD_USERNAME"
	EnvTMDBAPIKey = "TMDB_API_KEY"
)

// AppConfig holds the global application configuration
type AppConfig struct {
	Username           string           `yaml:"username"`
	BaseURL            string           `yaml:"base_url,omitempty"`       // Diary site root, e.g. https://letterboxd.com
	MaxPages           int              `yaml:"max_pages,omitempty"`      // Page cap for the diary walk
	MarkupVersion      string           `yaml:"markup_version,omitempty"` // "classic" or "modern"
	UserAgent          string           `yaml:"user_agent,omitempty"`
	RespectRobots      bool             `yaml:"respect_robots,omitempty"`
	ScrapeProfile      *bool            `yaml:"scrape_profile,omitempty"` // nil = default (true)
	OutputDir          string           `yaml:"output_dir,omitempty"`
	StateDir           string           `yaml:"state_dir,omitempty"`
	EnableCheckpoint   bool             `yaml:"enable_checkpoint,omitempty"`
	Fetch              FetchConfig      `yaml:"fetch,omitempty"`
	TMDB               TMDBConfig       `yaml:"tmdb,omitempty"`
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
	Watch              WatchConfig      `yaml:"watch,omitempty"`
}

// FetchConfig holds retry and politeness settings for diary page fetches
type FetchConfig struct {
	MaxRetries         *int          `yaml:"max_retries,omitempty"`           // Retries after the first attempt; nil = default (3), 0 = single attempt
	Timeout            time.Duration `yaml:"timeout,omitempty"`               // Per-attempt timeout
	PreRequestDelayMin time.Duration `yaml:"pre_request_delay_min,omitempty"` // Sleep before every attempt
	PreRequestDelayMax time.Duration `yaml:"pre_request_delay_max,omitempty"`
	RetryDelayMin      time.Duration `yaml:"retry_delay_min,omitempty"` // Extra backoff between attempts
	RetryDelayMax      time.Duration `yaml:"retry_delay_max,omitempty"`
}

// Retries returns the configured retry count; nil means DefaultMaxRetries
func (f FetchConfig) Retries() int {
	if f.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *f.MaxRetries
}

// TMDBConfig holds catalog API settings. An empty APIKey disables enrichment.
type TMDBConfig struct {
	APIKey      string        `yaml:"api_key,omitempty"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"` // Per-call timeout
	Delay       time.Duration `yaml:"delay,omitempty"`   // Fixed pause after each enriched movie
	EnableCache bool          `yaml:"enable_cache,omitempty"`
	CacheTTL    time.Duration `yaml:"cache_ttl,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout             time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns        int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	DialerTimeout       time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive     time.Duration `yaml:"dialer_keep_alive,omitempty"`
}

// WatchConfig controls the periodic re-scrape mode
type WatchConfig struct {
	Interval time.Duration `yaml:"interval,omitempty"`
}

// TMDBEnabled reports whether an API key is configured
func (c *AppConfig) TMDBEnabled() bool {
	return strings.TrimSpace(c.TMDB.APIKey) != ""
}

// GetEffectiveScrapeProfile determines whether the profile page is read for the lifetime film count
func GetEffectiveScrapeProfile(c AppConfig) bool {
	if c.ScrapeProfile != nil {
		return *c.ScrapeProfile
	}
	return true
}

// ApplyEnv overrides username and API key from the environment when set.
// lookup is os.LookupEnv in production.
func (c *AppConfig) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvUsername); ok && strings.TrimSpace(v) != "" {
		c.Username = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvTMDBAPIKey); ok && strings.TrimSpace(v) != "" {
		c.TMDB.APIKey = strings.TrimSpace(v)
	}
}
