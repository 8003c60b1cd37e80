package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sriram-PR/filmlog-scraper/pkg/utils"
)

const (
	DefaultBaseURL       = "https://letterboxd.com"
	DefaultTMDBBaseURL   = "https://api.themoviedb.org/3"
	DefaultMarkupVersion = "classic"
	DefaultMaxPages      = 15
	DefaultMaxRetries    = 3
	DefaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// Username is the only hard requirement
	c.Username = strings.Trim(strings.TrimSpace(c.Username), "/")
	if c.Username == "" {
		return nil, fmt.Errorf("%w: username is required (config, -user flag or %s)", utils.ErrConfigValidation, EnvUsername)
	}
	if strings.ContainsAny(c.Username, "/?#") {
		return nil, fmt.Errorf("%w: username %q contains URL path characters", utils.ErrConfigValidation, c.Username)
	}

	// BaseURL
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if u, perr := url.Parse(c.BaseURL); perr != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: base_url %q is not an absolute URL", utils.ErrConfigValidation, c.BaseURL)
	}

	// MaxPages
	if c.MaxPages <= 0 {
		warnings = append(warnings, fmt.Sprintf("max_pages should be > 0, defaulting to %d", DefaultMaxPages))
		c.MaxPages = DefaultMaxPages
	}

	if c.MarkupVersion == "" {
		c.MarkupVersion = DefaultMarkupVersion
	}
	c.MarkupVersion = strings.ToLower(strings.TrimSpace(c.MarkupVersion))

	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	if c.OutputDir == "" {
		warnings = append(warnings, "output_dir is empty, defaulting to './data'")
		c.OutputDir = "./data"
	}

	if c.StateDir == "" {
		c.StateDir = "./scraper_state"
	}

	warnings = append(warnings, c.Fetch.validate()...)
	warnings = append(warnings, c.TMDB.validate()...)
	c.validateHTTPClientSettings()

	if c.Watch.Interval < 0 {
		warnings = append(warnings, "watch.interval cannot be negative, defaulting to 24h")
		c.Watch.Interval = 0
	}
	if c.Watch.Interval == 0 {
		c.Watch.Interval = 24 * time.Hour
	}

	return warnings, nil
}

// validate applies fetch defaults: 3 retries, 10s per attempt, 1-3s before each attempt, 2-5s between attempts
func (f *FetchConfig) validate() (warnings []string) {
	switch {
	case f.MaxRetries == nil:
		retries := DefaultMaxRetries
		f.MaxRetries = &retries
	case *f.MaxRetries < 0:
		warnings = append(warnings, "fetch.max_retries cannot be negative, setting to 0")
		none := 0
		f.MaxRetries = &none
	}

	if f.Timeout <= 0 {
		f.Timeout = 10 * time.Second
	}

	// The pre-request delay is mandatory; a zero range is replaced, never honored
	if f.PreRequestDelayMin < 0 || f.PreRequestDelayMax < 0 {
		warnings = append(warnings, "fetch pre-request delays cannot be negative, using defaults")
		f.PreRequestDelayMin, f.PreRequestDelayMax = 0, 0
	}
	if f.PreRequestDelayMin == 0 && f.PreRequestDelayMax == 0 {
		f.PreRequestDelayMin, f.PreRequestDelayMax = 1*time.Second, 3*time.Second
	}
	if f.PreRequestDelayMin > f.PreRequestDelayMax {
		warnings = append(warnings, fmt.Sprintf(
			"fetch.pre_request_delay_min (%v) > fetch.pre_request_delay_max (%v), swapping",
			f.PreRequestDelayMin, f.PreRequestDelayMax))
		f.PreRequestDelayMin, f.PreRequestDelayMax = f.PreRequestDelayMax, f.PreRequestDelayMin
	}

	if f.RetryDelayMin < 0 || f.RetryDelayMax < 0 {
		warnings = append(warnings, "fetch retry delays cannot be negative, using defaults")
		f.RetryDelayMin, f.RetryDelayMax = 0, 0
	}
	if f.RetryDelayMin == 0 && f.RetryDelayMax == 0 {
		f.RetryDelayMin, f.RetryDelayMax = 2*time.Second, 5*time.Second
	}
	if f.RetryDelayMin > f.RetryDelayMax {
		warnings = append(warnings, fmt.Sprintf(
			"fetch.retry_delay_min (%v) > fetch.retry_delay_max (%v), swapping",
			f.RetryDelayMin, f.RetryDelayMax))
		f.RetryDelayMin, f.RetryDelayMax = f.RetryDelayMax, f.RetryDelayMin
	}
	return warnings
}

func (t *TMDBConfig) validate() (warnings []string) {
	t.APIKey = strings.TrimSpace(t.APIKey)
	if t.BaseURL == "" {
		t.BaseURL = DefaultTMDBBaseURL
	}
	t.BaseURL = strings.TrimRight(t.BaseURL, "/")
	if t.Timeout <= 0 {
		t.Timeout = 5 * time.Second
	}
	if t.Delay < 0 {
		warnings = append(warnings, "tmdb.delay cannot be negative, setting to 100ms")
		t.Delay = 0
	}
	if t.Delay == 0 {
		t.Delay = 100 * time.Millisecond
	}
	if t.CacheTTL <= 0 {
		t.CacheTTL = 30 * 24 * time.Hour
	}
	return warnings
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 30 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 10
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 10 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
