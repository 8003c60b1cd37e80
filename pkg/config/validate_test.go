package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/filmlog-scraper/pkg/utils"
)

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := AppConfig{Username: "filmfan"}
	warnings, err := cfg.Validate()

	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultMaxPages, cfg.MaxPages)
	assert.Equal(t, "classic", cfg.MarkupVersion)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, "./data", cfg.OutputDir)
	assert.Equal(t, "./scraper_state", cfg.StateDir)
	assert.Equal(t, 24*time.Hour, cfg.Watch.Interval)

	// Fetch defaults
	assert.Equal(t, 3, cfg.Fetch.Retries())
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 1*time.Second, cfg.Fetch.PreRequestDelayMin)
	assert.Equal(t, 3*time.Second, cfg.Fetch.PreRequestDelayMax)
	assert.Equal(t, 2*time.Second, cfg.Fetch.RetryDelayMin)
	assert.Equal(t, 5*time.Second, cfg.Fetch.RetryDelayMax)

	// TMDB defaults
	assert.Equal(t, DefaultTMDBBaseURL, cfg.TMDB.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.TMDB.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.TMDB.Delay)
	assert.Equal(t, 30*24*time.Hour, cfg.TMDB.CacheTTL)

	// HTTP client defaults
	assert.Equal(t, 30*time.Second, cfg.HTTPClientSettings.Timeout)
	assert.Equal(t, 2, cfg.HTTPClientSettings.MaxIdleConnsPerHost)

	assert.True(t, containsWarning(warnings, "max_pages should be > 0"))
	assert.True(t, containsWarning(warnings, "output_dir is empty"))
}

func TestAppConfig_Validate_MissingUsername(t *testing.T) {
	for _, name := range []string{"", "   ", "/"} {
		cfg := AppConfig{Username: name}
		_, err := cfg.Validate()
		require.Error(t, err, "username %q", name)
		assert.ErrorIs(t, err, utils.ErrConfigValidation)
	}
}

func TestAppConfig_Validate_UsernameNormalization(t *testing.T) {
	cfg := AppConfig{Username: " /filmfan/ "}
	_, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, "filmfan", cfg.Username)

	cfg = AppConfig{Username: "film/fan"}
	_, err = cfg.Validate()
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestAppConfig_Validate_BadBaseURL(t *testing.T) {
	cfg := AppConfig{Username: "filmfan", BaseURL: "letterboxd.com"}
	_, err := cfg.Validate()
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestAppConfig_Validate_TrimsBaseURL(t *testing.T) {
	cfg := AppConfig{Username: "filmfan", BaseURL: "https://example.test/", TMDB: TMDBConfig{BaseURL: "http://tmdb.test/3/"}}
	_, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, "https://example.test", cfg.BaseURL)
	assert.Equal(t, "http://tmdb.test/3", cfg.TMDB.BaseURL)
}

func TestAppConfig_Validate_ValidConfig(t *testing.T) {
	one := 1
	cfg := AppConfig{
		Username:      "filmfan",
		MaxPages:      5,
		MarkupVersion: "Modern",
		OutputDir:     "/out",
		Fetch: FetchConfig{
			MaxRetries:         &one,
			Timeout:            2 * time.Second,
			PreRequestDelayMin: 10 * time.Millisecond,
			PreRequestDelayMax: 20 * time.Millisecond,
			RetryDelayMin:      30 * time.Millisecond,
			RetryDelayMax:      40 * time.Millisecond,
		},
	}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 5, cfg.MaxPages)
	assert.Equal(t, "modern", cfg.MarkupVersion)
	assert.Equal(t, 1, cfg.Fetch.Retries())
	assert.Equal(t, 20*time.Millisecond, cfg.Fetch.PreRequestDelayMax)
}

func TestAppConfig_Validate_ExplicitZeroRetries(t *testing.T) {
	zero := 0
	cfg := AppConfig{Username: "filmfan", Fetch: FetchConfig{MaxRetries: &zero}}
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Fetch.Retries(), "explicit zero means a single attempt")
	assert.False(t, containsWarning(warnings, "max_retries"))
}

func TestAppConfig_Validate_ZeroRetriesFromYAML(t *testing.T) {
	var cfg AppConfig
	require.NoError(t, yaml.Unmarshal([]byte("username: filmfan\nfetch:\n  max_retries: 0\n"), &cfg))
	_, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Fetch.Retries())
}

func TestAppConfig_Validate_NegativeRetriesBecomeZero(t *testing.T) {
	minusOne := -1
	cfg := AppConfig{Username: "filmfan", Fetch: FetchConfig{MaxRetries: &minusOne}}
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Fetch.Retries())
	assert.True(t, containsWarning(warnings, "fetch.max_retries cannot be negative, setting to 0"))
}

func TestFetchConfig_RetriesDefault(t *testing.T) {
	assert.Equal(t, DefaultMaxRetries, FetchConfig{}.Retries())
}

func TestAppConfig_Validate_NegativeValues(t *testing.T) {
	minusOne := -1
	cfg := AppConfig{
		Username: "filmfan",
		Fetch: FetchConfig{
			MaxRetries:         &minusOne,
			PreRequestDelayMin: -time.Second,
			RetryDelayMax:      -time.Second,
		},
		TMDB:  TMDBConfig{Delay: -time.Second},
		Watch: WatchConfig{Interval: -time.Hour},
	}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Equal(t, 1*time.Second, cfg.Fetch.PreRequestDelayMin)
	assert.Equal(t, 2*time.Second, cfg.Fetch.RetryDelayMin)
	assert.Equal(t, 100*time.Millisecond, cfg.TMDB.Delay)
	assert.Equal(t, 24*time.Hour, cfg.Watch.Interval)
	assert.Equal(t, 0, cfg.Fetch.Retries())
	assert.True(t, containsWarning(warnings, "max_retries cannot be negative"))
	assert.True(t, containsWarning(warnings, "pre-request delays cannot be negative"))
	assert.True(t, containsWarning(warnings, "tmdb.delay cannot be negative"))
	assert.True(t, containsWarning(warnings, "watch.interval cannot be negative"))
}

func TestAppConfig_Validate_DelayInversion(t *testing.T) {
	cfg := AppConfig{
		Username: "filmfan",
		Fetch: FetchConfig{
			PreRequestDelayMin: 3 * time.Second,
			PreRequestDelayMax: 1 * time.Second,
		},
	}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Equal(t, 1*time.Second, cfg.Fetch.PreRequestDelayMin)
	assert.Equal(t, 3*time.Second, cfg.Fetch.PreRequestDelayMax)
	assert.True(t, containsWarning(warnings, "swapping"))
}
