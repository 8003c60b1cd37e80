package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/filmlog-scraper/pkg/config"
	"github.com/Sriram-PR/filmlog-scraper/pkg/utils"
)

// maxBodyBytes caps a single diary page read
const maxBodyBytes = 8 << 20

// FetchFailure is the typed failure returned by Fetch once a URL cannot be retrieved.
// Callers decide whether it means "end of data" or "transient outage".
type FetchFailure struct {
	URL        string
	Attempts   int
	StatusCode int // Last HTTP status seen, 0 for network errors
	Err        error
}

func (f *FetchFailure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("fetch %s failed after %d attempt(s) (last status %d): %v", f.URL, f.Attempts, f.StatusCode, f.Err)
	}
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", f.URL, f.Attempts, f.Err)
}

func (f *FetchFailure) Unwrap() error { return f.Err }

// NotFound reports whether the source answered 404/410 (definitive absence, not an outage)
func (f *FetchFailure) NotFound() bool { return errors.Is(f.Err, utils.ErrNotFound) }

// Fetcher performs rate-limited GET requests with bounded retries, using an underlying http.Client
type Fetcher struct {
	client     *http.Client
	cfg        config.FetchConfig
	userAgent  string
	preDelay   Waiter // Runs before every attempt, including the first
	retryDelay Waiter // Runs between attempts
	log        *logrus.Entry
}

// NewFetcher creates a Fetcher from the validated fetch settings
func NewFetcher(client *http.Client, cfg config.FetchConfig, userAgent string, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:     client,
		cfg:        cfg,
		userAgent:  userAgent,
		preDelay:   RandomDelay{Min: cfg.PreRequestDelayMin, Max: cfg.PreRequestDelayMax},
		retryDelay: RandomDelay{Min: cfg.RetryDelayMin, Max: cfg.RetryDelayMax},
		log:        log,
	}
}

// Fetch retrieves url and returns the response body.
// Every attempt is preceded by the randomized politeness delay; failed attempts add a backoff
// delay before the next one. Any error returned is a *FetchFailure.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	reqLog := f.log.WithField("url", url)
	maxAttempts := f.cfg.Retries() + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	var lastStatus int

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_attempts": maxAttempts}).Warn("Retrying request...")
			if err := f.retryDelay.Wait(ctx); err != nil {
				return nil, f.failure(url, attempt-1, lastStatus, fmt.Errorf("context cancelled (%v) during retry delay after error: %w", err, lastErr))
			}
		}
		if err := f.preDelay.Wait(ctx); err != nil {
			if lastErr != nil {
				return nil, f.failure(url, attempt-1, lastStatus, fmt.Errorf("context cancelled (%v) after error: %w", err, lastErr))
			}
			return nil, f.failure(url, attempt-1, 0, fmt.Errorf("context cancelled before first attempt: %w", err))
		}

		body, status, err := f.attempt(ctx, url)
		if err == nil {
			reqLog.WithFields(logrus.Fields{"status_code": status, "attempt": attempt, "bytes": len(body)}).Debug("Successfully fetched")
			return body, nil
		}
		lastErr, lastStatus = err, status
		attemptLog := reqLog.WithFields(logrus.Fields{"attempt": attempt, "status_code": status, "category": utils.CategorizeError(err)})

		// The caller's context ended; a per-attempt timeout alone is retryable
		if ctx.Err() != nil {
			attemptLog.Warnf("Context done during request: %v", ctx.Err())
			return nil, f.failure(url, attempt, status, err)
		}
		if errors.Is(err, utils.ErrNotFound) {
			attemptLog.Info("Resource not found, not retrying")
			return nil, f.failure(url, attempt, status, err)
		}
		attemptLog.Warnf("Attempt failed: %v", err)
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", maxAttempts, lastErr)
	return nil, f.failure(url, maxAttempts, lastStatus, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr))
}

// attempt performs one bounded GET. status is 0 when no response was received.
func (f *Fetcher) attempt(ctx context.Context, url string) (body []byte, status int, err error) {
	attemptCtx := ctx
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	status = resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, status, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
		}
		return body, status, nil
	case status == http.StatusNotFound || status == http.StatusGone:
		io.Copy(io.Discard, resp.Body)
		return nil, status, fmt.Errorf("%w: status %d %s", utils.ErrNotFound, status, resp.Status)
	case status >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, status, fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, status, resp.Status)
	case status >= 400:
		io.Copy(io.Discard, resp.Body)
		return nil, status, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, status, resp.Status)
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, status, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, status, resp.Status)
	}
}

func (f *Fetcher) failure(url string, attempts, status int, err error) *FetchFailure {
	return &FetchFailure{URL: url, Attempts: attempts, StatusCode: status, Err: err}
}
