package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/filmlog-scraper/pkg/config"
	"github.com/Sriram-PR/filmlog-scraper/pkg/utils"
)

// testConfig returns fetch settings with tiny delays for testing
func testConfig(maxRetries int) config.FetchConfig {
	return config.FetchConfig{
		MaxRetries:         &maxRetries,
		Timeout:            2 * time.Second,
		PreRequestDelayMin: time.Millisecond,
		PreRequestDelayMax: 2 * time.Millisecond,
		RetryDelayMin:      time.Millisecond,
		RetryDelayMax:      2 * time.Millisecond,
	}
}

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// countingWaiter records how many times it was asked to wait
type countingWaiter struct {
	calls atomic.Int32
}

func (w *countingWaiter) Wait(ctx context.Context) error {
	w.calls.Add(1)
	return ctx.Err()
}

// mockServer creates an httptest.Server that returns status codes in sequence.
// Returns the server and an atomic counter tracking request attempts.
func mockServer(t *testing.T, statusCodes []int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(attemptCount.Add(1)) - 1
		if idx >= len(statusCodes) {
			idx = len(statusCodes) - 1 // repeat last status
		}
		w.WriteHeader(statusCodes[idx])
		if statusCodes[idx] == http.StatusOK {
			io.WriteString(w, "<html>ok</html>")
		}
	}))
	t.Cleanup(server.Close)
	return server, attemptCount
}

func newTestFetcher(maxRetries int) *Fetcher {
	return NewFetcher(&http.Client{Timeout: 5 * time.Second}, testConfig(maxRetries), "test-agent", testLogger())
}

func TestFetch_Success(t *testing.T) {
	server, attempts := mockServer(t, []int{http.StatusOK})

	body, err := newTestFetcher(3).Fetch(context.Background(), server.URL)

	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if string(body) != "<html>ok</html>" {
		t.Errorf("unexpected body %q", body)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestFetch_SendsUserAgent(t *testing.T) {
	var gotUA atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
	}))
	t.Cleanup(server.Close)

	if _, err := newTestFetcher(0).Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUA.Load() != "test-agent" {
		t.Errorf("User-Agent = %v, want test-agent", gotUA.Load())
	}
}

func TestFetch_DelaysBeforeEveryAttempt(t *testing.T) {
	server, attempts := mockServer(t, []int{500, 500, 200})

	f := newTestFetcher(3)
	pre, retry := &countingWaiter{}, &countingWaiter{}
	f.preDelay, f.retryDelay = pre, retry

	if _, err := f.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}
	// First attempt is delayed too
	if pre.calls.Load() != 3 {
		t.Errorf("expected 3 pre-request delays, got %d", pre.calls.Load())
	}
	if retry.calls.Load() != 2 {
		t.Errorf("expected 2 retry delays, got %d", retry.calls.Load())
	}
}

func TestFetch_ServerError_AllRetriesFail(t *testing.T) {
	// 500 × 4 (initial + 3 retries = 4 attempts)
	server, attempts := mockServer(t, []int{500})

	body, err := newTestFetcher(3).Fetch(context.Background(), server.URL)

	if err == nil {
		t.Fatal("expected error after all retries failed")
	}
	if body != nil {
		t.Error("expected nil body when all retries fail")
	}
	var failure *FetchFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *FetchFailure, got %T", err)
	}
	if failure.Attempts != 4 || failure.StatusCode != 500 {
		t.Errorf("failure = %+v, want 4 attempts with status 500", failure)
	}
	if !errors.Is(err, utils.ErrRetryFailed) {
		t.Errorf("expected ErrRetryFailed, got: %v", err)
	}
	if !errors.Is(err, utils.ErrServerHTTPError) {
		t.Errorf("expected wrapped ErrServerHTTPError, got: %v", err)
	}
	if attempts.Load() != 4 {
		t.Errorf("expected 4 attempts (initial + 3 retries), got %d", attempts.Load())
	}
}

func TestFetch_RateLimit_RetrySuccess(t *testing.T) {
	server, attempts := mockServer(t, []int{429, 200})

	if _, err := newTestFetcher(3).Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("expected no error after 429 retry, got: %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts.Load())
	}
}

func TestFetch_NotFound_NoRetry(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusGone} {
		server, attempts := mockServer(t, []int{code})

		_, err := newTestFetcher(3).Fetch(context.Background(), server.URL)

		var failure *FetchFailure
		if !errors.As(err, &failure) {
			t.Fatalf("status %d: expected *FetchFailure, got %v", code, err)
		}
		if !failure.NotFound() {
			t.Errorf("status %d: expected NotFound() true", code)
		}
		if errors.Is(err, utils.ErrRetryFailed) {
			t.Errorf("status %d: not-found must not be reported as retry exhaustion", code)
		}
		if attempts.Load() != 1 {
			t.Errorf("status %d: expected 1 attempt, got %d", code, attempts.Load())
		}
	}
}

func TestFetch_ClientError_Retried(t *testing.T) {
	server, attempts := mockServer(t, []int{403})

	_, err := newTestFetcher(2).Fetch(context.Background(), server.URL)

	if !errors.Is(err, utils.ErrClientHTTPError) {
		t.Errorf("expected ErrClientHTTPError, got: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetch_ContextCancelled_BeforeAttempt(t *testing.T) {
	server, attempts := mockServer(t, []int{200})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(3).Fetch(ctx, server.URL)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if attempts.Load() != 0 {
		t.Errorf("expected no request, got %d", attempts.Load())
	}
}

func TestFetch_AttemptTimeout_Retried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
			return
		}
		io.WriteString(w, "late but fine")
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(1)
	cfg.Timeout = 50 * time.Millisecond
	f := NewFetcher(&http.Client{}, cfg, "", testLogger())

	body, err := f.Fetch(context.Background(), server.URL)

	if err != nil {
		t.Fatalf("expected retry after attempt timeout to succeed, got: %v", err)
	}
	if string(body) != "late but fine" {
		t.Errorf("unexpected body %q", body)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestFetch_NetworkError_ReturnsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close() // Connection refused from now on

	_, err := newTestFetcher(1).Fetch(context.Background(), url)

	var failure *FetchFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *FetchFailure, got %v", err)
	}
	if failure.StatusCode != 0 || failure.Attempts != 2 {
		t.Errorf("failure = %+v, want 2 attempts without status", failure)
	}
	if !errors.Is(err, utils.ErrRetryFailed) {
		t.Errorf("expected ErrRetryFailed, got %v", err)
	}
}

func TestFetch_ZeroRetries(t *testing.T) {
	server, attempts := mockServer(t, []int{503})

	_, err := newTestFetcher(0).Fetch(context.Background(), server.URL)

	if err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", attempts.Load())
	}
}
