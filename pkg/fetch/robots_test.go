package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func robotsServer(t *testing.T, robots string, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	robotsHits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsHits.Add(1)
			w.WriteHeader(status)
			io.WriteString(w, robots)
			return
		}
		io.WriteString(w, "<html></html>")
	}))
	t.Cleanup(server.Close)
	return server, robotsHits
}

func TestRobotsGuard_Disallow(t *testing.T) {
	server, _ := robotsServer(t, "User-agent: *\nDisallow: /private/\n", http.StatusOK)
	guard := NewRobotsGuard(newTestFetcher(0), "test-agent", testLogger())

	if guard.Allowed(context.Background(), server.URL+"/private/films/diary/page/1/") {
		t.Error("expected /private/ to be disallowed")
	}
	if !guard.Allowed(context.Background(), server.URL+"/someone/films/diary/page/1/") {
		t.Error("expected diary path to be allowed")
	}
}

func TestRobotsGuard_CachesPerHost(t *testing.T) {
	server, hits := robotsServer(t, "User-agent: *\nDisallow:\n", http.StatusOK)
	guard := NewRobotsGuard(newTestFetcher(0), "test-agent", testLogger())

	for i := 0; i < 3; i++ {
		guard.Allowed(context.Background(), server.URL+"/a/")
	}
	if hits.Load() != 1 {
		t.Errorf("expected robots.txt fetched once, got %d", hits.Load())
	}
}

func TestRobotsGuard_MissingRobotsAllowsAll(t *testing.T) {
	server, hits := robotsServer(t, "", http.StatusNotFound)
	guard := NewRobotsGuard(newTestFetcher(3), "test-agent", testLogger())

	if !guard.Allowed(context.Background(), server.URL+"/anything/") {
		t.Error("expected allow when robots.txt is missing")
	}
	// 404 is definitive, so no retries
	if hits.Load() != 1 {
		t.Errorf("expected 1 robots.txt request, got %d", hits.Load())
	}
}

func TestRobotsGuard_UnparsableURLAllowed(t *testing.T) {
	guard := NewRobotsGuard(newTestFetcher(0), "test-agent", testLogger())
	if !guard.Allowed(context.Background(), "://bad url") {
		t.Error("expected allow for unparsable URL")
	}
}
