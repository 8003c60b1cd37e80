package fetch

import (
	"context"
	"net/url"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsGuard fetches, caches and checks robots.txt rules for the diary host.
// It is used from the single pipeline goroutine only.
type RobotsGuard struct {
	fetcher   *Fetcher
	userAgent string
	cache     map[string]*robotstxt.RobotsData // hostname -> parsed data (nil = unavailable, allow all)
	log       *logrus.Entry
}

// NewRobotsGuard creates a RobotsGuard that fetches through fetcher
func NewRobotsGuard(fetcher *Fetcher, userAgent string, log *logrus.Entry) *RobotsGuard {
	return &RobotsGuard{
		fetcher:   fetcher,
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
		log:       log,
	}
}

// rules returns the parsed robots.txt for target's host, fetching it on first use.
// Any failure (404, network, parse) is cached as nil.
func (g *RobotsGuard) rules(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := target.Hostname()
	if data, found := g.cache[host]; found {
		return data
	}

	scheme := target.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: target.Host, Path: "/robots.txt"}).String()
	robotsLog := g.log.WithField("robots_url", robotsURL)
	robotsLog.Info("Fetching robots.txt...")

	body, err := g.fetcher.Fetch(ctx, robotsURL)
	if err != nil {
		robotsLog.Warnf("robots.txt unavailable, assuming allowed: %v", err)
		g.cache[host] = nil
		return nil
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		robotsLog.Warnf("Error parsing robots.txt, assuming allowed: %v", err)
		g.cache[host] = nil
		return nil
	}

	robotsLog.Debug("Parsed robots.txt")
	g.cache[host] = data
	return data
}

// Allowed checks whether the configured user agent may fetch rawURL.
// Returns true when rules could not be obtained.
func (g *RobotsGuard) Allowed(ctx context.Context, rawURL string) bool {
	target, err := url.Parse(rawURL)
	if err != nil {
		g.log.WithField("url", rawURL).Warnf("Cannot parse URL for robots check: %v", err)
		return true
	}
	data := g.rules(ctx, target)
	if data == nil {
		return true
	}
	return data.TestAgent(target.RequestURI(), g.userAgent)
}
