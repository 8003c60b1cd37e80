package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/filmlog-scraper/pkg/config"
	"github.com/Sriram-PR/filmlog-scraper/pkg/utils"
)

// Client calls the TMDB v3 catalog API. Every call is bounded by the configured timeout.
type Client struct {
	http    *resty.Client
	timeout time.Duration
	log     *logrus.Entry
}

// NewClient creates a Client from the validated TMDB settings.
// httpClient may be nil, in which case resty builds its own. A non-nil client is copied so
// the catalog timeout never leaks into other users of it; the Transport stays shared.
func NewClient(cfg config.TMDBConfig, httpClient *http.Client, log *logrus.Entry) *Client {
	var rc *resty.Client
	if httpClient != nil {
		hc := *httpClient
		rc = resty.NewWithClient(&hc)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(cfg.BaseURL)
	rc.SetTimeout(cfg.Timeout)
	rc.SetHeader("Accept", "application/json")
	rc.SetQueryParam("api_key", cfg.APIKey)
	rc.SetLogger(log)

	return &Client{http: rc, timeout: cfg.Timeout, log: log}
}

// Search queries /search/movie by title, narrowed by release year when known.
// Results keep the API's relevance order.
func (c *Client) Search(ctx context.Context, title, year string) ([]SearchResult, error) {
	params := map[string]string{"query": title}
	if year != "" {
		params["year"] = year
	}
	var out searchResponse
	if err := c.get(ctx, "/search/movie", nil, params, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Details fetches genres, runtime and production countries for a movie
func (c *Client) Details(ctx context.Context, id int) (*MovieDetails, error) {
	var out MovieDetails
	if err := c.get(ctx, "/movie/{id}", map[string]string{"id": strconv.Itoa(id)}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Credits fetches cast and crew for a movie
func (c *Client) Credits(ctx context.Context, id int) (*Credits, error) {
	var out Credits
	if err := c.get(ctx, "/movie/{id}/credits", map[string]string{"id": strconv.Itoa(id)}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, pathParams, query map[string]string, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetPathParams(pathParams).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %w", utils.ErrCatalogAPI, path, err)
	}

	if res.IsError() || res.StatusCode() < 200 || res.StatusCode() >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(res.Body(), &apiErr)
		sentinel := utils.ErrServerHTTPError
		switch {
		case res.StatusCode() == http.StatusNotFound:
			sentinel = utils.ErrNotFound
		case res.StatusCode() < 500:
			sentinel = utils.ErrClientHTTPError
		}
		return fmt.Errorf("%w: GET %s: %w: status %d %s", utils.ErrCatalogAPI, path, sentinel, res.StatusCode(), apiErr.StatusMessage)
	}

	if err := json.Unmarshal(res.Body(), out); err != nil {
		return fmt.Errorf("%w: GET %s: %w: JSON: %w", utils.ErrCatalogAPI, path, utils.ErrParsing, err)
	}
	c.log.WithFields(logrus.Fields{"path": path, "status_code": res.StatusCode(), "elapsed": res.Time()}).Debug("Catalog call done")
	return nil
}
