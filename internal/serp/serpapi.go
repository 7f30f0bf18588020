package serp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/FranksOps/jobdigest/internal/fingerprint"
	"github.com/FranksOps/jobdigest/pkg/httpclient"
	"github.com/FranksOps/jobdigest/pkg/proxy"
)

const (
	DefaultEndpoint = "https://serpapi.com/search.json"
	DefaultTimeout  = 30 * time.Second
)

// ClientConfig configures a SerpApi client.
type ClientConfig struct {
	Endpoint string
	APIKey   string
	// GL and HL are the Google country and interface language codes.
	GL string
	HL string
	// Recency is passed through as tbs, e.g. "qdr:d" for the last day.
	Recency     string
	IncludeJobs bool
	Timeout     time.Duration
	TLSProfile  fingerprint.Profile
	UserAgent   string
	// Proxies, when non-empty, routes each request through the next healthy
	// proxy in the pool.
	Proxies *proxy.Pool
	Logger  *slog.Logger

	// Transport overrides the fingerprinted transport. Used by tests.
	Transport http.RoundTripper
}

// Client is a Searcher backed by SerpApi's Google engine.
type Client struct {
	http        *httpclient.Client
	endpoint    string
	apiKey      string
	gl, hl      string
	recency     string
	includeJobs bool
	proxies     *proxy.Pool
	logger      *slog.Logger
}

// NewClient validates cfg and builds the underlying HTTP client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("serp: api key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("serp: endpoint: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	rt := cfg.Transport
	if rt == nil {
		if cfg.TLSProfile == "" {
			cfg.TLSProfile = fingerprint.ProfileGo
		}
		var err error
		rt, err = fingerprint.Transport(cfg.TLSProfile)
		if err != nil {
			return nil, fmt.Errorf("serp: %w", err)
		}
	}

	hc, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: 3,
		UserAgent:    cfg.UserAgent,
		Transport:    rt,
	})
	if err != nil {
		return nil, fmt.Errorf("serp: %w", err)
	}

	return &Client{
		http:        hc,
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		gl:          cfg.GL,
		hl:          cfg.HL,
		recency:     cfg.Recency,
		includeJobs: cfg.IncludeJobs,
		proxies:     cfg.Proxies,
		logger:      cfg.Logger,
	}, nil
}

// Search runs one query. Exactly one HTTP request is made; there is no retry.
func (c *Client) Search(ctx context.Context, req Request) ([]RawResult, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("serp: endpoint: %w", err)
	}
	u.RawQuery = c.params(req).Encode()

	httpReq, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("serp: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	var via *url.URL
	if c.proxies.Len() > 0 {
		via, err = c.proxies.Pick()
		if err != nil {
			return nil, fmt.Errorf("serp: search %q: %w", req.Query, err)
		}
		ctx = proxy.WithURL(ctx, via)
	}

	start := time.Now()
	resp, err := c.http.Do(ctx, httpReq)
	if err != nil {
		if via != nil && ctx.Err() == nil {
			c.proxies.MarkFailure(via)
			c.logger.Warn("proxy request failed", "proxy", via.Redacted(), "error", redact(err))
		}
		return nil, fmt.Errorf("serp: search %q: %w", req.Query, redact(err))
	}
	if via != nil {
		c.proxies.MarkSuccess(via)
	}
	body, err := c.http.ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("serp: search %q: %w", req.Query, redact(err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(resp.StatusCode, resp.Header, body)
	}

	results, err := Normalize(body, req.Limit, c.includeJobs)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("search complete",
		"query", req.Query,
		"location", req.Location,
		"results", len(results),
		"duration", time.Since(start),
	)
	return results, nil
}

func (c *Client) params(req Request) url.Values {
	v := url.Values{}
	v.Set("engine", "google")
	v.Set("q", req.Query)
	if req.Location != "" {
		v.Set("location", req.Location)
	}
	v.Set("api_key", c.apiKey)
	if c.gl != "" {
		v.Set("gl", c.gl)
	}
	if c.hl != "" {
		v.Set("hl", c.hl)
	}
	if req.Limit > 0 {
		v.Set("num", strconv.Itoa(req.Limit))
	}
	if c.recency != "" {
		v.Set("tbs", c.recency)
	}
	return v
}

// redact drops the request URL, which carries the API key, from transport
// errors while keeping the cause matchable with errors.Is.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
