// Package proxy keeps a round-robin pool of egress proxies with simple
// failure tracking, and carries the chosen proxy to the transport through the
// request context.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrNoHealthy is returned by Pick when every proxy is cooling down.
var ErrNoHealthy = errors.New("proxy: no healthy proxy available")

type entry struct {
	url           *url.URL
	failures      int
	disabledUntil time.Time
}

// Pool rotates through a fixed set of proxies. A proxy that fails
// MaxFailures times in a row is skipped until its cooldown has passed.
type Pool struct {
	mu          sync.Mutex
	entries     []*entry
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// Config defines settings for the Pool.
type Config struct {
	MaxFailures int
	Cooldown    time.Duration
}

// NewPool creates an empty pool. Zero config values get defaults.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
}

// Len returns the number of proxies in the pool.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// LoadFile adds proxies from a file with one URL per line. Blank lines and
// lines starting with '#' are ignored.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("proxy: read %s: %w", path, err)
	}
	return p.Add(urls...)
}

// AddList adds a comma separated list of proxy URLs.
func (p *Pool) AddList(list string) error {
	var urls []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			urls = append(urls, s)
		}
	}
	return p.Add(urls...)
}

// Add parses and appends proxy URLs. A URL without a scheme is taken as
// http. Nothing is added if any URL is invalid.
func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*entry, 0, len(rawURLs))
	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: %w", err)
		}
		switch u.Scheme {
		case "http", "https", "socks5":
		default:
			return fmt.Errorf("proxy: unsupported scheme %q in %s", u.Scheme, u.Redacted())
		}
		if u.Host == "" {
			return fmt.Errorf("proxy: missing host in %q", raw)
		}
		parsed = append(parsed, &entry{url: u})
	}

	p.mu.Lock()
	p.entries = append(p.entries, parsed...)
	p.mu.Unlock()
	return nil
}

// Pick returns the next healthy proxy in rotation.
func (p *Pool) Pick() (*url.URL, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return nil, ErrNoHealthy
	}
	now := p.now()
	for range len(p.entries) {
		e := p.entries[p.next]
		p.next = (p.next + 1) % len(p.entries)
		if !e.disabledUntil.IsZero() && now.After(e.disabledUntil) {
			e.disabledUntil = time.Time{}
			e.failures = 0
		}
		if e.disabledUntil.IsZero() {
			return e.url, nil
		}
	}
	return nil, ErrNoHealthy
}

// MarkSuccess resets the failure count of u.
func (p *Pool) MarkSuccess(u *url.URL) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e := p.find(u); e != nil {
		e.failures = 0
	}
}

// MarkFailure records a failed request through u and disables it for the
// cooldown once it reaches MaxFailures.
func (p *Pool) MarkFailure(u *url.URL) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.find(u)
	if e == nil {
		return
	}
	e.failures++
	if e.failures >= p.maxFailures {
		e.disabledUntil = p.now().Add(p.cooldown)
	}
}

// must be called with mu held
func (p *Pool) find(u *url.URL) *entry {
	if u == nil {
		return nil
	}
	target := u.String()
	for _, e := range p.entries {
		if e.url.String() == target {
			return e
		}
	}
	return nil
}

type ctxKey struct{}

// WithURL returns a context that routes requests made with it through u.
func WithURL(ctx context.Context, u *url.URL) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromRequest is an http.Transport Proxy func. It uses the proxy stored by
// WithURL and otherwise falls back to the environment.
func FromRequest(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(ctxKey{}).(*url.URL); ok && u != nil {
		return u, nil
	}
	return http.ProxyFromEnvironment(req)
}
