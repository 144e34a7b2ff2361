package oracle

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	nurl "net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultUserAgent is sent unless a User-Agent header is configured
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/1337.00 (KHTML, like Gecko) Chrome/1337.0.0.0 Safari/1337.00"

// Config describes how to reach the search endpoint
type Config struct {
	// Endpoint is the search URL; the candidate is added as query parameter Param
	Endpoint string
	Param    string
	Sentinel string

	// Extra request headers, each "Name: value"
	Headers []string
	Timeout time.Duration
	// Insecure disables TLS certificate verification
	Insecure bool

	// Retries is the number of extra attempts after a failed request
	Retries     int
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// CacheSize bounds the number of remembered answers; 0 disables the cache
	CacheSize int

	// HTTPClient replaces the client built from Timeout and Insecure
	HTTPClient *http.Client
	Logger     log.FieldLogger
}

// Stats counts the traffic a Client has produced
type Stats struct {
	Requests  int
	Retries   int
	Failures  int
	CacheHits int
	BytesRx   int64
}

type clientStats struct {
	sync.Mutex
	Stats
}

// Client is an Oracle backed by an HTTP search endpoint
type Client struct {
	hc          *http.Client
	base        *nurl.URL
	param       string
	sentinel    []byte
	header      http.Header
	host        string
	retries     int
	backoffBase time.Duration
	backoffMax  time.Duration
	cache       *lru.Cache[string, Outcome]
	flight      singleflight.Group
	log         log.FieldLogger
	st          clientStats
}

// NewClient validates cfg and returns a ready client
func NewClient(cfg Config) (*Client, error) {
	// Default to HTTPS if no protocol is provided
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("no search endpoint configured")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	base, err := nurl.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported endpoint scheme %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("endpoint %q has no host", cfg.Endpoint)
	}

	c := &Client{
		base:        base,
		param:       cfg.Param,
		sentinel:    []byte(cfg.Sentinel),
		header:      make(http.Header),
		retries:     cfg.Retries,
		backoffBase: cfg.BackoffBase,
		backoffMax:  cfg.BackoffMax,
		hc:          cfg.HTTPClient,
		log:         cfg.Logger,
	}
	if c.param == "" {
		c.param = "search"
	}
	if len(c.sentinel) == 0 {
		c.sentinel = []byte(DefaultSentinel)
	}
	if c.retries < 0 {
		c.retries = 0
	}
	if c.backoffBase <= 0 {
		c.backoffBase = 250 * time.Millisecond
	}
	if c.backoffMax < c.backoffBase {
		c.backoffMax = 30 * c.backoffBase
	}
	if c.log == nil {
		c.log = log.StandardLogger()
	}

	// Custom headers (the host header has to be set on the request itself)
	c.header.Set("User-Agent", DefaultUserAgent)
	for _, h := range cfg.Headers {
		hs := strings.SplitN(h, ":", 2)
		if len(hs) != 2 || strings.TrimSpace(hs[0]) == "" {
			return nil, fmt.Errorf("invalid header %q", h)
		}
		name, value := strings.TrimSpace(hs[0]), strings.TrimSpace(hs[1])
		switch {
		case strings.EqualFold(name, "host"):
			c.host = value
		case strings.EqualFold(name, "user-agent"):
			c.header.Set(name, value)
		default:
			c.header.Add(name, value)
		}
	}

	if c.hc == nil {
		c.hc = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure},
				Proxy:           http.ProxyFromEnvironment,
			},
		}
	}

	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, Outcome](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create cache: %w", err)
		}
		c.cache = cache
	}

	return c, nil
}

// URL returns the request URL for candidate
func (c *Client) URL(candidate string) string {
	u := *c.base
	q := u.Query()
	q.Set(c.param, candidate)
	u.RawQuery = q.Encode()
	return u.String()
}

// Query asks the endpoint about candidate. Identical queries running at the
// same time share a single request, and definite answers are cached.
func (c *Client) Query(ctx context.Context, candidate string) Result {
	if c.cache != nil {
		if o, ok := c.cache.Get(candidate); ok {
			c.st.Lock()
			c.st.CacheHits++
			c.st.Unlock()
			return Result{Outcome: o}
		}
	}

	v, _, _ := c.flight.Do(candidate, func() (any, error) {
		return c.query(ctx, candidate), nil
	})
	res := v.(Result)

	if c.cache != nil && res.Outcome != Failed {
		c.cache.Add(candidate, res.Outcome)
	}
	return res
}

// query performs the request, retrying transient failures with jittered
// exponential backoff
func (c *Client) query(ctx context.Context, candidate string) Result {
	url := c.URL(candidate)

	var outcome Outcome
	attempts := 0
	op := func() error {
		attempts++
		o, err := c.fetch(ctx, url)
		if err == nil {
			outcome = o
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		c.log.WithFields(log.Fields{"err": err, "url": url, "attempt": attempts}).Trace(fmt.Sprintf("fetch() failed, retrying in %s", d))
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.backoffBase
	eb.MaxInterval = c.backoffMax
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.retries)), ctx)
	err := backoff.RetryNotify(op, b, notify)

	// Update request stats
	c.st.Lock()
	c.st.Requests += attempts
	if attempts > 1 {
		c.st.Retries += attempts - 1
	}
	if err != nil {
		c.st.Failures++
	}
	c.st.Unlock()

	if err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("query %q: %w", candidate, err)}
	}
	return Result{Outcome: outcome}
}

// fetch makes one request and scans the body for the sentinel
func (c *Client) fetch(ctx context.Context, url string) (Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Failed, err
	}
	for name, values := range c.header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if c.host != "" {
		req.Host = c.host
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return Failed, err
	}
	defer res.Body.Close()

	c.log.WithFields(log.Fields{"url": url, "status": res.StatusCode}).Trace("fetch()")

	if res.StatusCode < 200 || res.StatusCode > 299 {
		// Drain a little so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return Failed, &StatusError{Code: res.StatusCode}
	}

	m := NewMatcher(c.sentinel)
	_, err = io.Copy(m, res.Body)

	c.st.Lock()
	c.st.BytesRx += m.Consumed()
	c.st.Unlock()

	if m.Found() {
		return NotFound, nil
	}
	if err != nil {
		return Failed, fmt.Errorf("read body: %w", err)
	}
	return Found, nil
}

// Stats returns a copy of the request counters
func (c *Client) Stats() Stats {
	c.st.Lock()
	defer c.st.Unlock()
	return c.st.Stats
}
