package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hwvalue/internal/model"
	"github.com/sells-group/hwvalue/internal/resilience"
)

// maxBodyBytes caps how much of a results page is read.
const maxBodyBytes = 8 << 20

// Client is the paced, retrying fetch client for search result pages.
// It is safe for concurrent use; every caller shares one limiter.
type Client struct {
	opts    Options
	base    *url.URL
	limiter *AdaptiveLimiter
	breaker *resilience.CircuitBreaker
	renewer *Renewer

	http   atomic.Pointer[http.Client]
	direct *http.Client
	torOn  atomic.Bool

	requests atomic.Int64
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// NewClient creates a Client. The limiter is shared with any other client
// built for the same process.
func NewClient(opts Options, limiter *AdaptiveLimiter) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, eris.Errorf("fetcher: invalid base url %q", opts.BaseURL)
	}
	if limiter == nil {
		return nil, eris.New("fetcher: limiter is required")
	}

	c := &Client{
		opts:    opts,
		base:    base,
		limiter: limiter,
		breaker: resilience.NewCircuitBreaker(breakerConfig(opts.Breaker)),
		direct:  newHTTPClient(opts.Timeout, nil),
	}

	if opts.Tor.Enabled {
		proxyURL, err := url.Parse(opts.Tor.ProxyURL)
		if err != nil || proxyURL.Host == "" {
			return nil, eris.Errorf("fetcher: invalid tor proxy url %q", opts.Tor.ProxyURL)
		}
		c.http.Store(newHTTPClient(opts.Timeout, http.ProxyURL(proxyURL)))
		c.torOn.Store(true)
		if opts.Tor.ControlAddr != "" {
			c.renewer = NewRenewer(opts.Tor.ControlAddr, opts.Tor.ControlPassword, opts.Tor.RenewWait)
		}
	} else {
		c.http.Store(c.direct)
	}
	return c, nil
}

func newHTTPClient(timeout time.Duration, proxy func(*http.Request) (*url.URL, error)) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               proxy,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func breakerConfig(cfg resilience.CircuitBreakerConfig) resilience.CircuitBreakerConfig {
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("fetcher: connectivity circuit changed state",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}
	return cfg
}

// PageURL returns the results URL for page of term. Page 1 carries no
// page parameter.
func (c *Client) PageURL(term string, page int) string {
	u := c.base.JoinPath("ads", "q-"+term, "/")
	if page > 1 {
		u.RawQuery = url.Values{"page": {strconv.Itoa(page)}}.Encode()
	}
	return u.String()
}

// Fetch retrieves and parses one results page. Errors are
// *resilience.FetchError values; KindFatal means connectivity is lost.
func (c *Client) Fetch(ctx context.Context, term string, page int) (*model.Page, error) {
	pageURL := c.PageURL(term, page)

	retry := c.opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("fetcher: retrying page",
			zap.String("term", term),
			zap.Int("page", page),
		)
	}

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (*model.Page, error) {
		return c.attempt(ctx, term, page, pageURL)
	})
}

func (c *Client) attempt(ctx context.Context, term string, page int, pageURL string) (*model.Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, resilience.NewFetchError(resilience.KindPermanent, 0, pageURL, eris.Wrap(err, "fetcher: rate limiter wait"))
	}
	c.renewPeriodically(ctx)

	resp, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*response, error) {
		return c.get(ctx, pageURL)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, resilience.NewFetchError(resilience.KindFatal, 0, pageURL, err)
		}
		return nil, err
	}

	if kind, failed := resilience.KindForStatus(resp.status); failed {
		c.onFailureStatus(ctx, resp.status)
		cause := eris.Errorf("fetcher: http %d", resp.status)
		if blocked, bt := DetectBlock(resp.status, resp.header, resp.body); blocked {
			cause = eris.Wrapf(ErrBlocked, "fetcher: %s", bt)
		}
		return nil, resilience.NewFetchError(kind, resp.status, pageURL, cause)
	}

	parsed, err := ParsePage(bytes.NewReader(resp.body), resp.header.Get("Content-Type"))
	if err != nil {
		return nil, resilience.NewFetchError(resilience.KindPermanent, resp.status, pageURL, err)
	}
	if len(parsed.Listings) == 0 {
		if blocked, bt := DetectBlock(resp.status, resp.header, resp.body); blocked {
			c.onFailureStatus(ctx, http.StatusForbidden)
			return nil, resilience.NewFetchError(resilience.KindPermanent, resp.status, pageURL,
				eris.Wrapf(ErrBlocked, "fetcher: %s", bt))
		}
	}
	c.limiter.OnSuccess()

	for i := range parsed.Listings {
		l := &parsed.Listings[i]
		l.URL = c.resolve(l.URL)
		l.Term = term
		l.Page = page
	}

	return &model.Page{
		Term:     term,
		Number:   page,
		Status:   resp.status,
		Listings: parsed.Listings,
		HasNext:  parsed.HasNext,
	}, nil
}

func (c *Client) get(ctx context.Context, pageURL string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, resilience.NewFetchError(resilience.KindPermanent, 0, pageURL, eris.Wrap(err, "fetcher: create request"))
	}
	setBrowserHeaders(req.Header, c.opts.UserAgents)

	resp, err := c.http.Load().Do(req)
	if err != nil {
		return nil, resilience.NewFetchError(resilience.KindTransient, 0, pageURL, eris.Wrap(err, "fetcher: request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resilience.NewFetchError(resilience.KindTransient, 0, pageURL, eris.Wrap(err, "fetcher: read body"))
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

func (c *Client) resolve(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return c.base.ResolveReference(ref).String()
}

// onFailureStatus reacts to block-like statuses: 429 slows the limiter,
// and 403/429 request a new Tor circuit.
func (c *Client) onFailureStatus(ctx context.Context, status int) {
	if status == http.StatusTooManyRequests {
		c.limiter.OnRateLimit()
	}
	if status == http.StatusForbidden || status == http.StatusTooManyRequests {
		c.renew(ctx, "blocked")
	}
}

func (c *Client) renewPeriodically(ctx context.Context) {
	n := c.requests.Add(1)
	every := int64(c.opts.Tor.RenewEvery)
	if every > 0 && n%every == 0 {
		c.renew(ctx, "periodic")
	}
}

func (c *Client) renew(ctx context.Context, reason string) {
	if c.renewer == nil || !c.torOn.Load() {
		return
	}
	if err := c.renewer.Renew(ctx); err != nil {
		zap.L().Warn("fetcher: tor renewal failed",
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}

// TorActive reports whether requests are routed through Tor.
func (c *Client) TorActive() bool {
	return c.torOn.Load()
}

// Probe checks connectivity before a run. When Tor is configured but
// unreachable the client falls back to direct connections. An error means
// neither route works.
func (c *Client) Probe(ctx context.Context) error {
	target := c.opts.ConnectivityURL
	if target == "" {
		target = c.base.String()
	}

	if c.torOn.Load() {
		ip, err := probe(ctx, c.http.Load(), target)
		if err == nil {
			zap.L().Info("fetcher: tor connection ok", zap.String("ip", ip))
			return nil
		}
		zap.L().Warn("fetcher: tor connection failed, falling back to direct", zap.Error(err))
		c.http.Store(c.direct)
		c.torOn.Store(false)
	}

	ip, err := probe(ctx, c.direct, target)
	if err != nil {
		return resilience.NewFetchError(resilience.KindFatal, 0, target, eris.Wrap(err, "fetcher: connectivity probe"))
	}
	zap.L().Info("fetcher: direct connection ok", zap.String("ip", ip))
	return nil
}

func probe(ctx context.Context, client *http.Client, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: create probe request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: probe request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return "", eris.Errorf("fetcher: probe returned status %d", resp.StatusCode)
	}

	var body struct {
		IP string `json:"ip"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) != nil || body.IP == "" {
		return "unknown", nil
	}
	return body.IP, nil
}
