// Package fetch issues the HTTP GET for each grocery source.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrUnexpectedStatus indicates a non-2xx response.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// ErrBodyTooLarge indicates the response exceeded the configured limit.
	ErrBodyTooLarge = errors.New("response body too large")
)

// Response is the raw result of one fetch.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// CheckStatus returns an ErrUnexpectedStatus error for non-2xx responses.
func (r *Response) CheckStatus() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnexpectedStatus, r.StatusCode)
}

// Fetcher retrieves the body at url. Transport failures are returned as
// errors; any HTTP status is returned in the Response.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// Options configures an HTTPFetcher.
type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 disables rate limiting
	UserAgent         string
	MaxBodyBytes      int64
}

// DefaultOptions returns the settings used when no configuration is given.
func DefaultOptions() Options {
	return Options{
		Timeout:      15 * time.Second,
		UserAgent:    "pricehub-ingest/1.0",
		MaxBodyBytes: 8 << 20,
	}
}

// HTTPFetcher is a Fetcher backed by net/http with a mandatory timeout.
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	timeout   time.Duration
	userAgent string
	maxBody   int64
}

// NewHTTPFetcher creates a fetcher. Zero-valued options fall back to DefaultOptions.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = def.MaxBodyBytes
	}

	f := &HTTPFetcher{
		client:    &http.Client{Timeout: opts.Timeout},
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		maxBody:   opts.MaxBodyBytes,
	}
	if opts.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return f
}

// Fetch performs one GET. Waiting for the rate limiter counts against ctx,
// not against the request timeout.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, f.maxBody)
	}

	return &Response{
		URL:        url,
		StatusCode: resp.StatusCode,
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}
