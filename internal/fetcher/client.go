package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/datallboy/hlsget/internal/domain"
	"github.com/datallboy/hlsget/internal/infra/config"
	"github.com/datallboy/hlsget/internal/infra/logger"
)

// Options configures the segment client.
type Options struct {
	Timeout   time.Duration
	UserAgent string

	// RetryAttempts is the total number of attempts per segment, first one included.
	RetryAttempts   int
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration

	// RateLimit caps requests per second across all workers. Zero disables it.
	RateLimit float64
	RateBurst int

	MaxIdleConnsPerHost int
}

// OptionsFromConfig maps the download and http config sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Timeout:             cfg.HTTP.Timeout,
		UserAgent:           cfg.HTTP.UserAgent,
		RetryAttempts:       cfg.Download.RetryAttempts,
		RetryBackoff:        cfg.Download.RetryBackoff,
		RetryMaxBackoff:     cfg.Download.RetryMaxBackoff,
		RateLimit:           cfg.HTTP.RateLimit,
		RateBurst:           cfg.HTTP.RateBurst,
		MaxIdleConnsPerHost: cfg.Download.Concurrency,
	}
}

// Client downloads single segments to disk. It is safe for concurrent use.
type Client struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
	log     *logger.Logger
}

func New(opts Options, log *logger.Logger) *Client {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = config.DefaultConcurrency
	}
	if opts.RetryMaxBackoff < opts.RetryBackoff {
		opts.RetryMaxBackoff = opts.RetryBackoff
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
		// Segment bytes must reach disk exactly as served
		DisableCompression: true,
	}

	c := &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
		log:  log.Component("fetch"),
	}

	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return c
}

// HTTPClient exposes the underlying client so the playlist loader shares
// timeouts and connection reuse with segment downloads.
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

// Fetch downloads seg into dest. It always returns a result: Success with the
// written size, Failure with a *domain.FetchError (or an ErrIO error), or
// Cancelled when ctx ended first. dest never survives a non-success outcome.
func (c *Client) Fetch(ctx context.Context, seg domain.Segment, dest string) domain.SegmentResult {
	res := domain.SegmentResult{Index: seg.Index}

	var lastErr error
	for attempt := 1; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 1 {
			if err := c.backoff(ctx, attempt-1); err != nil {
				return cancelled(ctx, res)
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return cancelled(ctx, res)
				}
				lastErr = &domain.FetchError{Kind: domain.KindTimeout, Attempts: attempt, Transient: true, Err: err}
				res.Attempts = attempt
				break
			}
		}

		res.Attempts = attempt
		n, err := c.fetchOnce(ctx, seg, dest)
		if err == nil {
			res.Outcome = domain.OutcomeSuccess
			res.Path = dest
			res.BytesWritten = n
			return res
		}

		_ = os.Remove(dest)

		if ctx.Err() != nil {
			return cancelled(ctx, res)
		}

		lastErr = err

		var fe *domain.FetchError
		if !errors.As(err, &fe) {
			// Local I/O failures are not worth retrying
			break
		}
		fe.Attempts = attempt
		if !fe.Transient {
			break
		}

		if attempt < c.opts.RetryAttempts {
			c.log.Warn("[Retry] Segment %d: Attempt %d/%d - Error: %v", seg.Index, attempt, c.opts.RetryAttempts, err)
		}
	}

	res.Outcome = domain.OutcomeFailure
	res.Err = lastErr
	return res
}

func (c *Client) fetchOnce(ctx context.Context, seg domain.Segment, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, seg.URI, nil)
	if err != nil {
		return 0, &domain.FetchError{Kind: domain.KindMalformed, Err: fmt.Errorf("create request: %w", err)}
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	if seg.Range != nil {
		req.Header.Set("Range", seg.Range.Header())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, transportError(err)
	}
	defer resp.Body.Close()

	body, expected, err := c.bodyFor(seg, resp)
	if err != nil {
		return 0, err
	}

	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %w", domain.ErrIO, dest, err)
	}

	w := &trackingWriter{w: f}
	n, copyErr := io.Copy(w, body)
	closeErr := f.Close()

	switch {
	case w.err != nil:
		return n, fmt.Errorf("%w: write %s: %w", domain.ErrIO, dest, w.err)
	case errors.Is(copyErr, io.ErrUnexpectedEOF):
		return n, &domain.FetchError{
			Kind:      domain.KindIncompleteBody,
			Transient: true,
			Err:       fmt.Errorf("body ended after %d bytes: %w", n, copyErr),
		}
	case copyErr != nil:
		return n, transportError(copyErr)
	case closeErr != nil:
		return n, fmt.Errorf("%w: close %s: %w", domain.ErrIO, dest, closeErr)
	}

	if expected >= 0 && n != expected {
		return n, &domain.FetchError{
			Kind:      domain.KindIncompleteBody,
			Transient: true,
			Err:       fmt.Errorf("got %d of %d bytes", n, expected),
		}
	}

	return n, nil
}

// bodyFor checks the status line and returns the reader holding exactly the
// segment bytes, plus the expected length (-1 if unknown).
func (c *Client) bodyFor(seg domain.Segment, resp *http.Response) (io.Reader, int64, error) {
	code := resp.StatusCode

	switch {
	case code == http.StatusPartialContent && seg.Range != nil:
		start, end, _, err := ParseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return nil, 0, &domain.FetchError{Kind: domain.KindMalformed, Err: err}
		}
		want := *seg.Range
		if start != want.Offset || end != want.Offset+want.Length-1 {
			return nil, 0, &domain.FetchError{
				Kind: domain.KindMalformed,
				Err:  fmt.Errorf("Content-Range %d-%d does not match requested %s", start, end, want.Header()),
			}
		}
		return resp.Body, want.Length, nil

	case code >= 200 && code < 300:
		if seg.Range == nil {
			return resp.Body, resp.ContentLength, nil
		}

		// Range ignored by the server: slice the full body locally
		if resp.ContentLength >= 0 && resp.ContentLength < seg.Range.Offset+seg.Range.Length {
			return nil, 0, &domain.FetchError{
				Kind: domain.KindMalformed,
				Err:  fmt.Errorf("resource is %d bytes, range %s is out of bounds", resp.ContentLength, seg.Range.Header()),
			}
		}
		if _, err := io.CopyN(io.Discard, resp.Body, seg.Range.Offset); err != nil {
			return nil, 0, &domain.FetchError{Kind: domain.KindIncompleteBody, Transient: true, Err: err}
		}
		return io.LimitReader(resp.Body, seg.Range.Length), seg.Range.Length, nil

	case code == http.StatusTooManyRequests || code >= 500:
		return nil, 0, &domain.FetchError{Kind: domain.KindHTTPStatus, Code: code, Transient: true}

	default:
		return nil, 0, &domain.FetchError{Kind: domain.KindHTTPStatus, Code: code}
	}
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, retry int) error {
	if c.opts.RetryBackoff <= 0 {
		return ctx.Err()
	}

	backoff := c.opts.RetryBackoff * time.Duration(1<<uint(min(retry-1, 30)))
	if backoff > c.opts.RetryMaxBackoff || backoff <= 0 {
		backoff = c.opts.RetryMaxBackoff
	}

	// 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	t := time.NewTimer(jitter)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func cancelled(ctx context.Context, res domain.SegmentResult) domain.SegmentResult {
	res.Outcome = domain.OutcomeCancelled
	res.Err = fmt.Errorf("%w: %w", domain.ErrCancelled, context.Cause(ctx))
	return res
}

type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}
