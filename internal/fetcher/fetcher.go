package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
	"igprofiler/pkg/config"
	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/logger"
	"igprofiler/pkg/ratelimit"
	"igprofiler/pkg/retry"
)

// Downloader performs a single GET. Implementations must honour ctx.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Fetcher downloads batches of media URLs in parallel. The same Fetcher may
// serve many batches at once; the total number of in-flight downloads across
// all of them never exceeds the configured MaxConcurrency.
type Fetcher struct {
	downloader Downloader
	limiter    ratelimit.Limiter
	inflight   *semaphore.Weighted
	maxWorkers int
	timeout    time.Duration
	retries    int
	backoff    retry.BackoffStrategy
	logger     logger.Logger
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithDownloader replaces the HTTP downloader.
func WithDownloader(d Downloader) Option {
	return func(f *Fetcher) { f.downloader = d }
}

// WithLimiter replaces the request rate limiter.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithBackoff replaces the retry backoff.
func WithBackoff(b retry.BackoffStrategy) Option {
	return func(f *Fetcher) { f.backoff = b }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher from configuration.
func New(cfg config.FetcherConfig, opts ...Option) *Fetcher {
	maxWorkers := cfg.MaxConcurrency
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	f := &Fetcher{
		downloader: NewHTTPDownloader(cfg.UserAgent, cfg.MaxBytes),
		limiter:    ratelimit.PerMinute(max(cfg.RequestsPerMinute, 1)),
		inflight:   semaphore.NewWeighted(int64(maxWorkers)),
		maxWorkers: maxWorkers,
		timeout:    cfg.Timeout,
		retries:    cfg.MaxRetries,
		backoff: &retry.ExponentialBackoff{
			BaseDelay:    250 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2,
			JitterFactor: 0.2,
		},
		logger: logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.WithField("component", "fetcher")
	return f
}

// FetchAll downloads urls with at most maxConcurrency workers and returns one
// Result per URL in input order. Failures are per item and never stop siblings.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string, maxConcurrency int) []Result {
	return f.FetchAllWithTimeout(ctx, urls, maxConcurrency, f.timeout)
}

// FetchAllWithTimeout is FetchAll with a per-request timeout override, used
// for large video downloads.
func (f *Fetcher) FetchAllWithTimeout(ctx context.Context, urls []string, maxConcurrency int, timeout time.Duration) []Result {
	results := make([]Result, len(urls))
	if len(urls) == 0 {
		return results
	}
	for i, u := range urls {
		results[i] = Result{Index: i, URL: u, Err: fmt.Errorf("not attempted: %w", context.Canceled)}
	}

	workers := min(max(maxConcurrency, 1), f.maxWorkers, len(urls))
	pool := NewWorkerPool(ctx, workers, f.process, f.logger)
	pool.Start()

	go func() {
		defer pool.Stop()
		for i, u := range urls {
			if err := pool.Submit(Job{Index: i, URL: u, Timeout: timeout}); err != nil {
				return
			}
		}
	}()

	failed := 0
	for res := range pool.Results() {
		results[res.Index] = res
		if res.Err != nil {
			failed++
		}
	}

	f.logger.DebugWithFields("Batch fetched", map[string]interface{}{
		"urls":    len(urls),
		"failed":  failed,
		"workers": workers,
	})
	return results
}

// process runs inside a worker. Retries stay inside the worker owning the
// job so other workers keep draining the queue.
func (f *Fetcher) process(ctx context.Context, job Job, workerID int) Result {
	start := time.Now()
	res := Result{Index: job.Index, URL: job.URL}

	if err := f.inflight.Acquire(ctx, 1); err != nil {
		res.Err = errs.Wrap(errs.ErrorTypeCapacity, err, "no download slot available")
		res.Duration = time.Since(start)
		return res
	}
	defer f.inflight.Release(1)

	data, r := retry.DoWithResult(ctx, func(ctx context.Context) ([]byte, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		reqCtx := ctx
		if job.Timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, job.Timeout)
			defer cancel()
		}
		data, err := f.downloader.Download(reqCtx, job.URL)
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, errs.TransientFetch(0, err, "download timed out")
		}
		return data, err
	}, &retry.Config{
		MaxAttempts: f.retries + 1,
		Backoff:     f.backoff,
		RetryIf:     retry.DefaultRetryIf,
	})

	res.Attempts = r.Attempts
	res.Duration = time.Since(start)
	if r.Err != nil {
		res.Err = r.Err
		logger.LogFetch(f.logger.WithField("worker_id", workerID), job.URL, 0, r.Attempts, r.Err)
		return res
	}
	if len(data) == 0 {
		res.Err = errs.Decode(nil, "empty response body")
		logger.LogFetch(f.logger, job.URL, 0, r.Attempts, res.Err)
		return res
	}

	res.Data = data
	res.Format = http.DetectContentType(data)
	logger.LogFetch(f.logger, job.URL, len(data), r.Attempts, nil)
	return res
}

// HTTPDownloader downloads over HTTP with a browser user agent.
type HTTPDownloader struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// NewHTTPDownloader creates a downloader. Timeouts come from the request context.
func NewHTTPDownloader(userAgent string, maxBytes int64) *HTTPDownloader {
	return &HTTPDownloader{
		client:    &http.Client{},
		userAgent: userAgent,
		maxBytes:  maxBytes,
	}
}

// Download fetches url and classifies failures for retry decisions.
func (d *HTTPDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeValidation, err, "invalid media url")
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	req.Header.Set("Accept", "image/*,video/*,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.TransientFetch(0, err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		switch {
		case errs.IsRetryableStatusCode(resp.StatusCode):
			return nil, errs.TransientFetch(resp.StatusCode, nil, msg)
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return nil, &errs.Error{Type: errs.ErrorTypeNotFound, Message: msg, Code: resp.StatusCode}
		default:
			return nil, &errs.Error{Type: errs.ErrorTypeUpstream, Message: msg, Code: resp.StatusCode}
		}
	}

	var body io.Reader = resp.Body
	if d.maxBytes > 0 {
		body = io.LimitReader(resp.Body, d.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.TransientFetch(resp.StatusCode, err, "reading body failed")
	}
	if d.maxBytes > 0 && int64(len(data)) > d.maxBytes {
		return nil, errs.Decode(nil, fmt.Sprintf("body exceeds %d bytes", d.maxBytes))
	}
	return data, nil
}
