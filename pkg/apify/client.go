package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"igprofiler/pkg/config"
	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/logger"
	"igprofiler/pkg/models"
	"igprofiler/pkg/ratelimit"
	"igprofiler/pkg/retry"
)

// Client runs the Instagram scraper actor.
type Client struct {
	httpClient *http.Client
	baseURL    string
	actorID    string
	token      string
	maxRetries int
	backoff    retry.BackoffStrategy
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithBackoff replaces the retry backoff.
func WithBackoff(b retry.BackoffStrategy) Option {
	return func(cl *Client) { cl.backoff = b }
}

// WithLimiter paces actor runs, retries included. Nil disables pacing.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(cl *Client) { cl.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// NewClient creates a client from configuration.
func NewClient(cfg config.ApifyConfig, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		actorID:    cfg.ActorID,
		token:      cfg.Token,
		maxRetries: cfg.MaxRetries,
		backoff:    &retry.ExponentialBackoff{BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Multiplier: 2, JitterFactor: 0.1},
		logger:     logger.GetLogger(),
	}
	if cfg.RunsPerMinute > 0 {
		c.limiter = ratelimit.PerMinute(cfg.RunsPerMinute)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithField("component", "apify")
	return c
}

// ProfileURL is the canonical profile URL handed to the actor.
func ProfileURL(username string) string {
	return fmt.Sprintf("https://www.instagram.com/%s/", username)
}

// FetchProfilePosts runs the actor for username and returns the profile and
// up to limit posts in the order the actor produced them.
func (c *Client) FetchProfilePosts(ctx context.Context, username string, limit int) (*models.Profile, []models.Post, error) {
	if c.token == "" {
		return nil, nil, errs.New(errs.ErrorTypeValidation, "Apify API token is not configured")
	}
	if limit < 1 {
		limit = 1
	}

	items, err := c.RunActor(ctx, RunInput{
		DirectURLs:    []string{ProfileURL(username)},
		ResultsType:   "posts",
		ResultsLimit:  limit,
		AddParentData: true,
	})
	if err != nil {
		return nil, nil, err
	}

	var (
		valid     []Item
		actorErrs []string
	)
	for _, it := range items {
		if it.Error != "" {
			actorErrs = append(actorErrs, firstNonEmpty(it.ErrorDescription, it.Error))
			continue
		}
		valid = append(valid, it)
	}
	if len(valid) == 0 {
		msg := fmt.Sprintf("no posts found for @%s", username)
		if len(actorErrs) > 0 {
			msg += ": " + actorErrs[0]
		}
		return nil, nil, errs.Upstream(0, nil, msg)
	}
	if len(valid) > limit {
		valid = valid[:limit]
	}

	posts := make([]models.Post, len(valid))
	for i, it := range valid {
		posts[i] = ToPost(it)
	}

	c.logger.InfoWithFields("Profile scraped", map[string]interface{}{
		"username": username,
		"posts":    len(posts),
		"skipped":  len(actorErrs),
	})
	return ToProfile(username, valid), posts, nil
}

// RunActor runs the actor synchronously and decodes its dataset items.
// Transient failures are retried; anything left over is an Upstream error.
func (c *Client) RunActor(ctx context.Context, input RunInput) ([]Item, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode actor input: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items", c.baseURL, url.PathEscape(c.actorID))

	items, res := retry.DoWithResult(ctx, func(ctx context.Context) ([]Item, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return c.post(ctx, endpoint, body)
	}, &retry.Config{
		MaxAttempts: c.maxRetries + 1,
		Backoff:     c.backoff,
		RetryIf:     retry.DefaultRetryIf,
		Logger:      c.logger,
	})
	if res.Err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var code int
		var e *errs.Error
		if errors.As(res.Err, &e) {
			code = e.Code
		}
		c.logger.WithError(res.Err).ErrorWithFields("Actor run failed", map[string]interface{}{
			"actor":    c.actorID,
			"attempts": res.Attempts,
		})
		return nil, errs.Upstream(code, res.Err, "scraping service failed")
	}
	return items, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeValidation, err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    endpoint,
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.TransientFetch(0, err, "network error")
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	})

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.TransientFetch(resp.StatusCode, err, "failed to read response body")
	}
	if err := checkStatus(resp.StatusCode, data); err != nil {
		return nil, err
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		bodyPreview := string(data)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return nil, errs.Decode(err, "failed to parse actor output")
	}
	return items, nil
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func checkStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := "unexpected status " + strconv.Itoa(status)
	var ae apiError
	if json.Unmarshal(body, &ae) == nil && ae.Error.Message != "" {
		msg = ae.Error.Message
	}

	switch {
	case errs.IsRetryableStatusCode(status):
		return errs.TransientFetch(status, nil, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.Upstream(status, nil, "Apify rejected the API token: "+msg)
	case status == http.StatusNotFound:
		return errs.Upstream(status, nil, "actor not found: "+msg)
	default:
		return errs.Upstream(status, nil, msg)
	}
}
