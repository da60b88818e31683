// Package httpclient is the shared outbound HTTP wrapper for API client
// modules. It applies the same bounded-backoff primitive the flag store
// uses to its writes: timeouts and 5xx responses are retried, 4xx and
// malformed requests are surfaced immediately.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"plantmart/internal/retry"
	"plantmart/pkg/logx"
)

// DefaultAttemptTimeout bounds each individual attempt. Expiry counts as a
// retryable failure.
const DefaultAttemptTimeout = 15 * time.Second

// Error is the typed network failure callers branch on. It is the one
// error the bus subsystem deliberately lets escape to the UI layer, which
// renders it as a retry affordance.
type Error struct {
	URL        string
	StatusCode int // 0 when the request never got a response
	Timeout    bool
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("request %s timed out", e.URL)
	case e.StatusCode != 0:
		return fmt.Sprintf("request %s: status %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("request %s: %v", e.URL, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could help: transport errors,
// timeouts, and 5xx yes; 4xx no.
func (e *Error) Retryable() bool {
	if e.Timeout || e.StatusCode == 0 {
		return true
	}
	return e.StatusCode >= 500
}

// Config tunes a Client. Zero values mean defaults.
type Config struct {
	Policy         retry.Policy
	AttemptTimeout time.Duration
	Transport      http.RoundTripper
	Log            logx.Logger
}

// Response is the final, fully-read reply of a successful request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

type Client struct {
	hc             *http.Client
	policy         retry.Policy
	attemptTimeout time.Duration
	log            logx.Logger
}

func New(cfg Config) *Client {
	log := cfg.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	at := cfg.AttemptTimeout
	if at <= 0 {
		at = DefaultAttemptTimeout
	}
	policy := cfg.Policy
	if policy.Retryable == nil {
		policy.Retryable = func(err error) bool {
			var ne *Error
			if errors.As(err, &ne) {
				return ne.Retryable()
			}
			return true
		}
	}
	return &Client{
		hc:             &http.Client{Transport: cfg.Transport},
		policy:         policy,
		attemptTimeout: at,
		log:            log,
	}
}

// Do performs one logical request, retrying per policy. On final failure
// the returned error carries (or wraps) an *Error for the caller to branch
// on.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, header http.Header) (*Response, error) {
	var out *Response
	attempt := 0
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		attempt++
		resp, err := c.attempt(ctx, method, url, body, header)
		if err != nil {
			c.log.Debug("request attempt failed",
				logx.String("url", url),
				logx.Int("attempt", attempt),
				logx.Err(err),
			)
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) attempt(ctx context.Context, method, url string, body []byte, header http.Header) (*Response, error) {
	actx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(actx, method, url, rd)
	if err != nil {
		// Malformed request: not retryable by construction.
		return nil, &Error{URL: url, Err: err, StatusCode: http.StatusBadRequest}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		timeout := errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
		return nil, &Error{URL: url, Timeout: timeout, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, &Error{URL: url, StatusCode: resp.StatusCode}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// GetJSON fetches url and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	resp, err := c.Do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp.Body, url, out)
}

// PostJSON sends body as JSON and decodes the reply into out (out may be
// nil when the reply does not matter).
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) error {
	raw, err := encodeJSON(body)
	if err != nil {
		return err
	}
	hdr := http.Header{"Content-Type": []string{"application/json"}}
	resp, err := c.Do(ctx, http.MethodPost, url, raw, hdr)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeJSON(resp.Body, url, out)
}
