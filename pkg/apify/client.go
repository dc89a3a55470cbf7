// Package apify provides a client for running Apify actors synchronously.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Apify operations used by the upstream scraper.
type Client interface {
	// RunActorSync runs an actor with the given input and returns the items
	// from its default dataset once the run completes.
	RunActorSync(ctx context.Context, actorID string, input any) ([]Item, error)
}

// Item is a single dataset item. Actor output schemas vary by actor and
// version, so items stay schemaless here; callers normalize them.
type Item map[string]any

// Cookie is a browser cookie forwarded to actors that support authenticated
// sessions.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httpOnly"`
	SameSite string `json:"sameSite"`
}

// SessionCookie builds the instagram.com sessionid cookie from a raw token.
func SessionCookie(sessionID string) Cookie {
	return Cookie{
		Name:     "sessionid",
		Value:    sessionID,
		Domain:   ".instagram.com",
		Path:     "/",
		Secure:   true,
		HTTPOnly: true,
		SameSite: "None",
	}
}

// Option configures the Apify client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates an Apify client. The HTTP client carries no timeout of
// its own: actor runs are long-lived and bounded by the caller's context.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: "https://api.apify.com/v2",
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503). Returns the response body and
// status code on success, or the last error after exhausting retries.
func (c *httpClient) retryDo(ctx context.Context, build func() (*http.Request, error)) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := build()
		if err != nil {
			return nil, 0, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "apify: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("apify: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) RunActorSync(ctx context.Context, actorID string, input any) ([]Item, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "apify: marshal actor input")
	}

	reqURL := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items?token=%s",
		c.baseURL, url.PathEscape(actorID), url.QueryEscape(c.token))

	build := func() (*http.Request, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
		if reqErr != nil {
			return nil, eris.Wrap(reqErr, "apify: create request")
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	body, statusCode, err := c.retryDo(ctx, build)
	if err != nil {
		return nil, eris.Wrap(err, "apify: run actor")
	}

	// 201 on completed runs; 200 when the dataset was served from a prior run.
	if statusCode != http.StatusCreated && statusCode != http.StatusOK {
		return nil, eris.Errorf("apify: unexpected status %d: %s", statusCode, string(body))
	}

	var items []Item
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, eris.Wrap(err, "apify: unmarshal dataset items")
	}

	return items, nil
}
