// Package http provides the outbound HTTP client used for vendor service
// calls (currently the collaborative-filtering service). One Client per
// upstream; the transport keeps a small idle-connection pool so per-request
// fan-out does not re-handshake.
package http

import (
	"context"
	"net/http"
	"time"
)

const (
	defaultTimeout = 5 * time.Second
	userAgent      = "recommendation-backend/1.0"

	maxIdleConns        = 32
	maxIdleConnsPerHost = 8
	idleConnTimeout     = 90 * time.Second
)

type Client struct {
	httpClient *http.Client
}

// NewClient builds a client with the given per-request timeout. A
// non-positive timeout falls back to defaultTimeout; upstream calls must
// never hang unbounded.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        maxIdleConns,
				MaxIdleConnsPerHost: maxIdleConnsPerHost,
				IdleConnTimeout:     idleConnTimeout,
			},
		},
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.prepare(req)
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	c.prepare(req)
	return c.httpClient.Do(req)
}

func (c *Client) prepare(req *http.Request) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
}
