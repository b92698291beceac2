// Package rest implements core.Gateway over the remote service's HTTP API:
//
//	GET    {base}/{resource}/list/{owner}
//	POST   {base}/{resource}/add/{owner}
//	PUT    {base}/{resource}/update/{id}
//	DELETE {base}/{resource}/{id}
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/casesync/pkg/core"
)

// Client is a core.Gateway for one resource.
type Client[T any] struct {
	base     string
	resource string
	http     *http.Client
}

// Option configures a Client.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// New creates a Client for resource (e.g. "tasks") under baseURL.
func New[T any](baseURL, resource string, opts ...Option) *Client[T] {
	o := options{httpClient: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Client[T]{
		base:     strings.TrimRight(baseURL, "/"),
		resource: resource,
		http:     o.httpClient,
	}
}

type envelope[T any] struct {
	Success bool             `json:"success"`
	Items   []core.Entity[T] `json:"items"`
	Error   string           `json:"error"`
}

func (c *Client[T]) List(ctx context.Context, ownerID string) ([]core.Entity[T], error) {
	var env envelope[T]
	if err := c.do(ctx, http.MethodGet, "list/"+url.PathEscape(ownerID), nil, &env); err != nil {
		return nil, err
	}
	return env.Items, nil
}

func (c *Client[T]) Create(ctx context.Context, ownerID string, e core.Entity[T]) error {
	return c.do(ctx, http.MethodPost, "add/"+url.PathEscape(ownerID), e, nil)
}

func (c *Client[T]) Update(ctx context.Context, id string, e core.Entity[T]) error {
	return c.do(ctx, http.MethodPut, "update/"+url.PathEscape(id), e, nil)
}

func (c *Client[T]) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, url.PathEscape(id), nil, nil)
}

func (c *Client[T]) do(ctx context.Context, method, path string, body any, out *envelope[T]) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	endpoint := c.base + "/" + c.resource + "/" + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, endpoint, core.ErrNotFound)
	}

	var env envelope[T]
	if out == nil {
		out = &env
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && out.Error != "" {
			return fmt.Errorf("%s %s: status %d: %s", method, endpoint, resp.StatusCode, out.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, endpoint, resp.StatusCode)
	}
	if decodeErr != nil {
		return fmt.Errorf("%s %s: %w: %w", method, endpoint, core.ErrMalformedSnapshot, decodeErr)
	}
	if !out.Success {
		return fmt.Errorf("%s %s: remote reported failure: %s", method, endpoint, out.Error)
	}
	return nil
}

var _ core.Gateway[struct{}] = (*Client[struct{}])(nil)
