package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient talks JSON to the remote content store.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client for the content store at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("content store %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 300:
		return fmt.Errorf("content store %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *HTTPClient) ListVendors(ctx context.Context) ([]Vendor, error) {
	var vendors []Vendor
	if err := c.do(ctx, http.MethodGet, "/vendors", nil, &vendors); err != nil {
		return nil, err
	}
	return vendors, nil
}

func (c *HTTPClient) GetVendor(ctx context.Context, id string) (*Vendor, error) {
	var v Vendor
	if err := c.do(ctx, http.MethodGet, "/vendors/"+url.PathEscape(id), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *HTTPClient) SaveVendor(ctx context.Context, v *Vendor) (*Vendor, error) {
	var saved Vendor
	if v.ID == "" {
		if err := c.do(ctx, http.MethodPost, "/vendors", v, &saved); err != nil {
			return nil, err
		}
	} else {
		if err := c.do(ctx, http.MethodPut, "/vendors/"+url.PathEscape(v.ID), v, &saved); err != nil {
			return nil, err
		}
	}
	return &saved, nil
}

func (c *HTTPClient) DeleteVendor(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/vendors/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) ListStudios(ctx context.Context) ([]Studio, error) {
	var studios []Studio
	if err := c.do(ctx, http.MethodGet, "/studios", nil, &studios); err != nil {
		return nil, err
	}
	return studios, nil
}

func (c *HTTPClient) GetStudio(ctx context.Context, id string) (*Studio, error) {
	var s Studio
	if err := c.do(ctx, http.MethodGet, "/studios/"+url.PathEscape(id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) SaveStudio(ctx context.Context, s *Studio) (*Studio, error) {
	var saved Studio
	if s.ID == "" {
		if err := c.do(ctx, http.MethodPost, "/studios", s, &saved); err != nil {
			return nil, err
		}
	} else {
		if err := c.do(ctx, http.MethodPut, "/studios/"+url.PathEscape(s.ID), s, &saved); err != nil {
			return nil, err
		}
	}
	return &saved, nil
}

func (c *HTTPClient) DeleteStudio(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/studios/"+url.PathEscape(id), nil, nil)
}
