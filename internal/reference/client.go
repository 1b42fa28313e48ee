// Package reference is the HTTP client for the external institution
// registry consulted before local matching.
//
// The registry answers two lookups:
//
//	GET {base}/institutions?accountingNumber=...
//	GET {base}/institutions/search?name=...&city=...
//
// Both return a JSON ExternalRef on a hit and 404 on a miss.
package reference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/institution-import/internal/config"
	"github.com/JonMunkholm/institution-import/internal/core"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// Client implements core.ReferenceLookup.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
}

var _ core.ReferenceLookup = (*Client)(nil)

// New builds a client from cfg. It fails on a missing or relative URL.
func New(cfg config.ReferenceConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("reference lookup: invalid base URL %q", raw)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL:    u,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) SearchByAccountingNumber(ctx context.Context, code string) (*core.ExternalRef, error) {
	q := url.Values{}
	q.Set("accountingNumber", strings.TrimSpace(code))
	return c.get(ctx, "/institutions", q)
}

func (c *Client) SearchByName(ctx context.Context, name, city string) (*core.ExternalRef, error) {
	q := url.Values{}
	q.Set("name", strings.TrimSpace(name))
	q.Set("city", strings.TrimSpace(city))
	return c.get(ctx, "/institutions/search", q)
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*core.ExternalRef, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("reference lookup: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		req.Header.Set(middleware.RequestIDHeader, reqID)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reference lookup: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reference lookup: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("reference lookup: status %d: %s (%s)", resp.StatusCode, apiErr.Message, apiErr.Code)
		}
		return nil, fmt.Errorf("reference lookup: status %d", resp.StatusCode)
	}

	var ref core.ExternalRef
	if err := json.Unmarshal(body, &ref); err != nil {
		return nil, fmt.Errorf("reference lookup: decode response: %w", err)
	}
	if strings.TrimSpace(ref.ID) == "" {
		return nil, errors.New("reference lookup: response without id")
	}
	return &ref, nil
}
